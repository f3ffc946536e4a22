package sso

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CreatePasswordMessage struct {
	UserID          uuid.UUID `json:"user_id"`
	Password        string    `json:"password"`
	ConfirmPassword string    `json:"confirm_password"`
	BirthDate       string    `json:"birth_date"`
}

func (e CreatePasswordMessage) Type() string { return "user.create_password" }

type CreatePasswordHandler struct {
	repo RepositoryManager
	sm   RegistrationStateMachine
}

func NewCreatePasswordHandler(repo RepositoryManager, sm RegistrationStateMachine) *CreatePasswordHandler {
	if sm == nil {
		sm = NewRegistrationStateMachine(repo.Users())
	}
	return &CreatePasswordHandler{repo: repo, sm: sm}
}

func (h *CreatePasswordHandler) Execute(ctx context.Context, event CreatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreatePasswordHandler) execute(ctx context.Context, event CreatePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password == "" {
		return ErrNoEmptyString.Clone().WithMetadata(map[string]any{"field": "password"})
	}

	if event.Password != event.ConfirmPassword {
		return ErrPasswordMismatch
	}

	user, err := h.repo.Users().GetByUUID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if state := h.sm.CurrentState(user); state != StateEmailVerified {
		return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": state,
			"to":   StatePasswordSet,
		})
	}

	if user.BirthDateString() != event.BirthDate {
		return ErrBirthDateMismatch
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := h.sm.Transition(ctx, tx, user, StatePasswordSet, TransitionInput{
			PasswordHash: hash,
		})
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password creation transaction failed")
	}

	return nil
}
