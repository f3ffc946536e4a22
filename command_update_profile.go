package sso

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// UpdateProfileMessage changes the editable, non identity fields
type UpdateProfileMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	Profile    ProfileUpdate
	OnResponse func(user *User)
}

func (e UpdateProfileMessage) Type() string { return "user.update_profile" }

type UpdateProfileHandler struct {
	repo        RepositoryManager
	phoneRegion string
}

func NewUpdateProfileHandler(repo RepositoryManager, phoneRegion string) *UpdateProfileHandler {
	return &UpdateProfileHandler{repo: repo, phoneRegion: phoneRegion}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByUUID(ctx, event.UserID)
	if err != nil {
		return err
	}

	profile := event.Profile
	profile.PhoneNumber = NormalizePhoneNumber(profile.PhoneNumber, h.phoneRegion)
	if profile.PhoneNumber == "" {
		return ErrNoEmptyString.Clone().WithMetadata(map[string]any{"field": "phone_number"})
	}

	if profile.PhoneNumber != user.PhoneNumber {
		other, err := h.repo.Users().FindByPhone(ctx, profile.PhoneNumber)
		switch {
		case err == nil && other.ID != user.ID:
			return ErrDuplicateIdentity.Clone().WithMetadata(map[string]any{"field": "phone_number"})
		case err != nil && !IsError(err, ErrUserNotFound):
			return err
		}
	}

	columns := profile.Apply(user)
	if len(columns) > 0 {
		if user, err = h.repo.Users().UpdateColumns(ctx, user, columns...); err != nil {
			return err
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
