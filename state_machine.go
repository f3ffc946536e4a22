package sso

import (
	"context"

	"github.com/uptrace/bun"
)

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	User *User
	From RegistrationState
	To   RegistrationState
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionInput carries what a transition needs to persist.
type TransitionInput struct {
	Code         string
	PasswordHash string
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*registrationStateMachine)

// RegistrationStateMachine advances users through
// submitted -> email_verified -> password_set.
type RegistrationStateMachine interface {
	Transition(ctx context.Context, tx bun.IDB, user *User, target RegistrationState, input TransitionInput, opts ...TransitionOption) (*User, error)
	CurrentState(user *User) RegistrationState
	CanTransition(from, to RegistrationState) bool
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *registrationStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewRegistrationStateMachine returns the default implementation backed by users.
func NewRegistrationStateMachine(users Users, opts ...StateMachineOption) RegistrationStateMachine {
	sm := &registrationStateMachine{
		users: users,
		transitions: map[RegistrationState]map[RegistrationState]struct{}{
			StateSubmitted: {
				StateEmailVerified: {},
			},
			StateEmailVerified: {
				StatePasswordSet: {},
			},
		},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type registrationStateMachine struct {
	users       Users
	transitions map[RegistrationState]map[RegistrationState]struct{}
	logger      Logger
}

type transitionOptions struct {
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (sm *registrationStateMachine) Transition(ctx context.Context, tx bun.IDB, user *User, target RegistrationState, input TransitionInput, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	from := sm.CurrentState(user)

	// A verified email stays verified, replaying the step is a no-op.
	if target == StateEmailVerified && (from == StateEmailVerified || from == StatePasswordSet) {
		return user, nil
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{User: user, From: from, To: target}

	if err := sm.runHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	switch target {
	case StateEmailVerified:
		if input.Code == "" || input.Code != user.VerificationCode {
			return nil, ErrCodeMismatch
		}
		ok, err := sm.users.MarkEmailVerifiedTx(ctx, tx, user.ID, input.Code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCodeMismatch
		}
		user.EmailVerified = true
		user.VerificationCode = ""
	case StatePasswordSet:
		ok, err := sm.users.SetPasswordHashTx(ctx, tx, user.ID, input.PasswordHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
				"from":   from,
				"to":     target,
				"reason": "user is not waiting for a password",
			})
		}
		user.PasswordHash = input.PasswordHash
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc); err != nil {
		sm.logger.Error("registration %s -> %s after hook failed for %s: %v", from, target, user.ID, err)
		return nil, err
	}

	sm.logger.Debug("registration %s -> %s for user %s", from, target, user.ID)

	return user, nil
}

func (sm *registrationStateMachine) CurrentState(user *User) RegistrationState {
	if user == nil {
		return ""
	}
	return user.State()
}

func (sm *registrationStateMachine) CanTransition(from, to RegistrationState) bool {
	targets, ok := sm.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (sm *registrationStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}
