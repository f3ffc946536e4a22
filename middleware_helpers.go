package sso

import (
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-sso/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use sso helpers directly.
type ValidationListener = jwtware.ValidationListener

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// RequireCompletedRegistration rejects sessions whose user has not
// reached the password_set state.
func RequireCompletedRegistration(c router.Context, identity any) error {
	user, ok := identity.(*User)
	if !ok || user == nil {
		return ErrTokenInvalid
	}
	if user.State() != StatePasswordSet {
		return ErrIncompleteAccount.Clone().WithMetadata(map[string]any{
			"user_id": user.ID.String(),
			"state":   user.State(),
		})
	}
	return nil
}
