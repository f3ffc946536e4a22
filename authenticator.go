package sso

import (
	"context"

	"github.com/goliatone/go-errors"
)

type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokenService TokenService) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TokenService returns the token service used to issue tokens
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login checks the credentials and issues a session token
func (s *Auther) Login(ctx context.Context, nationalID, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, nationalID, password)
	if err != nil {
		return "", err
	}

	token, err := s.tokenService.Issue(identity)
	if err != nil {
		return "", err
	}

	s.logger.Debug("issued token for user %s", identity.ID())

	return token, nil
}

// Verify validates the token and resolves the user it refers to.
// A token for a user that no longer exists is invalid.
func (s *Auther) Verify(ctx context.Context, token string) (*User, error) {
	session, err := s.SessionFromToken(token)
	if err != nil {
		return nil, err
	}

	identity, err := s.IdentityFromSession(ctx, session)
	if err != nil {
		if IsError(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid.Clone().WithMetadata(map[string]any{
				"user_id": session.GetUserID(),
				"reason":  "user not found",
			})
		}
		return nil, err
	}

	ui, ok := identity.(UserIdentity)
	if !ok || ui.User() == nil {
		return nil, errors.New("identity provider returned an unexpected identity", errors.CategoryInternal)
	}

	return ui.User(), nil
}

func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		return nil, err
	}
	return sessionFromClaims(claims)
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	if !HasUserUUID(session) {
		return nil, ErrTokenInvalid
	}
	return s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
}
