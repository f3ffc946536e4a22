package sso

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// UserFinder is the subset of the credential store needed to
// authenticate users
type UserFinder interface {
	FindByNationalID(ctx context.Context, nationalID string) (*User, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
}

// UserProvider handles users
type UserProvider struct {
	store  UserFinder
	logger Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserFinder) *UserProvider {
	return &UserProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// VerifyIdentity will find the user, compare to the password, and return identity.
// Unknown users and wrong passwords both yield ErrInvalidCredentials, users
// that never set a password yield ErrIncompleteAccount.
func (u UserProvider) VerifyIdentity(ctx context.Context, nationalID, password string) (Identity, error) {
	user, err := u.store.FindByNationalID(ctx, nationalID)
	if err != nil {
		if IsError(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !user.HasPassword() {
		return nil, ErrIncompleteAccount
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if IsError(err, ErrInvalidCredentials) {
			u.logger.Debug("password mismatch for national id %s", nationalID)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}

	return NewIdentityFromUser(user), nil
}

// FindIdentityByIdentifier resolves an identity from its user id
func (u UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	id, err := uuid.Parse(identifier)
	if err != nil {
		return nil, ErrUserNotFound
	}

	user, err := u.store.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	return NewIdentityFromUser(user), nil
}
