package sso_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-sso"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuther(t *testing.T, repo sso.RepositoryManager) *sso.Auther {
	t.Helper()
	tokens, err := sso.NewTokenService([]byte(testSigningKey), "HS256", 3)
	require.NoError(t, err)
	return sso.NewAuthenticator(sso.NewUserProvider(repo.Users()), tokens)
}

func TestUserProvider_VerifyIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	provider := sso.NewUserProvider(repo.Users())

	user := activeUser(t, repo, exampleRegistration(), "Pw1")

	pending := exampleRegistration()
	pending.NationalID, pending.Email, pending.PhoneNumber = "200", "b@x.com", "777"
	registerUser(t, repo, pending, "222222")

	identity, err := provider.VerifyIdentity(ctx, "100", "Pw1")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())
	assert.Equal(t, "100", identity.NationalID())
	assert.Equal(t, "a@x.com", identity.Email())
	assert.Equal(t, "Ada Lovelace", identity.FullName())

	_, err = provider.VerifyIdentity(ctx, "100", "wrong")
	assert.True(t, sso.IsError(err, sso.ErrInvalidCredentials))

	_, err = provider.VerifyIdentity(ctx, "999", "Pw1")
	assert.True(t, sso.IsError(err, sso.ErrInvalidCredentials))

	_, err = provider.VerifyIdentity(ctx, "200", "anything")
	assert.True(t, sso.IsError(err, sso.ErrIncompleteAccount))

	found, err := provider.FindIdentityByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), found.ID())

	_, err = provider.FindIdentityByIdentifier(ctx, "not-a-uuid")
	assert.True(t, sso.IsError(err, sso.ErrUserNotFound))
}

func TestAuther_LoginAndVerify(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	auther := newTestAuther(t, repo)

	user := activeUser(t, repo, exampleRegistration(), "Pw1")

	token, err := auther.Login(ctx, "100", "Pw1")
	require.NoError(t, err)

	verified, err := auther.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), session.GetUserID())
	assert.Equal(t, "100", session.GetNationalID())

	_, err = auther.Login(ctx, "100", "nope")
	assert.True(t, sso.IsError(err, sso.ErrInvalidCredentials))

	_, err = auther.Verify(ctx, token+"x")
	assert.True(t, sso.IsError(err, sso.ErrTokenInvalid))
}

func TestAuther_VerifyUnknownUser(t *testing.T) {
	repo := newTestRepo(t)
	auther := newTestAuther(t, repo)

	token, err := auther.TokenService().Issue(stubIdentity{id: uuid.NewString(), nationalID: "100"})
	require.NoError(t, err)

	_, err = auther.Verify(context.Background(), token)
	assert.True(t, sso.IsError(err, sso.ErrTokenInvalid))
}
