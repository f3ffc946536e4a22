package sso_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-sso"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredUser(nationalID, email, phone string) *sso.User {
	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	return &sso.User{
		FullName:         "Ada Lovelace",
		NationalID:       nationalID,
		BirthDate:        &birth,
		PhoneNumber:      phone,
		Email:            email,
		VerificationCode: "482193",
	}
}

func TestUsersInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	created, err := users.Insert(ctx, newStoredUser(" 100 ", " A@X.com ", "555"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "100", created.NationalID)
	assert.Equal(t, "a@x.com", created.Email)

	t.Run("by id", func(t *testing.T) {
		found, err := users.GetByUUID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", found.FullName)
		assert.Equal(t, "1990-05-17", found.BirthDateString())
		assert.Equal(t, sso.StateSubmitted, found.State())
		assert.False(t, found.HasPassword())
	})

	t.Run("by national id", func(t *testing.T) {
		found, err := users.FindByNationalID(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("by email is case insensitive", func(t *testing.T) {
		found, err := users.FindByEmail(ctx, "A@X.COM")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("by phone", func(t *testing.T) {
		found, err := users.FindByPhone(ctx, "555")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("generic repository lookups", func(t *testing.T) {
		var generic repository.Repository[*sso.User] = users

		found, err := generic.GetByID(ctx, created.ID.String())
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		found, err = generic.GetByIdentifier(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("missing records", func(t *testing.T) {
		_, err := users.GetByUUID(ctx, uuid.New())
		assert.True(t, sso.IsError(err, sso.ErrUserNotFound))

		_, err = users.FindByNationalID(ctx, "999")
		assert.True(t, sso.IsError(err, sso.ErrUserNotFound))

		_, err = users.FindByNationalID(ctx, "   ")
		assert.True(t, sso.IsError(err, sso.ErrUserNotFound))
	})
}

func TestUsersUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	_, err := users.Insert(ctx, newStoredUser("100", "a@x.com", "555"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input *sso.User
	}{
		{"same national id", newStoredUser("100", "b@x.com", "556")},
		{"same email", newStoredUser("101", "a@x.com", "557")},
		{"same phone", newStoredUser("102", "c@x.com", "555")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.Insert(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, sso.IsError(err, sso.ErrDuplicateIdentity))
		})
	}
}

func TestUsersFindConflict(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	existing, err := users.Insert(ctx, newStoredUser("100", "a@x.com", "555"))
	require.NoError(t, err)

	found, err := users.FindConflict(ctx, "200", "A@x.com", "999")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, found.ID)

	_, err = users.FindConflict(ctx, "200", "b@x.com", "999")
	assert.True(t, sso.IsError(err, sso.ErrUserNotFound))
}

func TestUsersUpdateColumns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	user, err := users.Insert(ctx, newStoredUser("100", "a@x.com", "555"))
	require.NoError(t, err)

	user.Qualification = "PhD"
	user.FullName = "Changed"
	_, err = users.UpdateColumns(ctx, user, "qualification")
	require.NoError(t, err)

	stored, err := users.GetByUUID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "PhD", stored.Qualification)
	assert.Equal(t, "Ada Lovelace", stored.FullName)

	_, err = users.UpdateColumns(ctx, &sso.User{ID: uuid.New()}, "qualification")
	assert.True(t, sso.IsError(err, sso.ErrUserNotFound))
}

func TestUsersMarkEmailVerified(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	user, err := users.Insert(ctx, newStoredUser("100", "a@x.com", "555"))
	require.NoError(t, err)

	ok, err := users.MarkEmailVerified(ctx, user.ID, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := users.GetByUUID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)
	assert.Equal(t, "482193", stored.VerificationCode)

	ok, err = users.MarkEmailVerified(ctx, user.ID, "482193")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err = users.GetByUUID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	assert.Empty(t, stored.VerificationCode)
	assert.Equal(t, sso.StateEmailVerified, stored.State())

	ok, err = users.MarkEmailVerified(ctx, user.ID, "482193")
	require.NoError(t, err)
	assert.False(t, ok, "code is single use")
}

func TestUsersSetPasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	user, err := users.Insert(ctx, newStoredUser("100", "a@x.com", "555"))
	require.NoError(t, err)

	ok, err := users.SetPasswordHash(ctx, user.ID, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok, "email must be verified first")

	_, err = users.MarkEmailVerified(ctx, user.ID, "482193")
	require.NoError(t, err)

	ok, err = users.SetPasswordHash(ctx, user.ID, "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.SetPasswordHash(ctx, user.ID, "hash-2")
	require.NoError(t, err)
	assert.False(t, ok, "password is set once")

	stored, err := users.GetByUUID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", stored.PasswordHash)
	assert.Equal(t, sso.StatePasswordSet, stored.State())

	_, err = users.SetPasswordHash(ctx, user.ID, "")
	assert.ErrorIs(t, err, sso.ErrNoEmptyString)
}
