package sso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MarkEmailVerifiedSQL clears the code in the same statement that flips
// the flag, it only matches while the code is still pending.
var MarkEmailVerifiedSQL = `UPDATE "users"
SET
	"email_verified" = TRUE,
	"verification_code" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"id" = ?
AND "email_verified" = FALSE
AND "verification_code" = ?;`

// SetPasswordHashSQL only applies to verified users without a password
var SetPasswordHashSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"id" = ?
AND "email_verified" = TRUE
AND "password_hash" IS NULL;`

// Users is the credential store
type Users interface {
	repository.Repository[*User]

	FindByNationalID(ctx context.Context, nationalID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindConflict(ctx context.Context, nationalID, email, phone string) (*User, error)
	FindConflictTx(ctx context.Context, tx bun.IDB, nationalID, email, phone string) (*User, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	Insert(ctx context.Context, user *User) (*User, error)
	InsertTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateColumns(ctx context.Context, user *User, columns ...string) (*User, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) (*User, error)

	MarkEmailVerified(ctx context.Context, id uuid.UUID, code string) (bool, error)
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (bool, error)
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) (bool, error)
	SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "national_id"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) FindByNationalID(ctx context.Context, nationalID string) (*User, error) {
	return a.findBy(ctx, a.db, "national_id", nationalID)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.findBy(ctx, a.db, "email", normalizeEmail(email))
}

func (a *users) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return a.findBy(ctx, a.db, "phone_number", phone)
}

func (a *users) FindConflict(ctx context.Context, nationalID, email, phone string) (*User, error) {
	return a.FindConflictTx(ctx, a.db, nationalID, email, phone)
}

// FindConflictTx returns the first record sharing any unique attribute.
// Returns ErrUserNotFound when the identity is free.
func (a *users) FindConflictTx(ctx context.Context, tx bun.IDB, nationalID, email, phone string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		WhereOr("?TableAlias.national_id = ?", strings.TrimSpace(nationalID)).
		WhereOr("?TableAlias.email = ?", normalizeEmail(email)).
		WhereOr("?TableAlias.phone_number = ?", strings.TrimSpace(phone)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, a.mapError(err, map[string]any{"national_id": nationalID})
	}
	return record, nil
}

func (a *users) GetByUUID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByUUIDTx(ctx, a.db, id)
}

func (a *users) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, ErrUserNotFound
	}

	if tx == bun.IDB(a.db) {
		record, err := a.Repository.GetByID(ctx, id.String())
		if err != nil {
			return nil, a.mapError(err, map[string]any{"id": id.String()})
		}
		return record, nil
	}

	return a.findBy(ctx, tx, "id", id)
}

func (a *users) Insert(ctx context.Context, user *User) (*User, error) {
	return a.InsertTx(ctx, a.db, user)
}

// InsertTx stores a new user. Unique constraint violations surface as
// ErrDuplicateIdentity.
func (a *users) InsertTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert user")
	}

	return user, nil
}

func (a *users) UpdateColumns(ctx context.Context, user *User, columns ...string) (*User, error) {
	return a.UpdateColumnsTx(ctx, a.db, user, columns...)
}

// UpdateColumnsTx writes the given columns of a single user. With no
// columns the whole record is written.
func (a *users) UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) (*User, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, ErrUserNotFound
	}

	q := tx.NewUpdate().Model(user).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	} else {
		q = q.ExcludeColumn("id", "national_id", "created_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (a *users) MarkEmailVerified(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	return a.MarkEmailVerifiedTx(ctx, a.db, id, code)
}

// MarkEmailVerifiedTx returns false when no pending record matched the code
func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	return a.execSingleRow(ctx, tx, MarkEmailVerifiedSQL, id, code)
}

func (a *users) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	return a.SetPasswordHashTx(ctx, a.db, id, hash)
}

// SetPasswordHashTx returns false when the user is not waiting for a password
func (a *users) SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) (bool, error) {
	if hash == "" {
		return false, ErrNoEmptyString
	}
	return a.execSingleRow(ctx, tx, SetPasswordHashSQL, hash, id)
}

func (a *users) execSingleRow(ctx context.Context, tx bun.IDB, query string, args ...any) (bool, error) {
	res, err := tx.NewRaw(query, args...).Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}

	return n == 1, nil
}

func (a *users) findBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return nil, ErrUserNotFound
		}
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, a.mapError(err, map[string]any{column: value})
	}

	return record, nil
}

func (a *users) mapError(err error, meta map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return ErrUserNotFound.Clone().WithMetadata(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query users")
}

func prepareUserDefaults(user *User) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = normalizeEmail(user.Email)
	user.NationalID = strings.TrimSpace(user.NationalID)
	user.PhoneNumber = strings.TrimSpace(user.PhoneNumber)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isUniqueViolation matches the messages of the sqlite and postgres drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed: unique")
}
