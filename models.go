package sso

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BirthDateLayout is the wire and form format for birth dates
const BirthDateLayout = "2006-01-02"

// RegistrationState is derived from the user record
type RegistrationState = string

const (
	// StateSubmitted profile stored, email pending verification
	StateSubmitted RegistrationState = "submitted"
	// StateEmailVerified email verified, password pending
	StateEmailVerified RegistrationState = "email_verified"
	// StatePasswordSet terminal state, user can log in
	StatePasswordSet RegistrationState = "password_set"
)

// User is the user model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FullName         string     `bun:"full_name,notnull" json:"full_name"`
	NationalID       string     `bun:"national_id,notnull,unique" json:"national_id"`
	BirthDate        *time.Time `bun:"birth_date,type:date" json:"birth_date,omitempty"`
	Nationality      string     `bun:"nationality" json:"nationality,omitempty"`
	Gender           string     `bun:"gender" json:"gender,omitempty"`
	Qualification    string     `bun:"qualification" json:"qualification,omitempty"`
	BirthCity        string     `bun:"birth_city" json:"birth_city,omitempty"`
	BirthCountry     string     `bun:"birth_country" json:"birth_country,omitempty"`
	MaritalStatus    string     `bun:"marital_status" json:"marital_status,omitempty"`
	BloodType        string     `bun:"blood_type" json:"blood_type,omitempty"`
	PhoneNumber      string     `bun:"phone_number,notnull,unique" json:"phone_number"`
	Email            string     `bun:"email,notnull,unique" json:"email"`
	ProfileImage     string     `bun:"profile_image" json:"profile_image,omitempty"`
	FingerprintImage string     `bun:"fingerprint_image" json:"fingerprint_image,omitempty"`
	PasswordHash     string     `bun:"password_hash,nullzero" json:"-"`
	EmailVerified    bool       `bun:"email_verified,notnull,default:false" json:"email_verified"`
	VerificationCode string     `bun:"verification_code,nullzero" json:"-"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel keeps timestamps current
func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now()
	switch query.(type) {
	case *bun.InsertQuery:
		if u.CreatedAt == nil {
			u.CreatedAt = &now
		}
		u.UpdatedAt = &now
	case *bun.UpdateQuery:
		u.UpdatedAt = &now
	}
	return nil
}

// State returns where the user is in the registration flow
func (u *User) State() RegistrationState {
	switch {
	case u.EmailVerified && u.PasswordHash != "":
		return StatePasswordSet
	case u.EmailVerified:
		return StateEmailVerified
	default:
		return StateSubmitted
	}
}

// HasPassword is true once the create password step completed
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// BirthDateString formats the birth date, empty if unknown
func (u *User) BirthDateString() string {
	if u.BirthDate == nil {
		return ""
	}
	return u.BirthDate.Format(BirthDateLayout)
}

// ParseBirthDate parses a YYYY-MM-DD value
func ParseBirthDate(value string) (time.Time, error) {
	return time.Parse(BirthDateLayout, value)
}

// ProfileUpdate holds the only fields a user may edit after registration
type ProfileUpdate struct {
	Nationality   string `json:"nationality"`
	Qualification string `json:"qualification"`
	MaritalStatus string `json:"marital_status"`
	PhoneNumber   string `json:"phone_number"`
}

// Apply copies the editable fields into the user and returns the
// changed column names
func (p ProfileUpdate) Apply(u *User) []string {
	columns := []string{}
	set := func(column string, dst *string, val string) {
		if *dst != val {
			*dst = val
			columns = append(columns, column)
		}
	}
	set("nationality", &u.Nationality, p.Nationality)
	set("qualification", &u.Qualification, p.Qualification)
	set("marital_status", &u.MaritalStatus, p.MaritalStatus)
	set("phone_number", &u.PhoneNumber, p.PhoneNumber)
	return columns
}
