package sso

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetNationalID() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetExpiresAt() *time.Time
	GetData() map[string]any
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, nationalID, password string) (string, error)
	Verify(ctx context.Context, token string) (*User, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (Identity, error)
}

type LoginPayload interface {
	GetNationalID() string
	GetPassword() string
}

type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, payload LoginPayload) (string, error)
	Logout(c router.Context)
	GetRedirect(c router.Context) string
	RedirectWithToken(target, token string) (string, error)
	SetPendingRegistration(c router.Context, id uuid.UUID)
	PendingRegistration(c router.Context) (uuid.UUID, bool)
	ClearPendingRegistration(c router.Context)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	NationalID() string
	Email() string
	FullName() string
}

// TokenService issues and validates session tokens
type TokenService interface {
	Issue(identity Identity) (string, error)
	Validate(token string) (*JWTClaims, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetRedirectAllowedHosts() []string
	GetPublicBaseURL() string
	GetPhoneRegion() string
	GetSecureCookies() bool
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, nationalID, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// Mailer delivers verification codes out of band
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, fullName, code string) error
}

// ImageStore persists uploaded images and resolves their public URL
type ImageStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, filename string) error
	URL(filename string) string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SSO "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SSO "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SSO "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SSO "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
