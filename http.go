package sso

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/goliatone/go-sso/middleware/jwtware"
	"github.com/google/uuid"
)

const (
	// DefaultContextKey is the Locals key holding the current *User
	DefaultContextKey = "current_user"

	pendingRegistrationCookie = "sso_pending_registration"
	pendingRegistrationTTL    = time.Hour
)

type Middleware interface {
	ProtectedRoute(errorHandler router.ErrorHandler) router.MiddlewareFunc
	APIGuard() router.MiddlewareFunc
}

type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler router.ErrorHandler
	ErrorHandler     router.ErrorHandler

	// ValidationListeners run on every verified session, both gates
	ValidationListeners []ValidationListener
}

var _ HTTPAuthenticator = (*RouteAuthenticator)(nil)

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	if auther == nil {
		return nil, errors.New("authenticator is required", errors.CategoryInternal)
	}

	cookieDuration := DefaultTokenExpiration * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	a.ValidationListeners = []ValidationListener{RequireCompletedRegistration}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Verifier exposes Verify to the session gate
func (a *RouteAuthenticator) Verifier() jwtware.TokenVerifier {
	return jwtware.TokenVerifierFunc(func(ctx context.Context, raw string) (any, error) {
		return a.auth.Verify(ctx, raw)
	})
}

// ProtectedRoute gates web pages. The token is read from the session
// cookie first, then from the configured lookup.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler router.ErrorHandler) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.MakeClientRouteAuthErrorHandler(false)
	}

	lookup := "cookie:" + a.cfg.GetContextKey()
	if extra := a.cfg.GetTokenLookup(); extra != "" {
		lookup += "," + extra
	}

	cfg := jwtware.Config{
		ErrorHandler:    errorHandler,
		ContextKey:      DefaultContextKey,
		TokenLookup:     lookup,
		AuthScheme:      a.cfg.GetAuthScheme(),
		Verifier:        a.Verifier(),
		ContextEnricher: enrichUserContext,
	}
	RegisterValidationListeners(&cfg, a.ValidationListeners...)

	return jwtware.New(cfg)
}

// APIGuard gates JSON endpoints, failures are reported as 401 JSON
func (a *RouteAuthenticator) APIGuard() router.MiddlewareFunc {
	cfg := jwtware.Config{
		ErrorHandler: func(c router.Context, err error) error {
			if !IsError(err, ErrTokenExpired) {
				err = ErrTokenInvalid
			}
			return SendAPIError(c, err)
		},
		ContextKey:      DefaultContextKey,
		TokenLookup:     "header:" + router.HeaderAuthorization + ",body:token",
		AuthScheme:      a.cfg.GetAuthScheme(),
		Verifier:        a.Verifier(),
		ContextEnricher: enrichUserContext,
	}
	RegisterValidationListeners(&cfg, a.ValidationListeners...)

	return jwtware.New(cfg)
}

func enrichUserContext(ctx context.Context, identity any) context.Context {
	if user, ok := identity.(*User); ok {
		return WithContext(ctx, user)
	}
	return ctx
}

// Login authenticates the payload and stores the token in the session cookie
func (a *RouteAuthenticator) Login(c router.Context, payload LoginPayload) (string, error) {
	token, err := a.auth.Login(c.Context(), payload.GetNationalID(), payload.GetPassword())
	if err != nil {
		a.Logger.Debug("login failed for national id %s: %v", payload.GetNationalID(), err)
		return "", err
	}

	a.setCookieToken(c, token, a.cookieDuration)
	return token, nil
}

func (a *RouteAuthenticator) Logout(c router.Context) {
	a.cookieDel(c, a.cfg.GetContextKey())
}

// MakeClientRouteAuthErrorHandler redirects to the login page with a
// message. With optional set the request proceeds anonymously.
func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) router.ErrorHandler {
	return func(c router.Context, err error) error {
		var richErr *errors.Error

		switch {
		case IsTokenExpiredError(err):
			richErr = ErrTokenExpired
		case IsError(err, ErrTokenInvalid):
			richErr = ErrTokenInvalid
		case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
			richErr = ErrTokenInvalid
		default:
			if !errors.As(err, &richErr) {
				richErr = errors.Wrap(err, errors.CategoryAuth, "invalid authentication token").
					WithCode(errors.CodeUnauthorized)
			}
		}

		if optional {
			a.Logger.Info("optional auth failed, proceeding: %s", richErr.Message)
			return c.Next()
		}

		return a.ErrorHandler(c, richErr)
	}
}

// GetRedirect returns the relying party target from the query
// (redirect_url or next) or the submitted form
func (a *RouteAuthenticator) GetRedirect(c router.Context) string {
	for _, key := range []string{"redirect_url", "next"} {
		if v := strings.TrimSpace(c.Query(key, "")); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.FormValue("redirect_url"))
}

// RedirectWithToken validates the target against the allow list and
// appends the token
func (a *RouteAuthenticator) RedirectWithToken(target, token string) (string, error) {
	target, err := ValidateRedirect(target, a.cfg.GetRedirectAllowedHosts())
	if err != nil {
		return "", err
	}
	return AppendToken(target, token)
}

func (a *RouteAuthenticator) SetPendingRegistration(c router.Context, id uuid.UUID) {
	a.setCookie(c, pendingRegistrationCookie, id.String(), pendingRegistrationTTL)
}

func (a *RouteAuthenticator) PendingRegistration(c router.Context) (uuid.UUID, bool) {
	raw := c.Cookies(pendingRegistrationCookie)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (a *RouteAuthenticator) ClearPendingRegistration(c router.Context) {
	a.cookieDel(c, pendingRegistrationCookie)
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	a.setCookie(c, a.cfg.GetContextKey(), val, duration)
}

func (a *RouteAuthenticator) setCookie(c router.Context, name, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	message := "please log in to continue"
	if IsTokenExpiredError(err) {
		message = "session expired, please log in again"
	}

	a.Logger.Info("authentication error on %s, redirecting to login: %v", c.OriginalURL(), err)

	a.Logout(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return flash.WithError(c, FlashMessage(FlashError, message)).Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "an unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info("middleware error handler: %s (%s) %s", richErr.Message, richErr.Category, print.MaybePrettyJSON(richErr.Metadata))

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(HTTPStatus(richErr)).Render("errors/500", ViewData(c, router.ViewContext{
			"message": PublicMessage(richErr),
		}))
	}
}
