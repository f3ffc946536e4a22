package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-sso/middleware/jwtware"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyToken(ctx context.Context, raw string) (any, error) {
	args := m.Called(ctx, raw)
	return args.Get(0), args.Error(1)
}

var errInvalid = errors.New("invalid token")

// newApp mounts a guarded handler on a go-router fiber server and
// returns the underlying app for app.Test
func newApp(cfg jwtware.Config) *fiber.App {
	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New()
		return app
	})

	hello := func(ctx router.Context) error {
		identity, _ := ctx.Locals("user").(string)
		return ctx.SendString("hello " + identity)
	}

	guard := jwtware.New(cfg)
	r := srv.Router()
	r.Get("/protected", hello, guard)
	r.Post("/protected", hello, guard)
	r.Get("/protected/:token", hello, guard)

	if i, ok := srv.(interface{ Init() }); ok {
		i.Init()
	}

	return app
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyToken", mock.Anything, "good").Return("alice", nil)
	verifier.On("VerifyToken", mock.Anything, "bad").Return(nil, errInvalid)

	app := newApp(jwtware.Config{Verifier: verifier})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer good")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello alice", readBody(t, resp))
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic good")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer bad")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	verifier.AssertExpectations(t)
}

func TestJWTWare_Extractors(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyToken", mock.Anything, "tok").Return("bob", nil)

	app := newApp(jwtware.Config{
		Verifier:    verifier,
		TokenLookup: "cookie:sso_token,query:token,param:token,form:token,body:token",
	})

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{
			name: "cookie",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				req.AddCookie(&http.Cookie{Name: "sso_token", Value: "tok"})
				return req
			},
		},
		{
			name: "query",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/protected?token=tok", nil)
			},
		},
		{
			name: "param",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/protected/tok", nil)
			},
		},
		{
			name: "form",
			req: func() *http.Request {
				form := url.Values{"token": {"tok"}}
				req := httptest.NewRequest(http.MethodPost, "/protected", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
				return req
			},
		},
		{
			name: "json body",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/protected", strings.NewReader(`{"token":"tok"}`))
				req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
				return req
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(tt.req())
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, "hello bob", readBody(t, resp))
		})
	}
}

func TestJWTWare_FilterFunction(t *testing.T) {
	verifier := new(MockVerifier)

	app := newApp(jwtware.Config{
		Verifier: verifier,
		Filter: func(c router.Context) bool {
			return c.Query("skip", "") == "1"
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected?skip=1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	verifier.AssertNotCalled(t, "VerifyToken", mock.Anything, mock.Anything)
}

func TestJWTWare_ErrorHandlerAndListeners(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyToken", mock.Anything, "tok").Return("carol", nil)

	listenerErr := errors.New("listener says no")
	var enriched any

	app := newApp(jwtware.Config{
		Verifier: verifier,
		ValidationListeners: []jwtware.ValidationListener{
			func(c router.Context, identity any) error {
				if c.Query("deny", "") == "1" {
					return listenerErr
				}
				return nil
			},
		},
		ContextEnricher: func(ctx context.Context, identity any) context.Context {
			enriched = identity
			return ctx
		},
		ErrorHandler: func(c router.Context, err error) error {
			return c.Status(http.StatusForbidden).SendString(err.Error())
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected?deny=1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, listenerErr.Error(), readBody(t, resp))
	assert.Nil(t, enriched)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "carol", enriched)
}

func TestJWTWare_RequiresVerifier(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}

func TestGetExtractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, cookie:jwt ,bogus, unknown:x,body:token")
	assert.Len(t, extractors, 3)
}

func TestExtractRawTokenFromContext_FirstMatchWins(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyToken", mock.Anything, "from-cookie").Return("dave", nil)

	app := newApp(jwtware.Config{
		Verifier:    verifier,
		TokenLookup: "cookie:sso_token,header:Authorization",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sso_token", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello dave", readBody(t, resp))
	verifier.AssertNotCalled(t, "VerifyToken", mock.Anything, "from-header")
}
