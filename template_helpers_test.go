package sso_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/goliatone/go-sso"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouterApp(fn func(r router.Router[*fiber.App])) *fiber.App {
	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New()
		return app
	})

	fn(srv.Router())

	if i, ok := srv.(interface{ Init() }); ok {
		i.Init()
	}
	return app
}

func TestViewData_FlashRoundTrip(t *testing.T) {
	app := newRouterApp(func(r router.Router[*fiber.App]) {
		r.Use(mflash.New(mflash.ConfigDefault))
		r.Get("/set", func(c router.Context) error {
			return flash.WithSuccess(c, sso.FlashMessage(sso.FlashSuccess, "saved")).
				Redirect("/view", http.StatusSeeOther)
		})
		r.Get("/view", func(c router.Context) error {
			return c.JSON(router.StatusOK, sso.ViewData(c, router.ViewContext{"page": "view"}))
		})
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/set", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/view", nil)
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	resp, err = app.Test(req)
	require.NoError(t, err)

	data := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "view", data["page"])
	assert.Equal(t, false, data["is_authenticated"])
	assert.Equal(t, sso.CSRFFormField, data["csrf_field"])

	msg, ok := data["flash"].(map[string]any)
	require.True(t, ok, "expected a flash message, got %v", data["flash"])
	assert.Equal(t, sso.FlashSuccess, msg["kind"])
	assert.Equal(t, "saved", msg["message"])
}

func TestViewData_FlashFromLocals(t *testing.T) {
	tests := []struct {
		name  string
		local any
		want  bool
	}{
		{"view context", sso.FlashMessage(sso.FlashError, "nope"), true},
		{"plain map", map[string]any{"kind": sso.FlashError, "message": "nope"}, true},
		{"empty message", sso.FlashMessage(sso.FlashError, ""), false},
		{"unexpected type", "nope", false},
		{"missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newRouterApp(func(r router.Router[*fiber.App]) {
				r.Get("/", func(c router.Context) error {
					if tt.local != nil {
						c.Locals(sso.FlashContextKey, tt.local)
					}
					return c.JSON(router.StatusOK, sso.ViewData(c, nil))
				})
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)

			data := decodeBody[map[string]any](t, resp)
			_, ok := data["flash"]
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestViewData_CurrentUser(t *testing.T) {
	app := newRouterApp(func(r router.Router[*fiber.App]) {
		r.Get("/", func(c router.Context) error {
			c.Locals(sso.DefaultContextKey, &sso.User{FullName: "Ada Lovelace"})
			c.Locals(sso.CSRFContextKey, "tok")
			data := sso.ViewData(c, nil)

			user, ok := data[sso.TemplateUserKey].(*sso.User)
			if !ok || user.FullName != "Ada Lovelace" || data["is_authenticated"] != true || data["csrf_token"] != "tok" {
				return c.Status(router.StatusInternalServerError).SendString("unexpected view data")
			}
			return c.SendString("ok")
		})
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestViewData_DataOverridesGlobals(t *testing.T) {
	app := newRouterApp(func(r router.Router[*fiber.App]) {
		r.Get("/", func(c router.Context) error {
			return c.JSON(router.StatusOK, sso.ViewData(c, router.ViewContext{"csrf_field": "custom"}))
		})
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "custom", decodeBody[map[string]any](t, resp)["csrf_field"])
}
