package sso

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/goliatone/go-sso/middleware/csrf"
)

const (
	CSRFContextKey = csrf.DefaultContextKey
	CSRFFormField  = csrf.DefaultFormFieldName

	// APIPrefix groups the relying party endpoints, exempt from CSRF
	APIPrefix = "/api"
)

type ServerConfig struct {
	AppName string
	Views   fiber.Views
	Logger  Logger
	// CookieKey is a base64 encoded 32 byte key, cookies are sent in
	// clear text when empty
	CookieKey string
	// CSRFKey signs form tokens, CSRF protection is off when empty
	CSRFKey     []byte
	UploadDir   string
	AccessLog   bool
	BodyLimit   int
	IdleTimeout time.Duration
}

// Server wraps the router adapter and keeps a handle on the fiber app
// for testing and graceful shutdown
type Server struct {
	router.Server[*fiber.App]
	app *fiber.App
}

// NewServer builds the fiber backed router with the shared middleware stack
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	if cfg.BodyLimit == 0 {
		cfg.BodyLimit = 10 * 1024 * 1024
	}

	s := &Server{}
	s.Server = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           cfg.AppName,
			Views:             cfg.Views,
			PassLocalsToViews: true,
			BodyLimit:         cfg.BodyLimit,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorHandler:      NewAppErrorHandler(cfg.Logger),
		}))

		app.Use(recover.New())
		app.Use(requestid.New())

		if cfg.AccessLog {
			app.Use(logger.New())
		}

		if cfg.CookieKey != "" {
			app.Use(encryptcookie.New(encryptcookie.Config{
				Key: cfg.CookieKey,
			}))
		}

		s.app = app
		return app
	})

	r := s.Router()
	r.Use(mflash.New(mflash.ConfigDefault))

	if len(cfg.CSRFKey) > 0 {
		r.Use(csrf.New(csrf.Config{
			SecureKey: cfg.CSRFKey,
			Skip: func(c router.Context) bool {
				return strings.HasPrefix(c.Path(), APIPrefix+"/")
			},
		}))
		csrf.RegisterRoutes(r)
	}

	if cfg.UploadDir != "" {
		r.Static("/static/uploads", cfg.UploadDir)
	}

	return s
}

// App returns the underlying fiber app once routes are mounted
func (s *Server) App() *fiber.App {
	if i, ok := s.Server.(interface{ Init() }); ok {
		i.Init()
	}
	return s.app
}

// Shutdown stops accepting connections and waits for in flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}

// NewAppErrorHandler answers JSON for API routes and renders the error
// page for everything else
func NewAppErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			category := goerrors.CategoryBadInput
			if fiberErr.Code >= fiber.StatusInternalServerError {
				category = goerrors.CategoryInternal
			}
			err = goerrors.New(fiberErr.Message, category).
				WithTextCode("HTTP_ERROR").
				WithCode(fiberErr.Code)
		}

		status := HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request %s %s failed: %v", c.Method(), c.OriginalURL(), err)
		}

		if strings.HasPrefix(c.Path(), APIPrefix+"/") {
			return c.Status(status).JSON(APIError{
				Error: PublicMessage(err),
				Code:  TextCode(err),
			})
		}

		if rerr := c.Status(status).Render("errors/500", fiber.Map{
			"message": PublicMessage(err),
		}); rerr != nil {
			return c.Status(status).SendString(PublicMessage(err))
		}
		return nil
	}
}
