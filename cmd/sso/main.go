package main

import (
	"context"
	"crypto/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-sso"
	"github.com/goliatone/go-sso/config"
	"github.com/goliatone/go-sso/logging"
	"github.com/goliatone/go-sso/mailer"
	"github.com/goliatone/go-sso/storage"
	"github.com/uptrace/bun"
)

type App struct {
	config *config.Config
	logger *logging.ZapLogger
	bunDB  *bun.DB
	repo   sso.RepositoryManager
	tokens *sso.TokenServiceImpl
	auth   *sso.Auther
	auther *sso.RouteAuthenticator
	mailer sso.Mailer
	images *storage.LocalStorage
	srv    *sso.Server
}

func (a *App) GetLogger(name string) sso.Logger {
	return a.logger.Named(name)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	lgr, err := logging.NewZapLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer lgr.Sync()

	if cfg.Debug {
		redacted := *cfg
		redacted.SigningKey = "***"
		redacted.CookieKey = "***"
		redacted.CSRFKey = "***"
		redacted.SMTP.Password = "***"
		lgr.Debug("config: %s", print.MaybePrettyJSON(redacted))
	}

	ctx := context.Background()

	app := &App{
		config: cfg,
		logger: lgr,
	}

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithCollaborators,
		WithAuth,
		WithHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			lgr.Error("startup failed: %v", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := app.srv.Serve(cfg.Addr); err != nil {
			lgr.Error("http server stopped: %v", err)
		}
	}()

	sig := WaitExitSignal()
	lgr.Info("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http shutdown: %v", err)
	}

	if err := app.bunDB.Close(); err != nil {
		lgr.Error("close database: %v", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := openDatabase(app.config.DatabaseDSN, app.config.Debug)
	if err != nil {
		return err
	}

	app.bunDB = db
	app.repo = sso.NewRepositoryManager(app.bunDB)

	if err := app.repo.Validate(); err != nil {
		return err
	}

	return app.repo.CreateSchema(ctx)
}

func WithCollaborators(ctx context.Context, app *App) error {
	if app.config.SMTP.Host != "" {
		app.mailer = mailer.NewSMTPMailer(mailer.Config{
			Host:     app.config.SMTP.Host,
			Port:     app.config.SMTP.Port,
			Username: app.config.SMTP.Username,
			Password: app.config.SMTP.Password,
			From:     app.config.SMTP.From,
		})
	} else {
		app.logger.Warn("SSO_SMTP_HOST not set, verification codes will only be logged")
		app.mailer = mailer.NewLogMailer(app.logger.Named("mailer"))
	}

	images, err := storage.NewLocalStorage(app.config.UploadDir, app.config.GetPublicBaseURL())
	if err != nil {
		return err
	}
	app.images = images

	return nil
}

func WithAuth(ctx context.Context, app *App) error {
	tokens, err := sso.NewTokenServiceFromConfig(app.config,
		sso.WithTokenLogger(app.GetLogger("token")),
	)
	if err != nil {
		return err
	}
	app.tokens = tokens

	provider := sso.NewUserProvider(app.repo.Users()).
		WithLogger(app.GetLogger("provider"))

	app.auth = sso.NewAuthenticator(provider, tokens).
		WithLogger(app.GetLogger("auth"))

	auther, err := sso.NewHTTPAuthenticator(app.auth, app.config)
	if err != nil {
		return err
	}
	app.auther = auther.WithLogger(app.GetLogger("http"))

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	var csrfKey []byte
	if app.config.CSRFKey != "" {
		csrfKey = []byte(app.config.CSRFKey)
	} else {
		app.logger.Warn("SSO_CSRF_KEY not set, using a random per process key")
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			return err
		}
	}

	app.srv = sso.NewServer(sso.ServerConfig{
		AppName:   "sso",
		Views:     sso.NewViewEngine(app.config.Debug),
		Logger:    app.GetLogger("server"),
		CookieKey: app.config.CookieKey,
		CSRFKey:   csrfKey,
		UploadDir: app.images.Dir(),
		AccessLog: true,
	})

	if app.config.CookieKey == "" {
		app.logger.Warn("SSO_COOKIE_KEY not set, cookies are not encrypted")
	}

	registerUser := sso.NewRegisterUserHandler(app.repo, app.mailer, app.images,
		sso.WithRegisterLogger(app.GetLogger("register")),
		sso.WithPhoneRegion(app.config.GetPhoneRegion()),
	)

	stateMachine := sso.NewRegistrationStateMachine(app.repo.Users(),
		sso.WithStateMachineLogger(app.GetLogger("registration")),
	)

	sso.RegisterAPIRoutes(app.srv.Router().Group(sso.APIPrefix), func(c *sso.APIController) *sso.APIController {
		c.Debug = app.config.Debug
		c.Logger = app.GetLogger("api")
		c.Repo = app.repo
		c.Auth = app.auth
		c.Tokens = app.tokens
		c.Images = app.images
		c.Guard = app.auther
		return c
	})

	sso.RegisterAuthRoutes(app.srv.Router(), func(c *sso.AuthController) *sso.AuthController {
		c.Debug = app.config.Debug
		c.Logger = app.GetLogger("web")
		c.Repo = app.repo
		c.Auther = app.auther
		c.Images = app.images
		c.ErrorHandler = app.auther.ErrorHandler
		c.RegisterUser = registerUser
		c.VerifyEmail = sso.NewVerifyEmailHandler(app.repo, stateMachine)
		c.CreatePassword = sso.NewCreatePasswordHandler(app.repo, stateMachine)
		c.UpdateProfile = sso.NewUpdateProfileHandler(app.repo, app.config.GetPhoneRegion())
		return c
	})

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
