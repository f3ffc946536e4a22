package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "SSO_"

// Config is the process configuration, read once at startup and handed
// to the token service, store and HTTP layer.
type Config struct {
	Debug           bool          `env:"DEBUG"`
	Addr            string        `env:"ADDR" envDefault:":8080"`
	DatabaseDSN     string        `env:"DATABASE_DSN" envDefault:"file:sso.db?cache=shared"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	SigningKey      string   `env:"SIGNING_KEY"`
	SigningMethod   string   `env:"SIGNING_METHOD" envDefault:"HS256"`
	TokenExpiration int      `env:"TOKEN_EXPIRATION" envDefault:"3"`
	Issuer          string   `env:"ISSUER"`
	ContextKey      string   `env:"COOKIE_NAME" envDefault:"sso_token"`
	TokenLookup     string   `env:"TOKEN_LOOKUP" envDefault:"header:Authorization"`
	AuthScheme      string   `env:"AUTH_SCHEME" envDefault:"Bearer"`
	AllowedHosts    []string `env:"REDIRECT_ALLOWED_HOSTS" envSeparator:","`

	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	UploadDir     string `env:"UPLOAD_DIR" envDefault:"uploads"`
	PhoneRegion   string `env:"PHONE_REGION"`

	SecureCookies bool   `env:"SECURE_COOKIES"`
	CookieKey     string `env:"COOKIE_KEY"`
	CSRFKey       string `env:"CSRF_KEY"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`

	SMTP SMTP `envPrefix:"SMTP_"`
}

// SMTP holds mail delivery settings, delivery is logged only when Host is empty
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@localhost"`
}

// Load reads the optional dotenv files (".env" when none given) and
// then parses the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFromMap parses the given variables instead of the process environment
func LoadFromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.SigningMethod = strings.ToUpper(strings.TrimSpace(cfg.SigningMethod))
	cfg.AllowedHosts = normalizeHosts(cfg.AllowedHosts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.SigningMethod, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.TokenExpiration, validation.Required, validation.Min(1)),
		validation.Field(&c.ContextKey, validation.Required),
		validation.Field(&c.PublicBaseURL, validation.Required, is.URL),
		validation.Field(&c.CookieKey, validation.By(validKey(32))),
		validation.Field(&c.CSRFKey, validation.Length(32, 0)),
	)
}

func validKey(size int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return errors.New("must be base64 encoded")
		}
		if len(raw) != size {
			return fmt.Errorf("must decode to %d bytes", size)
		}
		return nil
	}
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetSigningMethod() string {
	return c.SigningMethod
}

func (c Config) GetContextKey() string {
	return c.ContextKey
}

func (c Config) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c Config) GetTokenLookup() string {
	return c.TokenLookup
}

func (c Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c Config) GetIssuer() string {
	return c.Issuer
}

func (c Config) GetRedirectAllowedHosts() []string {
	return c.AllowedHosts
}

func (c Config) GetPublicBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/")
}

func (c Config) GetPhoneRegion() string {
	return c.PhoneRegion
}

func (c Config) GetSecureCookies() bool {
	return c.SecureCookies
}
