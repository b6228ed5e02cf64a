// Package config loads authkit settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Mode selects development or production behavior
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// developmentSecret signs tokens when AUTH_SECRET is unset outside production
const developmentSecret = "authkit-development-secret-do-not-use"

// DefaultEnvFiles are loaded in order; values already set are never overridden
var DefaultEnvFiles = []string{".env.local", ".env"}

type Config struct {
	Mode               Mode          `env:"APP_ENV" envDefault:"development"`
	DatabaseURL        string        `env:"DATABASE_URL" envDefault:"file:authkit.db?cache=shared"`
	DatabaseName       string        `env:"DATABASE_NAME"`
	Secret             string        `env:"AUTH_SECRET"`
	BaseURL            string        `env:"AUTH_BASE_URL" envDefault:"http://localhost:3000"`
	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"`
	SessionCacheMaxAge time.Duration `env:"SESSION_CACHE_MAX_AGE" envDefault:"720h"`
	RedisURL           string        `env:"REDIS_URL"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":3000"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"12"`
	CookieName         string        `env:"AUTH_COOKIE_NAME" envDefault:"session_token"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the env files, then the process environment
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	if err := loadEnvFiles(files...); err != nil {
		return nil, err
	}
	return Parse(env.Options{})
}

// Parse builds a Config from opts without touching env files
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse env")
	}

	if cfg.Secret == "" && !cfg.IsProduction() {
		cfg.Secret = developmentSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "load env file "+f)
		}
	}
	return nil
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.In(Development, Production).Error("APP_ENV must be development or production")),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.Secret,
			validation.Required.Error("AUTH_SECRET is required"),
			validation.When(c.IsProduction(), validation.Length(32, 0).Error("AUTH_SECRET must be at least 32 characters")),
		),
		validation.Field(&c.SessionMaxAge, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.SessionCacheMaxAge, validation.Min(time.Duration(0))),
		validation.Field(&c.BcryptCost, validation.Min(4), validation.Max(31)),
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.CORSAllowedOrigins,
			validation.Required.Error("CORS_ALLOWED_ORIGINS is required"),
			validation.Each(validation.By(validateOrigin)),
		),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

// validateOrigin accepts scheme://host origins, optionally with a "*."
// subdomain wildcard. A bare "*" is refused because the HTTP server sends
// credentialed CORS responses.
func validateOrigin(value any) error {
	origin, _ := value.(string)
	origin = strings.TrimSpace(origin)
	if origin == "*" {
		return validation.NewError("validation_cors_wildcard", "CORS_ALLOWED_ORIGINS cannot contain \"*\"")
	}

	origin = strings.Replace(origin, "://*.", "://", 1)
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" || strings.Contains(u.Host, "*") ||
		(u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return validation.NewError("validation_cors_origin", "CORS_ALLOWED_ORIGINS entries must look like https://app.example.com")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Mode == Production
}

// DatabaseURI is DATABASE_URL with DATABASE_NAME spliced in when set
func (c Config) DatabaseURI() string {
	if c.DatabaseName == "" {
		return c.DatabaseURL
	}
	return BuildDatabaseURI(c.DatabaseURL, c.DatabaseName)
}

// BuildDatabaseURI places name as the path of uri. A "/?" marker is replaced,
// a trailing slash is extended, anything else gets "/name" appended.
func BuildDatabaseURI(uri, name string) string {
	switch {
	case strings.Contains(uri, "/?"):
		return strings.Replace(uri, "/?", "/"+name+"?", 1)
	case strings.HasSuffix(uri, "/"):
		return uri + name
	default:
		return uri + "/" + name
	}
}

func (c Config) GetSigningKey() string {
	return c.Secret
}

func (c Config) GetIssuer() string {
	return c.BaseURL
}

func (c Config) GetAudience() []string {
	return []string{c.BaseURL}
}

func (c Config) GetSessionMaxAge() time.Duration {
	return c.SessionMaxAge
}

func (c Config) GetSessionCacheMaxAge() time.Duration {
	return c.SessionCacheMaxAge
}

func (c Config) GetCookieName() string {
	return c.CookieName
}

func (c Config) GetSecureCookies() bool {
	return c.IsProduction()
}

func (c Config) GetPasswordCost() int {
	return c.BcryptCost
}
