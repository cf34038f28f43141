// Package config loads riffid settings from an optional YAML file and RIFF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/riffid/internal/principal"
)

// EnvPrefix prefixes every environment override, e.g. RIFF_JWT_SECRET.
const EnvPrefix = "RIFF"

// Minimum secret lengths.
const (
	MinIssuerSecretLen = 32
	MinJWTSecretLen    = 64
)

// Config is the complete process configuration.
type Config struct {
	Issuer   IssuerConfig   `mapstructure:"issuer"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Log      LogConfig      `mapstructure:"log"`
}

// IssuerConfig identifies the token issuer. Secret keys the subject cipher.
type IssuerConfig struct {
	Secret string `mapstructure:"secret"`
	URI    string `mapstructure:"uri"`
}

// JWTConfig controls signing and lifetimes. Validities are in seconds.
type JWTConfig struct {
	Secret                    string `mapstructure:"secret"`
	Authorities               string `mapstructure:"authorities"`
	Audience                  string `mapstructure:"audience"`
	TokenValiditySeconds      int64  `mapstructure:"token_validity_seconds"`
	RememberMeValiditySeconds int64  `mapstructure:"remember_me_validity_seconds"`
	RefreshValiditySeconds    int64  `mapstructure:"refresh_validity_seconds"`
}

// TokenValidity is the standard access token lifetime.
func (j JWTConfig) TokenValidity() time.Duration {
	return time.Duration(j.TokenValiditySeconds) * time.Second
}

// RememberMeValidity is the access token lifetime when remember-me is requested.
func (j JWTConfig) RememberMeValidity() time.Duration {
	return time.Duration(j.RememberMeValiditySeconds) * time.Second
}

// RefreshValidity is the refresh token lifetime.
func (j JWTConfig) RefreshValidity() time.Duration {
	return time.Duration(j.RefreshValiditySeconds) * time.Second
}

// LoaderConfig selects the principal loader strategy. CacheSize 0 disables caching.
type LoaderConfig struct {
	Name      string        `mapstructure:"name"`
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	Local     LocalConfig   `mapstructure:"local"`
}

// LocalConfig feeds the "local" strategy. Without principals it only echoes token claims.
type LocalConfig struct {
	Principals []LocalPrincipal `mapstructure:"principals"`
}

// LocalPrincipal is one statically configured user.
type LocalPrincipal struct {
	UserID      int64    `mapstructure:"user_id"`
	Username    string   `mapstructure:"username"`
	Fullname    string   `mapstructure:"fullname"`
	Authorities []string `mapstructure:"authorities"`
	Scopes      []string `mapstructure:"scopes"`
	Roles       []string `mapstructure:"roles"`
}

// Data indexes the configured principals by user id.
func (l LocalConfig) Data() map[int64]principal.Data {
	out := make(map[int64]principal.Data, len(l.Principals))
	for _, p := range l.Principals {
		out[p.UserID] = principal.Data{
			UserID:      p.UserID,
			Username:    p.Username,
			Fullname:    p.Fullname,
			Authorities: p.Authorities,
			Scopes:      p.Scopes,
			Roles:       p.Roles,
		}
	}
	return out
}

// ServerConfig holds listener addresses and unauthenticated routes.
type ServerConfig struct {
	GRPCAddr      string   `mapstructure:"grpc_addr"`
	HTTPAddr      string   `mapstructure:"http_addr"`
	IgnorePaths   []string `mapstructure:"ignore_paths"`
	PublicMethods []string `mapstructure:"public_methods"`
}

// DatabaseConfig configures the postgres strategy.
type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig configures the redis strategy.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LimiterConfig throttles callers after repeated failed authentications.
// It is backed by postgres and requires database.dsn.
type LimiterConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Window      time.Duration `mapstructure:"window"`
	MaxFailures int           `mapstructure:"max_failures"`
	BlockFor    time.Duration `mapstructure:"block_for"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("issuer.secret", "")
	v.SetDefault("issuer.uri", "riffid")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.authorities", "ath")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.token_validity_seconds", 86400)
	v.SetDefault("jwt.remember_me_validity_seconds", 604800)
	v.SetDefault("jwt.refresh_validity_seconds", 2592000)
	v.SetDefault("loader.name", "local")
	v.SetDefault("loader.cache_size", 0)
	v.SetDefault("loader.cache_ttl", 5*time.Minute)
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.ignore_paths", []string{"/healthz"})
	v.SetDefault("server.public_methods", []string{"/grpc.health.v1.Health/Check", "/grpc.health.v1.Health/Watch"})
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("limiter.enabled", false)
	v.SetDefault("limiter.window", 15*time.Minute)
	v.SetDefault("limiter.max_failures", 20)
	v.SetDefault("limiter.block_for", 15*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) into v, decodes and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks secrets, lifetimes and strategy settings.
func (c *Config) Validate() error {
	var problems []error
	if len(c.Issuer.Secret) < MinIssuerSecretLen {
		problems = append(problems, fmt.Errorf("issuer.secret must be at least %d characters", MinIssuerSecretLen))
	}
	if len(c.JWT.Secret) < MinJWTSecretLen {
		problems = append(problems, fmt.Errorf("jwt.secret must be at least %d characters", MinJWTSecretLen))
	}
	if strings.TrimSpace(c.JWT.Authorities) == "" {
		problems = append(problems, errors.New("jwt.authorities must not be empty"))
	}
	if c.JWT.TokenValiditySeconds <= 0 || c.JWT.RememberMeValiditySeconds <= 0 || c.JWT.RefreshValiditySeconds <= 0 {
		problems = append(problems, errors.New("jwt validities must be positive"))
	}
	if strings.TrimSpace(c.Loader.Name) == "" {
		problems = append(problems, errors.New("loader.name must not be empty"))
	}
	if c.Loader.CacheSize < 0 {
		problems = append(problems, errors.New("loader.cache_size must not be negative"))
	}
	seen := make(map[int64]bool, len(c.Loader.Local.Principals))
	for _, p := range c.Loader.Local.Principals {
		switch {
		case p.UserID <= 0:
			problems = append(problems, fmt.Errorf("loader.local.principals: user_id must be positive, got %d", p.UserID))
		case seen[p.UserID]:
			problems = append(problems, fmt.Errorf("loader.local.principals: duplicate user_id %d", p.UserID))
		}
		seen[p.UserID] = true
	}
	if c.Limiter.Enabled {
		if c.Database.DSN == "" {
			problems = append(problems, errors.New("limiter requires database.dsn"))
		}
		if c.Limiter.MaxFailures <= 0 || c.Limiter.Window <= 0 || c.Limiter.BlockFor <= 0 {
			problems = append(problems, errors.New("limiter window, max_failures and block_for must be positive"))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}
