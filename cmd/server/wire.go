package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/config"
	"github.com/and161185/riffid/internal/crypto"
	"github.com/and161185/riffid/internal/limiter"
	"github.com/and161185/riffid/internal/loader"
	"github.com/and161185/riffid/internal/repository/postgres"
	"github.com/and161185/riffid/internal/service"
	"github.com/and161185/riffid/internal/telemetry"
	"github.com/and161185/riffid/internal/token"
)

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// backends holds the connections opened for the loader strategies.
type backends struct {
	db  *postgres.DB
	rdb *redis.Client
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}

func (b *backends) ping(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.Ping(ctx); err != nil {
			return err
		}
	}
	if b.rdb != nil {
		return b.rdb.Ping(ctx).Err()
	}
	return nil
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Database.DSN != "" {
		db, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b.db = db
	}
	if cfg.Redis.Addr != "" {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return b, nil
}

// resolveLoader registers every strategy the configuration can back and resolves
// the configured one. An unknown strategy fails here, at startup.
func resolveLoader(cfg *config.Config, b *backends) (loader.Loader, error) {
	reg := loader.NewRegistry().Register(loader.NewStatic(cfg.Loader.Local.Data()), 100)
	if b.db != nil {
		reg.Register(loader.NewRepository(postgres.NewAuthorityRepo(b.db)), 10)
	}
	if b.rdb != nil {
		reg.Register(loader.NewRedis(b.rdb, cfg.Redis.Prefix), 20)
	}
	l, err := reg.Resolve(cfg.Loader.Name)
	if err != nil {
		return nil, err
	}
	if cfg.Loader.CacheSize > 0 {
		l = loader.NewCached(l, cfg.Loader.CacheSize, cfg.Loader.CacheTTL)
	}
	return l, nil
}

func newCodec(cfg *config.Config, l loader.Loader, log *zap.Logger) (*token.Codec, error) {
	cipher, err := crypto.NewSubjectCipher(cfg.Issuer.Secret)
	if err != nil {
		return nil, err
	}
	return token.New(token.Config{
		Secret:             cfg.JWT.Secret,
		Issuer:             cfg.Issuer.URI,
		Audience:           cfg.JWT.Audience,
		AuthorityKey:       cfg.JWT.Authorities,
		Validity:           cfg.JWT.TokenValidity(),
		RememberMeValidity: cfg.JWT.RememberMeValidity(),
		RefreshValidity:    cfg.JWT.RefreshValidity(),
	}, cipher, token.WithLoader(l), token.WithLogger(log))
}

// newService assembles the auth service around codec. A cached loader is
// invalidated on refresh; the limiter needs the database.
func newService(cfg *config.Config, b *backends, l loader.Loader, codec *token.Codec, metrics *telemetry.TokenMetrics, log *zap.Logger) *service.AuthServiceImpl {
	svc := service.NewAuthService(codec, metrics, log)
	if c, ok := l.(*loader.Cached); ok {
		svc.WithInvalidator(c)
	}
	if cfg.Limiter.Enabled && b.db != nil {
		lc := cfg.Limiter
		svc.WithLimiter(limiter.NewPG(b.db.Pool, lc.Window, lc.MaxFailures, lc.BlockFor))
	}
	return svc
}
