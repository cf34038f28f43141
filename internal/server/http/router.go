// Package httpserver exposes the identity endpoints over HTTP with chi.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/model"
	"github.com/and161185/riffid/internal/principal"
)

const readHeaderTimeout = 5 * time.Second

// Authenticator verifies an access token and installs its principal into ctx's scope.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*principal.Principal, error)
}

// Tokens is the token service surface used by the router.
type Tokens interface {
	Authenticator
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	Validate(ctx context.Context, token string) bool
}

// RouterOptions controls router construction. Ping, when set, backs /healthz.
type RouterOptions struct {
	Service     Tokens
	Log         *zap.Logger
	IgnorePaths []string
	Ping        func(context.Context) error
}

// NewRouter mounts the health, whoami and token endpoints.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	// RemoteAddr is left as the transport peer; it keys the auth throttle.
	r.Use(Scope)
	r.Use(Logging(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth(opts.Ping))
	r.Route("/v1/tokens", func(r chi.Router) {
		r.Post("/refresh", handleRefresh(opts.Service, log))
		r.Post("/validate", handleValidate(opts.Service))
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(opts.Service, opts.IgnorePaths))
		r.Get("/v1/whoami", handleWhoAmI)
	})
	return r
}

// NewServer wraps the router in an http.Server listening on addr.
func NewServer(addr string, opts RouterOptions) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
