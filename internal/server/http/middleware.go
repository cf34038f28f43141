package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/reqattr"
)

// Scope binds a per-request identity scope and its request attributes.
// It must be the outermost identity middleware.
func Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := reqattr.FromRequest(r)
		ctx := identity.NewScope(r.Context())
		reqattr.Set(ctx, a)
		logctx.Put(ctx, logctx.KeyRequestID, a.RequestID)
		logctx.Put(ctx, logctx.KeyTenant, a.Tenant)
		w.Header().Set(reqattr.HeaderRequestID, a.RequestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging writes one structured line per request. Tokens and bodies are never logged.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logctx.Logger(r.Context(), log).Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
			)
		})
	}
}

// Authenticate requires a valid access token on every path not matched by ignore.
// Ignored paths proceed anonymously.
func Authenticate(auth Authenticator, ignore []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ignored(r.URL.Path, ignore) {
				next.ServeHTTP(w, r)
				return
			}
			tok, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "no auth")
				return
			}
			p, err := auth.Authenticate(r.Context(), tok)
			if errors.Is(err, errs.ErrThrottled) {
				writeError(w, http.StatusTooManyRequests, "too many failed authentications")
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithAuthenticated(r.Context(), p)))
		})
	}
}

func ignored(path string, ignore []string) bool {
	for _, p := range ignore {
		if p == path || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// bearerToken reads "Authorization: Bearer|OAuth <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !(strings.EqualFold(scheme, "bearer") || strings.EqualFold(scheme, "oauth")) {
		return "", false
	}
	tok := strings.TrimSpace(rest)
	return tok, tok != ""
}
