// Package logctx keeps log correlation fields (request id, tenant, user) for the
// current goroutine of execution and applies them to zap loggers.
package logctx

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/slot"
)

// Well-known field keys.
const (
	KeyRequestID = "request_id"
	KeyTenant    = "tenant"
	KeyUserID    = "user_id"
	KeyUsername  = "username"
)

// Fields maps correlation keys to values.
type Fields map[string]string

// Bind attaches an empty field slot to ctx.
func Bind(ctx context.Context) context.Context {
	return slot.Bind(ctx, &slot.Slot[Fields]{})
}

// Put sets key in the fields bound to ctx. It reports false when no slot is bound.
func Put(ctx context.Context, key, value string) bool {
	s, ok := slot.From[Fields](ctx)
	if !ok {
		return false
	}
	f, _ := s.Get()
	if f == nil {
		f = Fields{}
		s.Set(f)
	}
	f[key] = value
	return true
}

// Copy returns a copy of the fields bound to ctx, or nil.
func Copy(ctx context.Context) Fields {
	s, ok := slot.From[Fields](ctx)
	if !ok {
		return nil
	}
	f, _ := s.Get()
	if f == nil {
		return nil
	}
	return maps.Clone(f)
}

// Logger returns base enriched with the fields bound to ctx, in key order.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	f := Copy(ctx)
	if len(f) == 0 {
		return base
	}
	zf := make([]zap.Field, 0, len(f))
	for _, k := range slices.Sorted(maps.Keys(f)) {
		zf = append(zf, zap.String(k, f[k]))
	}
	return base.With(zf...)
}
