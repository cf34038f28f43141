package identity

import (
	"context"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/reqattr"
)

type ctxKey string

const (
	holderKey        ctxKey = "riff.holder"
	authenticatedKey ctxKey = "riff.authenticated"
)

// NewScope binds a fresh holder, request attribute slot and log field slot to ctx.
// Call it once per request and once per pool worker.
func NewScope(ctx context.Context, opts ...HolderOption) context.Context {
	ctx = context.WithValue(ctx, holderKey, NewHolder(opts...))
	ctx = reqattr.Bind(ctx)
	return logctx.Bind(ctx)
}

// HolderFrom returns the holder bound to ctx.
func HolderFrom(ctx context.Context) (*Holder, bool) {
	h, ok := ctx.Value(holderKey).(*Holder)
	return h, ok && h != nil
}

// WithAuthenticated records p as the ambient authenticated principal of ctx.
func WithAuthenticated(ctx context.Context, p *principal.Principal) context.Context {
	return context.WithValue(ctx, authenticatedKey, p)
}

// AuthenticatedFrom returns the ambient authenticated principal of ctx.
func AuthenticatedFrom(ctx context.Context) (*principal.Principal, bool) {
	p, ok := ctx.Value(authenticatedKey).(*principal.Principal)
	return p, ok && p != nil
}

// Current returns the holder's principal, falling back to the ambient one.
func Current(ctx context.Context) (*principal.Principal, bool) {
	if h, ok := HolderFrom(ctx); ok {
		if p, ok := h.Get(); ok {
			return p, true
		}
	}
	return AuthenticatedFrom(ctx)
}

// CurrentOrDummy returns Current or the anonymous principal.
func CurrentOrDummy(ctx context.Context) *principal.Principal {
	if p, ok := Current(ctx); ok {
		return p
	}
	return principal.NewDummy()
}

// MustCurrent returns Current or errs.ErrUnauthorized.
func MustCurrent(ctx context.Context) (*principal.Principal, error) {
	if p, ok := Current(ctx); ok {
		return p, nil
	}
	return nil, errs.ErrUnauthorized
}

// Install puts p into the holder bound to ctx. It reports false when none is bound.
func Install(ctx context.Context, p *principal.Principal) bool {
	h, ok := HolderFrom(ctx)
	if ok {
		h.Set(p)
	}
	return ok
}
