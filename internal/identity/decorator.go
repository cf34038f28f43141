package identity

import (
	"context"
	"maps"

	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/reqattr"
	"github.com/and161185/riffid/internal/slot"
)

// Task is a unit of background work run on a worker's context.
type Task func(ctx context.Context) error

// Snapshot is an immutable copy of the identity state of a goroutine of execution.
type Snapshot struct {
	principal *principal.Principal
	attrs     reqattr.Attributes
	hasAttrs  bool
	fields    logctx.Fields
}

// Capture copies the principal, request attributes and log fields visible from ctx.
func Capture(ctx context.Context) Snapshot {
	var s Snapshot
	if p, ok := Current(ctx); ok {
		s.principal = p.Clone()
	}
	s.attrs, s.hasAttrs = reqattr.Get(ctx)
	s.fields = logctx.Copy(ctx)
	return s
}

// Principal returns the captured principal.
func (s Snapshot) Principal() (*principal.Principal, bool) {
	return s.principal, s.principal != nil
}

// Install puts the snapshot into the slots bound to ctx, binding any that are missing,
// and returns the context to run under plus a func restoring the previous contents.
func (s Snapshot) Install(ctx context.Context) (context.Context, func()) {
	h, ok := HolderFrom(ctx)
	if !ok {
		h = NewHolder()
		ctx = context.WithValue(ctx, holderKey, h)
	}
	ctx, as := slot.Ensure[reqattr.Attributes](ctx)
	ctx, fs := slot.Ensure[logctx.Fields](ctx)

	prevP, prevPOK := h.swap(s.principal, s.principal != nil)
	prevA, prevAOK := as.Swap(s.attrs, s.hasAttrs)
	prevF, prevFOK := fs.Swap(maps.Clone(s.fields), s.fields != nil)

	return ctx, func() {
		h.swap(prevP, prevPOK)
		as.Swap(prevA, prevAOK)
		fs.Swap(prevF, prevFOK)
	}
}

// Decorate captures the identity state of the submitting ctx now and returns a task
// that runs under it on the worker. The worker's own state is restored after the task
// returns or panics, so a pooled worker never leaks one request's identity into the next.
func Decorate(ctx context.Context, task Task) Task {
	snap := Capture(ctx)
	return func(wctx context.Context) error {
		wctx, restore := snap.Install(wctx)
		defer restore()
		return task(wctx)
	}
}
