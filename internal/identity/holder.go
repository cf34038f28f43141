// Package identity holds the principal of the current goroutine of execution and
// propagates it to background work through snapshots.
package identity

import (
	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/slot"
)

// Source yields an ambient principal used when the holder itself is empty.
type Source func() (*principal.Principal, bool)

// Holder is the identity slot of one request or one pool worker. It is not safe
// for concurrent use; hand snapshots (see Decorate) to other goroutines instead.
type Holder struct {
	cur      slot.Slot[*principal.Principal]
	fallback Source
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithFallback sets the ambient source consulted by Get when nothing is installed.
func WithFallback(src Source) HolderOption {
	return func(h *Holder) { h.fallback = src }
}

// NewHolder returns an empty holder.
func NewHolder(opts ...HolderOption) *Holder {
	h := &Holder{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Set installs p. A nil p clears the holder.
func (h *Holder) Set(p *principal.Principal) {
	if p == nil {
		h.cur.Clear()
		return
	}
	h.cur.Set(p)
}

// Get returns the installed principal, or the fallback source's.
func (h *Holder) Get() (*principal.Principal, bool) {
	if p, ok := h.cur.Get(); ok {
		return p, true
	}
	if h.fallback != nil {
		if p, ok := h.fallback(); ok && p != nil {
			return p, true
		}
	}
	return nil, false
}

// GetOrDummy returns the current principal or a fresh anonymous one.
func (h *Holder) GetOrDummy() *principal.Principal {
	if p, ok := h.Get(); ok {
		return p
	}
	return principal.NewDummy()
}

// MustGet returns the current principal or errs.ErrUnauthorized.
func (h *Holder) MustGet() (*principal.Principal, error) {
	if p, ok := h.Get(); ok {
		return p, nil
	}
	return nil, errs.ErrUnauthorized
}

// Clear removes the installed principal. The fallback source is untouched.
func (h *Holder) Clear() { h.cur.Clear() }

func (h *Holder) swap(p *principal.Principal, ok bool) (*principal.Principal, bool) {
	return h.cur.Swap(p, ok && p != nil)
}

type runConfig struct{ keep bool }

// RunOption configures Run and RunAs.
type RunOption func(*runConfig)

// WithoutCleanup leaves the principal installed after the task returns.
func WithoutCleanup() RunOption {
	return func(c *runConfig) { c.keep = true }
}

// Run installs p, runs task and clears the holder on every exit path,
// including a panic, unless WithoutCleanup is given.
func (h *Holder) Run(p *principal.Principal, task func() error, opts ...RunOption) error {
	var cfg runConfig
	for _, o := range opts {
		o(&cfg)
	}
	h.Set(p)
	if !cfg.keep {
		defer h.Clear()
	}
	return task()
}

// RunAs runs task as a placeholder principal carrying only userID.
func (h *Holder) RunAs(userID int64, task func(p *principal.Principal) error, opts ...RunOption) error {
	p := principal.NewDummy()
	p.UserID = userID
	p.Dummy = false
	return h.Run(p, func() error { return task(p) }, opts...)
}
