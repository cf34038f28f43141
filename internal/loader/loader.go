// Package loader resolves the principal-enrichment strategy used after token verification.
package loader

import (
	"context"
	"fmt"
	"sort"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/principal"
)

// Strategy names of the built-in loaders.
const (
	StrategyLocal    = "local"
	StrategyPostgres = "postgres"
	StrategyRedis    = "redis"
)

// Loader supplies supplementary principal data for a user.
// Load returns (nil, nil) when it has nothing to add.
type Loader interface {
	Supports(strategy string) bool
	Load(ctx context.Context, userID int64) (*principal.Data, error)
}

// Strategy adapts a (match, load) pair to Loader.
type Strategy struct {
	Name   string
	Match  func(strategy string) bool
	LoadFn func(ctx context.Context, userID int64) (*principal.Data, error)
}

// Supports reports whether strategy selects this loader. Without Match it compares Name.
func (s Strategy) Supports(strategy string) bool {
	if s.Match != nil {
		return s.Match(strategy)
	}
	return s.Name == strategy
}

// Load calls LoadFn.
func (s Strategy) Load(ctx context.Context, userID int64) (*principal.Data, error) {
	if s.LoadFn == nil {
		return nil, nil
	}
	return s.LoadFn(ctx, userID)
}

type entry struct {
	order  int
	seq    int
	loader Loader
}

// Registry is an ordered list of loaders. Lower order wins; ties keep registration order.
// Register during startup only.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds l at the given order.
func (r *Registry) Register(l Loader, order int) *Registry {
	r.entries = append(r.entries, entry{order: order, seq: len(r.entries), loader: l})
	return r
}

// Resolve returns the first loader, by order, that supports strategy.
func (r *Registry) Resolve(strategy string) (Loader, error) {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].order != sorted[j].order {
			return sorted[i].order < sorted[j].order
		}
		return sorted[i].seq < sorted[j].seq
	})
	for _, e := range sorted {
		if e.loader.Supports(strategy) {
			return e.loader, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedStrategy, strategy)
}

// Enrich loads data for p and injects it. Nil data leaves p unchanged.
func Enrich(ctx context.Context, l Loader, p *principal.Principal) error {
	if l == nil {
		return nil
	}
	d, err := l.Load(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load principal %d: %w", p.UserID, err)
	}
	p.Inject(d)
	return nil
}
