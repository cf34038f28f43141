package loader

import (
	"context"
	"slices"

	"github.com/and161185/riffid/internal/principal"
)

// Static serves principal data from memory. It backs the "local" strategy.
type Static struct {
	data map[int64]principal.Data
}

var _ Loader = (*Static)(nil)

// NewStatic copies data into a new loader. A nil map yields a loader that never enriches.
func NewStatic(data map[int64]principal.Data) *Static {
	s := &Static{data: make(map[int64]principal.Data, len(data))}
	for k, v := range data {
		s.data[k] = v
	}
	return s
}

// Supports matches StrategyLocal.
func (s *Static) Supports(strategy string) bool { return strategy == StrategyLocal }

// Load returns a copy of the stored data or nil.
func (s *Static) Load(_ context.Context, userID int64) (*principal.Data, error) {
	d, ok := s.data[userID]
	if !ok {
		return nil, nil
	}
	d.Authorities = slices.Clone(d.Authorities)
	d.Scopes = slices.Clone(d.Scopes)
	d.Roles = slices.Clone(d.Roles)
	return &d, nil
}
