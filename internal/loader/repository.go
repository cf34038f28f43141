package loader

import (
	"context"
	"errors"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/repository"
)

// Repository loads principal data from an AuthorityRepository (the "postgres" strategy).
type Repository struct {
	repo repository.AuthorityRepository
}

var _ Loader = (*Repository)(nil)

// NewRepository wraps repo.
func NewRepository(repo repository.AuthorityRepository) *Repository {
	return &Repository{repo: repo}
}

// Supports matches StrategyPostgres.
func (r *Repository) Supports(strategy string) bool { return strategy == StrategyPostgres }

// Load returns nil data for unknown users.
func (r *Repository) Load(ctx context.Context, userID int64) (*principal.Data, error) {
	d, err := r.repo.GetPrincipalData(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return d, err
}
