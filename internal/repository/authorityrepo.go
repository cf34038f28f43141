// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/riffid/internal/principal"
)

// AuthorityRepository reads the supplementary authority data of users.
type AuthorityRepository interface {
	// GetPrincipalData loads fullname, authorities, roles and scopes of a user.
	// It returns errs.ErrNotFound for unknown users.
	GetPrincipalData(ctx context.Context, userID int64) (*principal.Data, error)
}
