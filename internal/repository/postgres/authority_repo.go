package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/principal"
)

// Grant kinds stored in principal_grants.kind.
const (
	KindAuthority = "authority"
	KindRole      = "role"
	KindScope     = "scope"
)

// AuthorityRepo implements AuthorityRepository using PostgreSQL.
type AuthorityRepo struct{ db *DB }

// NewAuthorityRepo constructs an authority repository.
func NewAuthorityRepo(db *DB) *AuthorityRepo { return &AuthorityRepo{db: db} }

// GetPrincipalData reads the principal row and its grants in one read-only transaction.
func (r *AuthorityRepo) GetPrincipalData(ctx context.Context, userID int64) (d *principal.Data, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			d, err = nil, e
		}
	}()

	const sel = `SELECT user_id, username, fullname FROM principals WHERE user_id=$1`
	out := &principal.Data{Authorities: []string{}, Roles: []string{}, Scopes: []string{}}
	if err = tx.QueryRow(ctx, sel, userID).Scan(&out.UserID, &out.Username, &out.Fullname); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	const grants = `SELECT kind, value FROM principal_grants WHERE user_id=$1 ORDER BY kind, value`
	rows, err := tx.Query(ctx, grants, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		if err = rows.Scan(&kind, &value); err != nil {
			return nil, err
		}
		switch kind {
		case KindAuthority:
			out.Authorities = append(out.Authorities, value)
		case KindRole:
			out.Roles = append(out.Roles, value)
		case KindScope:
			out.Scopes = append(out.Scopes, value)
		default:
			err = fmt.Errorf("principal %d: unknown grant kind %q", userID, kind)
			return nil, err
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
