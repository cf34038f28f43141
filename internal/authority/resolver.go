// Package authority merges the granted-authority, scope and role claims of a token
// into a principal's authority set.
package authority

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/and161185/riffid/internal/principal"
)

// Claim keys and values shared with the token codec.
const (
	DefaultAuthorityKey = "ath"
	RolesKey            = "roles"
	ScopesKey           = "scopes"

	// All is the wildcard placeholder written into the authority claim at issuance.
	All = "*.*"

	separator = ","
)

// Sets is the decoded authority material of one token.
type Sets struct {
	Authorities []string
	Scopes      []string
	Roles       []string
}

// Resolver extracts Sets from raw claims.
type Resolver struct {
	authorityKey string
}

// NewResolver returns a resolver reading granted authorities from authorityKey
// (DefaultAuthorityKey when empty).
func NewResolver(authorityKey string) *Resolver {
	if authorityKey == "" {
		authorityKey = DefaultAuthorityKey
	}
	return &Resolver{authorityKey: authorityKey}
}

// AuthorityKey is the claim name holding the granted authority text.
func (r *Resolver) AuthorityKey() string { return r.authorityKey }

// Resolve decodes the authority text, scopes and roles. Missing claims yield empty lists.
func (r *Resolver) Resolve(claims map[string]any) (Sets, error) {
	var s Sets
	if text, ok := claims[r.authorityKey].(string); ok {
		s.Authorities = SplitGranted(text)
	} else {
		s.Authorities = []string{}
	}
	var err error
	if s.Scopes, err = stringList(claims, ScopesKey); err != nil {
		return Sets{}, err
	}
	if s.Roles, err = stringList(claims, RolesKey); err != nil {
		return Sets{}, err
	}
	return s, nil
}

// Apply unions authorities, scopes and roles into p's authority set, and scopes and
// roles into p's own sets.
func Apply(p *principal.Principal, s Sets) {
	p.AppendAuthorities(s.Authorities...)
	p.AppendAuthorities(s.Scopes...)
	p.AppendAuthorities(s.Roles...)
	p.AppendScopes(s.Scopes...)
	p.AppendRoles(s.Roles...)
}

// SplitGranted splits comma-separated authority text, dropping blanks and the wildcard.
func SplitGranted(text string) []string {
	out := []string{}
	for _, v := range strings.Split(strings.ReplaceAll(text, All, ""), separator) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func stringList(claims map[string]any, key string) ([]string, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return []string{}, nil
	}
	var out []string
	if err := mapstructure.Decode(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s claim: %w", key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
