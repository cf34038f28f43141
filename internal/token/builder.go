package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Builder exposes the claims and header of a token being issued to an
// IssueContext.Customize callback. The subject cannot be changed.
type Builder struct {
	claims jwt.MapClaims
	header map[string]any
}

// Set writes a claim. Writes to "sub" are ignored.
func (b *Builder) Set(key string, v any) {
	if key == "sub" {
		return
	}
	b.claims[key] = v
}

// Delete removes a claim. "sub" cannot be removed.
func (b *Builder) Delete(key string) {
	if key == "sub" {
		return
	}
	delete(b.claims, key)
}

// Get reads a claim.
func (b *Builder) Get(key string) (any, bool) {
	v, ok := b.claims[key]
	return v, ok
}

// SetExpiration overrides the expiration instant.
func (b *Builder) SetExpiration(t time.Time) { b.claims["exp"] = t.Unix() }

// SetHeader writes a JOSE header field. "alg" is ignored.
func (b *Builder) SetHeader(key string, v any) {
	if key == "alg" {
		return
	}
	b.header[key] = v
}
