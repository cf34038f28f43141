package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes access tokens from refresh tokens.
type Type int

const (
	TypeAccess  Type = 1
	TypeRefresh Type = 2
)

// Claim and header keys written at issuance.
const (
	ClaimClient = "xci"
	ClaimType   = "tkt"
	HeaderKeyID = "kid"

	kidDateLayout = "20060102"
	kidDigits     = 26
)

// Claims is the verified content of a token.
type Claims struct {
	Issuer      string
	Subject     string
	ID          string
	Audience    []string
	Client      string
	Authorities string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Type        Type

	// Raw holds every claim as decoded from the payload.
	Raw jwt.MapClaims
}

func newClaims(raw jwt.MapClaims, authorityKey string) *Claims {
	c := &Claims{Raw: raw}
	c.Issuer, _ = raw.GetIssuer()
	c.Subject, _ = raw.GetSubject()
	c.Audience, _ = raw.GetAudience()
	if t, _ := raw.GetIssuedAt(); t != nil {
		c.IssuedAt = t.Time
	}
	if t, _ := raw.GetExpirationTime(); t != nil {
		c.ExpiresAt = t.Time
	}
	c.ID, _ = raw["jti"].(string)
	c.Client, _ = raw[ClaimClient].(string)
	c.Authorities, _ = raw[authorityKey].(string)
	if v, ok := raw[ClaimType].(float64); ok {
		c.Type = Type(v)
	}
	return c
}

// CleanToken strips an optional scheme such as "Bearer " or "OAuth " and surrounding space.
func CleanToken(token string) string {
	token = strings.TrimSpace(token)
	if _, rest, ok := strings.Cut(token, " "); ok {
		return strings.TrimSpace(rest)
	}
	return token
}
