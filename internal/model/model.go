// Package model defines value types returned by services.
package model

import "time"

// Tokens collects an issued access/refresh token pair.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`         // access token expiry
	RefreshExpiresAt time.Time `json:"refresh_expires_at"` // refresh token expiry
}
