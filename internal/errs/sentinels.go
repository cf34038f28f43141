// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Token and identity sentinels.
var (
	// ErrMalformed indicates a token or subject that cannot be decoded structurally.
	ErrMalformed = errors.New("malformed token")

	// ErrInvalidSignature indicates a token whose signature does not verify under the key.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired indicates a token past its expiration instant.
	ErrExpired = errors.New("token expired")

	// ErrInvalidToken covers every other verification failure (not-before, audience, alg).
	ErrInvalidToken = errors.New("invalid token")

	// ErrDecryption indicates the encrypted subject could not be decrypted with the issuer secret.
	ErrDecryption = errors.New("subject decryption failed")

	// ErrTokenType indicates a refresh token used as access token or vice versa.
	ErrTokenType = errors.New("unexpected token type")

	// ErrUnsupportedStrategy indicates no principal loader supports the configured strategy.
	ErrUnsupportedStrategy = errors.New("unsupported loader strategy")
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication or an absent identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrThrottled indicates the caller is temporarily blocked after repeated failures.
	ErrThrottled = errors.New("too many failed authentications")
)
