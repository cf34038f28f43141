// Package telemetry defines the OpenTelemetry instruments of the token service.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Failure reasons recorded on the failure counter.
const (
	ReasonMalformed        = "malformed"
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonDecryption       = "decryption"
	ReasonTokenType        = "token_type"
	ReasonInvalid          = "invalid"
	ReasonLoader           = "loader"
	ReasonThrottled        = "throttled"
)

// TokenMetrics holds the token instruments. A nil *TokenMetrics records nothing.
type TokenMetrics struct {
	Issued   metric.Int64Counter // tokens issued, by type
	Verified metric.Int64Counter // successful authentications
	Failures metric.Int64Counter // failed verifications, by reason
}

// NewTokenMetrics creates the instruments on the global meter provider.
func NewTokenMetrics() (*TokenMetrics, error) {
	return NewTokenMetricsWithMeter(otel.Meter("riffid/token"))
}

// NewTokenMetricsWithMeter creates the instruments on meter.
func NewTokenMetricsWithMeter(meter metric.Meter) (*TokenMetrics, error) {
	issued, err := meter.Int64Counter(
		"riffid.token.issued",
		metric.WithDescription("Tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}
	verified, err := meter.Int64Counter(
		"riffid.token.verified",
		metric.WithDescription("Tokens successfully authenticated"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"riffid.token.failures",
		metric.WithDescription("Token verification failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}
	return &TokenMetrics{Issued: issued, Verified: verified, Failures: failures}, nil
}

// RecordIssued counts one issued token of kind ("access" or "refresh").
func (m *TokenMetrics) RecordIssued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Issued.Add(ctx, 1, metric.WithAttributes(attribute.String("token.type", kind)))
}

// RecordVerified counts one successful authentication.
func (m *TokenMetrics) RecordVerified(ctx context.Context, tenant string) {
	if m == nil {
		return
	}
	m.Verified.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenant)))
}

// RecordFailure counts one failed verification.
func (m *TokenMetrics) RecordFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
