// Package service contains the application service for token issuance and authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/limiter"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/model"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/telemetry"
	"github.com/and161185/riffid/internal/token"
)

// AuthService defines token issuance and authentication operations.
type AuthService interface {
	// Issue creates an access/refresh token pair for an already authenticated principal.
	Issue(ctx context.Context, p *principal.Principal, rememberMe bool) (model.Tokens, error)
	// Refresh exchanges a refresh token for a new pair.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Authenticate verifies an access token and installs its principal into ctx's scope.
	Authenticate(ctx context.Context, bearer string) (*principal.Principal, error)
	// Validate reports whether token verifies, without authenticating.
	Validate(ctx context.Context, token string) bool
}

// Invalidator drops memoized principal data for a user.
type Invalidator interface {
	Invalidate(userID int64)
}

type AuthServiceImpl struct {
	codec       *token.Codec
	metrics     *telemetry.TokenMetrics
	limiter     limiter.Limiter
	invalidator Invalidator
	log         *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies. metrics may be nil.
func NewAuthService(codec *token.Codec, metrics *telemetry.TokenMetrics, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{codec: codec, metrics: metrics, log: log}
}

// WithLimiter throttles callers that repeatedly fail to authenticate.
func (s *AuthServiceImpl) WithLimiter(l limiter.Limiter) *AuthServiceImpl {
	s.limiter = l
	return s
}

// WithInvalidator makes every successful refresh drop the user's cached
// principal data, so the next authentication reloads it.
func (s *AuthServiceImpl) WithInvalidator(i Invalidator) *AuthServiceImpl {
	s.invalidator = i
	return s
}

// Issue signs an access token and a refresh token for p.
func (s *AuthServiceImpl) Issue(ctx context.Context, p *principal.Principal, rememberMe bool) (model.Tokens, error) {
	if p == nil || p.Dummy {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	access, err := s.codec.CreateToken(token.IssueContext{Principal: p, RememberMe: rememberMe})
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, err := s.codec.CreateRefreshToken(token.IssueContext{Principal: p})
	if err != nil {
		return model.Tokens{}, err
	}
	s.metrics.RecordIssued(ctx, "access")
	s.metrics.RecordIssued(ctx, "refresh")

	out := model.Tokens{AccessToken: access, RefreshToken: refresh}
	if cl, err := s.codec.ParseClaims(access); err == nil {
		out.ExpiresAt = cl.ExpiresAt
	}
	if cl, err := s.codec.ParseClaims(refresh); err == nil {
		out.RefreshExpiresAt = cl.ExpiresAt
	}
	logctx.Logger(ctx, s.log).Info("tokens issued",
		zap.Int64("uid", p.UserID),
		zap.Bool("remember_me", rememberMe),
	)
	return out, nil
}

// Refresh verifies a refresh token and issues a new pair for its principal.
// Access tokens are rejected with errs.ErrTokenType.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	p, err := s.authenticate(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		return model.Tokens{}, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(p.UserID)
	}
	return s.Issue(ctx, p, false)
}

// Authenticate verifies an access token. Refresh tokens are rejected with errs.ErrTokenType.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, bearer string) (*principal.Principal, error) {
	return s.authenticate(ctx, bearer, token.TypeAccess)
}

// Validate reports whether token verifies under the codec secret.
func (s *AuthServiceImpl) Validate(_ context.Context, tok string) bool {
	return s.codec.Validate(tok)
}

func (s *AuthServiceImpl) authenticate(ctx context.Context, raw string, want token.Type) (*principal.Principal, error) {
	if err := s.allow(ctx); err != nil {
		s.fail(ctx, err)
		return nil, err
	}
	cl, err := s.codec.ParseClaims(raw)
	if err != nil {
		s.reject(ctx, err)
		return nil, err
	}
	if !typeMatches(cl.Type, want) {
		err = fmt.Errorf("%w: got %d", errs.ErrTokenType, cl.Type)
		s.reject(ctx, err)
		return nil, err
	}
	auth, err := s.codec.TryAuthentication(ctx, raw)
	if err != nil {
		s.reject(ctx, err)
		return nil, err
	}
	s.metrics.RecordVerified(ctx, auth.Principal.Tenant)
	if want == token.TypeRefresh {
		s.reset(ctx)
	}
	return auth.Principal, nil
}

// caller returns the throttle key for ctx's transport peer.
func (s *AuthServiceImpl) caller(ctx context.Context) ([]byte, bool) {
	if s.limiter == nil {
		return nil, false
	}
	return limiter.CallerKey(ctx)
}

// allow fails open when the limiter itself errors.
func (s *AuthServiceImpl) allow(ctx context.Context) error {
	key, ok := s.caller(ctx)
	if !ok {
		return nil
	}
	allowed, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		logctx.Logger(ctx, s.log).Warn("limiter allow", zap.Error(err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: retry after %s", errs.ErrThrottled, retry.Round(time.Second))
	}
	return nil
}

func (s *AuthServiceImpl) reject(ctx context.Context, err error) {
	s.fail(ctx, err)
	key, ok := s.caller(ctx)
	if !ok {
		return
	}
	blocked, d, lerr := s.limiter.Failure(ctx, key)
	switch {
	case lerr != nil:
		logctx.Logger(ctx, s.log).Warn("limiter failure", zap.Error(lerr))
	case blocked:
		logctx.Logger(ctx, s.log).Warn("caller blocked", zap.Duration("for", d))
	}
}

func (s *AuthServiceImpl) reset(ctx context.Context) {
	key, ok := s.caller(ctx)
	if !ok {
		return
	}
	if err := s.limiter.Success(ctx, key); err != nil {
		logctx.Logger(ctx, s.log).Warn("limiter success", zap.Error(err))
	}
}

// typeMatches treats a token without a type claim as an access token.
func typeMatches(got, want token.Type) bool {
	if got == 0 {
		got = token.TypeAccess
	}
	return got == want
}

func (s *AuthServiceImpl) fail(ctx context.Context, err error) {
	reason := Reason(err)
	s.metrics.RecordFailure(ctx, reason)
	logctx.Logger(ctx, s.log).Debug("authentication failed", zap.String("reason", reason), zap.Error(err))
	if h, ok := identity.HolderFrom(ctx); ok {
		h.Clear()
	}
}

// Reason maps an authentication error to its telemetry reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, errs.ErrThrottled):
		return telemetry.ReasonThrottled
	case errors.Is(err, errs.ErrMalformed):
		return telemetry.ReasonMalformed
	case errors.Is(err, errs.ErrInvalidSignature):
		return telemetry.ReasonInvalidSignature
	case errors.Is(err, errs.ErrExpired):
		return telemetry.ReasonExpired
	case errors.Is(err, errs.ErrDecryption):
		return telemetry.ReasonDecryption
	case errors.Is(err, errs.ErrTokenType):
		return telemetry.ReasonTokenType
	case errors.Is(err, errs.ErrInvalidToken):
		return telemetry.ReasonInvalid
	default:
		return telemetry.ReasonLoader
	}
}
