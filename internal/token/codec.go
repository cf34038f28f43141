// Package token issues and verifies the signed bearer tokens that carry an encrypted
// identity passport, and rebuilds the authenticated principal from them.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/authority"
	"github.com/and161185/riffid/internal/crypto"
	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/loader"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
)

// Default lifetimes.
const (
	DefaultValidity           = 24 * time.Hour
	DefaultRememberMeValidity = 7 * 24 * time.Hour
	DefaultRefreshValidity    = 30 * 24 * time.Hour
)

var signingMethod = jwt.SigningMethodHS512

// Config configures a Codec.
type Config struct {
	// Secret signs and verifies tokens.
	Secret   string
	Issuer   string
	Audience string
	// AuthorityKey names the granted-authority claim.
	AuthorityKey       string
	Validity           time.Duration
	RememberMeValidity time.Duration
	RefreshValidity    time.Duration
}

// IssueContext describes one issuance.
type IssueContext struct {
	Principal  *principal.Principal
	RememberMe bool
	// Now overrides the issuance instant; zero uses the codec clock.
	Now time.Time
	// Customize runs after the standard claims are written.
	Customize func(b *Builder)
}

// Authentication is the result of a successful TryAuthentication.
type Authentication struct {
	Principal   *principal.Principal
	Claims      *Claims
	Credentials string
}

// Authorities returns the principal's merged authority set.
func (a *Authentication) Authorities() []string { return a.Principal.Authorities() }

// Codec issues and verifies tokens. It is immutable after New and safe for concurrent use.
type Codec struct {
	cfg      Config
	key      []byte
	cipher   *crypto.SubjectCipher
	resolver *authority.Resolver
	loader   loader.Loader
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock sets the clock used for issuance defaults and expiry checks.
func WithClock(now func() time.Time) Option { return func(c *Codec) { c.now = now } }

// WithLogger sets the logger used by non-quiet validation.
func WithLogger(l *zap.Logger) Option { return func(c *Codec) { c.log = l } }

// WithLoader sets the startup-resolved principal loader.
func WithLoader(l loader.Loader) Option { return func(c *Codec) { c.loader = l } }

// New returns a codec. cipher keys the subject with the issuer secret.
func New(cfg Config, cipher *crypto.SubjectCipher, opts ...Option) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: empty signing secret")
	}
	if cipher == nil {
		return nil, errors.New("token: nil subject cipher")
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	if cfg.RememberMeValidity <= 0 {
		cfg.RememberMeValidity = DefaultRememberMeValidity
	}
	if cfg.RefreshValidity <= 0 {
		cfg.RefreshValidity = DefaultRefreshValidity
	}
	c := &Codec{
		cfg:      cfg,
		key:      []byte(cfg.Secret),
		cipher:   cipher,
		resolver: authority.NewResolver(cfg.AuthorityKey),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CreateToken issues an access token; remember-me selects the longer lifetime.
func (c *Codec) CreateToken(ic IssueContext) (string, error) {
	validity := c.cfg.Validity
	if ic.RememberMe {
		validity = c.cfg.RememberMeValidity
	}
	return c.create(ic, TypeAccess, validity)
}

// CreateRefreshToken issues a refresh token.
func (c *Codec) CreateRefreshToken(ic IssueContext) (string, error) {
	return c.create(ic, TypeRefresh, c.cfg.RefreshValidity)
}

func (c *Codec) create(ic IssueContext, typ Type, validity time.Duration) (string, error) {
	p := ic.Principal
	if p == nil {
		return "", errors.New("create token: nil principal")
	}
	if err := p.Passport().Validate(); err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	subject, err := c.cipher.Encrypt(p.Compact())
	if err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	now := ic.Now
	if now.IsZero() {
		now = c.now()
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("create token: jti: %w", err)
	}
	digits, err := crypto.RandDigits(kidDigits)
	if err != nil {
		return "", fmt.Errorf("create token: kid: %w", err)
	}

	claims := jwt.MapClaims{
		"iss":              c.cfg.Issuer,
		"iat":              now.Unix(),
		"jti":              jti.String(),
		"sub":              subject,
		"exp":              now.Add(validity).Unix(),
		ClaimClient:        p.Client,
		authority.RolesKey: p.Roles(),
		ClaimType:          int(typ),
	}
	claims[c.resolver.AuthorityKey()] = authority.All
	if c.cfg.Audience != "" {
		claims["aud"] = c.cfg.Audience
	}
	if scopes := p.Scopes(); len(scopes) > 0 {
		claims[authority.ScopesKey] = scopes
	}

	tok := jwt.NewWithClaims(signingMethod, claims)
	tok.Header[HeaderKeyID] = now.Format(kidDateLayout) + digits
	if ic.Customize != nil {
		ic.Customize(&Builder{claims: claims, header: tok.Header})
	}
	claims["sub"] = subject

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("create token: sign: %w", err)
	}
	return signed, nil
}

// ParseClaims verifies token with the codec secret and returns its claims.
func (c *Codec) ParseClaims(token string) (*Claims, error) {
	return c.ParseClaimsWithSecret(token, c.cfg.Secret)
}

// ParseClaimsWithSecret verifies token with secret. Failures are classified as
// errs.ErrMalformed, errs.ErrInvalidSignature, errs.ErrExpired or errs.ErrInvalidToken.
func (c *Codec) ParseClaimsWithSecret(token, secret string) (*Claims, error) {
	raw := CleanToken(token)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", errs.ErrMalformed)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.cfg.Audience))
	}
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return newClaims(mc, c.resolver.AuthorityKey()), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errs.ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errs.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return errs.ErrExpired
	default:
		return errs.ErrInvalidToken
	}
}

type validateConfig struct {
	secret string
	loud   bool
}

// ValidateOption configures Validate.
type ValidateOption func(*validateConfig)

// WithSecret verifies against secret instead of the codec secret.
func WithSecret(secret string) ValidateOption {
	return func(v *validateConfig) { v.secret = secret }
}

// Loud logs validation failures at error level.
func Loud() ValidateOption {
	return func(v *validateConfig) { v.loud = true }
}

// Validate reports whether token verifies. It never returns an error or panics.
func (c *Codec) Validate(token string, opts ...ValidateOption) bool {
	vc := validateConfig{secret: c.cfg.Secret}
	for _, o := range opts {
		o(&vc)
	}
	if _, err := c.ParseClaimsWithSecret(token, vc.secret); err != nil {
		if vc.loud {
			c.log.Error("token validation failed", zap.Error(err))
		}
		return false
	}
	return true
}

// TryAuthentication verifies token with the codec secret and rebuilds its principal.
func (c *Codec) TryAuthentication(ctx context.Context, token string) (*Authentication, error) {
	return c.TryAuthenticationWithSecret(ctx, token, c.cfg.Secret)
}

// TryAuthenticationWithSecret verifies token, decrypts the passport, merges claim
// authorities, enriches through the loader and installs the principal into the
// identity holder bound to ctx, if any.
func (c *Codec) TryAuthenticationWithSecret(ctx context.Context, token, secret string) (*Authentication, error) {
	claims, err := c.ParseClaimsWithSecret(token, secret)
	if err != nil {
		return nil, err
	}
	sets, err := c.resolver.Resolve(claims.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformed, err)
	}
	plain, err := c.cipher.Decrypt(claims.Subject)
	if err != nil {
		return nil, err
	}
	if plain == "" {
		return nil, fmt.Errorf("%w: empty subject", errs.ErrMalformed)
	}
	pp, err := principal.ParsePassport(plain, claims.Subject)
	if err != nil {
		return nil, err
	}

	p := principal.New(pp)
	authority.Apply(p, sets)
	p.Status = principal.StatusActivated
	p.AuthenticationStatus = principal.Authenticated
	p.Dummy = false
	p.Token = CleanToken(token)

	if err := loader.Enrich(ctx, c.loader, p); err != nil {
		return nil, err
	}

	identity.Install(ctx, p)
	logctx.Put(ctx, logctx.KeyUserID, strconv.FormatInt(p.UserID, 10))
	logctx.Put(ctx, logctx.KeyUsername, p.Username)

	return &Authentication{Principal: p, Claims: claims, Credentials: p.Token}, nil
}
