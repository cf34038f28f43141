package token

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/riffid/internal/crypto"
	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/loader"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
)

var (
	issuerSecret = strings.Repeat("a", 32)
	signSecret   = strings.Repeat("b", 64)
)

func newCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	cipher, err := crypto.NewSubjectCipher(issuerSecret)
	if err != nil {
		t.Fatalf("NewSubjectCipher: %v", err)
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := New(Config{Secret: signSecret, Issuer: "riffid"}, cipher, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func alice() *principal.Principal {
	return principal.New(principal.Passport{Tenant: "saas", Platform: "saas", App: "boss", Client: "web", UserID: 42, Username: "alice", Type: principal.TypeBoss})
}

func issue(t *testing.T, c *Codec, ic IssueContext) string {
	t.Helper()
	tok, err := c.CreateToken(ic)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

func TestCodec_IssueAndAuthenticate(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	p := alice()
	p.AppendRoles("admin")

	tok := issue(t, c, IssueContext{Principal: p})
	if n := len(strings.Split(tok, ".")); n != 3 {
		t.Fatalf("token has %d parts", n)
	}
	if !c.Validate(tok) {
		t.Fatalf("fresh token should validate")
	}

	auth, err := c.TryAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("TryAuthentication: %v", err)
	}
	got := auth.Principal
	if got.UserID != 42 || got.Username != "alice" || got.Tenant != "saas" || got.Dummy {
		t.Fatalf("unexpected principal: %+v", got)
	}
	if got.Status != principal.StatusActivated || got.AuthenticationStatus != principal.Authenticated {
		t.Fatalf("unexpected status: %v/%v", got.Status, got.AuthenticationStatus)
	}
	if !got.HasRole("admin") || !got.HasAuthority("admin") {
		t.Fatalf("roles not restored: %v", got.Authorities())
	}
	if got.Token != tok || auth.Credentials != tok {
		t.Fatalf("token not recorded on the principal")
	}
	if !strings.HasPrefix(got.Subject, crypto.SubjectPrefix) {
		t.Fatalf("principal subject should be the encrypted subject, got %q", got.Subject)
	}
	if auth.Claims.Type != TypeAccess || auth.Claims.Client != "web" || auth.Claims.Issuer != "riffid" {
		t.Fatalf("unexpected claims: %+v", auth.Claims)
	}
}

func TestCodec_HeaderAndClaims(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newCodec(t, WithClock(func() time.Time { return now.Add(time.Minute) }))
	tok := issue(t, c, IssueContext{Principal: alice(), Now: now})

	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if parsed.Header["alg"] != "HS512" || parsed.Header["typ"] != "JWT" {
		t.Fatalf("unexpected header: %v", parsed.Header)
	}
	kid, _ := parsed.Header["kid"].(string)
	if !regexp.MustCompile(`^20260301\d{26}$`).MatchString(kid) {
		t.Fatalf("unexpected kid %q", kid)
	}

	cl, err := c.ParseClaims(tok)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if cl.Authorities != "*.*" {
		t.Fatalf("authority claim = %q", cl.Authorities)
	}
	if cl.ID == "" {
		t.Fatalf("jti missing")
	}
	if !cl.IssuedAt.Equal(now) || !cl.ExpiresAt.Equal(now.Add(DefaultValidity)) {
		t.Fatalf("iat/exp = %v/%v", cl.IssuedAt, cl.ExpiresAt)
	}
}

func TestCodec_Lifetimes(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	c := newCodec(t)

	remember := issue(t, c, IssueContext{Principal: alice(), Now: now, RememberMe: true})
	cl, err := c.ParseClaims(remember)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if !cl.ExpiresAt.Equal(now.Add(DefaultRememberMeValidity)) {
		t.Fatalf("remember-me exp = %v", cl.ExpiresAt)
	}

	refresh, err := c.CreateRefreshToken(IssueContext{Principal: alice(), Now: now})
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	cl, err = c.ParseClaims(refresh)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if cl.Type != TypeRefresh || !cl.ExpiresAt.Equal(now.Add(DefaultRefreshValidity)) {
		t.Fatalf("refresh claims: type=%v exp=%v", cl.Type, cl.ExpiresAt)
	}
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	tok := issue(t, c, IssueContext{Principal: alice(), Now: time.Now().Add(-48 * time.Hour)})

	if c.Validate(tok) {
		t.Fatalf("expired token should not validate")
	}
	if _, err := c.ParseClaims(tok); !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
	if _, err := c.TryAuthentication(context.Background(), tok); !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	tok := issue(t, c, IssueContext{Principal: alice()})
	other := strings.Repeat("c", 64)

	if c.Validate(tok, WithSecret(other)) {
		t.Fatalf("token should not validate under another secret")
	}
	if _, err := c.ParseClaimsWithSecret(tok, other); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
	if _, err := c.TryAuthenticationWithSecret(context.Background(), tok, other); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

const b64url = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// flip changes the character at i to one whose top bit differs, which always alters
// the decoded bytes even for a trailing partial group.
func flip(tok string, i int) string {
	idx := strings.IndexByte(b64url, tok[i])
	b := []byte(tok)
	b[i] = b64url[idx^32]
	return string(b)
}

func TestCodec_TamperedTokenFails(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	tok := issue(t, c, IssueContext{Principal: alice()})

	for i := range len(tok) {
		if tok[i] == '.' {
			continue
		}
		if c.Validate(flip(tok, i)) {
			t.Fatalf("token with byte %d flipped still validates", i)
		}
	}

	sig := strings.LastIndexByte(tok, '.') + 1
	if _, err := c.ParseClaims(flip(tok, sig)); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_Malformed(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	for _, in := range []string{"", "   ", "Bearer ", "not-a-token", "a.b", "a.b.c"} {
		if _, err := c.ParseClaims(in); !errors.Is(err, errs.ErrMalformed) {
			t.Fatalf("%q: want ErrMalformed, got %v", in, err)
		}
		if c.Validate(in) {
			t.Fatalf("%q should not validate", in)
		}
	}
}

func TestCodec_RejectsSeparatorInPassport(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	p := principal.New(principal.Passport{Tenant: "saas", UserID: 7, Username: "a:@:b"})
	if _, err := c.CreateToken(IssueContext{Principal: p}); !errors.Is(err, errs.ErrMalformed) {
		t.Fatalf("CreateToken: want ErrMalformed, got %v", err)
	}
	if _, err := c.CreateRefreshToken(IssueContext{Principal: p}); !errors.Is(err, errs.ErrMalformed) {
		t.Fatalf("CreateRefreshToken: want ErrMalformed, got %v", err)
	}
}

func TestCodec_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	hs256 := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()})
	tok, err := hs256.SignedString([]byte(signSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.ParseClaims(tok); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_SchemePrefixes(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	tok := issue(t, c, IssueContext{Principal: alice()})
	for _, in := range []string{"Bearer " + tok, "bearer " + tok, "OAuth " + tok, "  " + tok + " "} {
		if !c.Validate(in) {
			t.Fatalf("%q should validate", in[:10])
		}
	}
	auth, err := c.TryAuthentication(context.Background(), "Bearer "+tok)
	if err != nil {
		t.Fatalf("TryAuthentication: %v", err)
	}
	if auth.Principal.Token != tok {
		t.Fatalf("stored token should be stripped of its scheme")
	}
}

func TestCodec_CustomizeRunsLast(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	c := newCodec(t)
	tok := issue(t, c, IssueContext{
		Principal: alice(),
		Now:       now,
		Customize: func(b *Builder) {
			b.Set("tenant_hint", "acme")
			b.Set("sub", "hijacked")
			b.Delete("sub")
			b.SetExpiration(now.Add(time.Hour))
			b.SetHeader("alg", "none")
			b.SetHeader("x-env", "test")
			if v, ok := b.Get(ClaimClient); !ok || v != "web" {
				t.Errorf("standard claims should be visible to Customize, got %v", v)
			}
		},
	})

	auth, err := c.TryAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("TryAuthentication: %v", err)
	}
	if auth.Principal.UserID != 42 {
		t.Fatalf("subject must survive Customize")
	}
	if auth.Claims.Raw["tenant_hint"] != "acme" {
		t.Fatalf("custom claim missing")
	}
	if !auth.Claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("exp override lost: %v", auth.Claims.ExpiresAt)
	}
}

func TestCodec_ClaimAuthoritiesAndScopes(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	p := alice()
	p.AppendScopes("openid")
	tok := issue(t, c, IssueContext{
		Principal: p,
		Customize: func(b *Builder) { b.Set("ath", "*.*,order:read,order:write") },
	})

	auth, err := c.TryAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("TryAuthentication: %v", err)
	}
	want := []string{"openid", "order:read", "order:write"}
	got := auth.Authorities()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("authorities = %v, want %v", got, want)
	}
	if !auth.Principal.HasScope("SCOPE_openid") {
		t.Fatalf("scope not restored")
	}
}

func TestCodec_LoaderEnrichesAndInstalls(t *testing.T) {
	t.Parallel()

	st := loader.NewStatic(map[int64]principal.Data{42: {Fullname: "Alice A.", Roles: []string{"auditor"}}})
	c := newCodec(t, WithLoader(st))
	tok := issue(t, c, IssueContext{Principal: alice()})

	ctx := identity.NewScope(context.Background())
	auth, err := c.TryAuthentication(ctx, tok)
	if err != nil {
		t.Fatalf("TryAuthentication: %v", err)
	}
	if auth.Principal.Fullname != "Alice A." || !auth.Principal.HasRole("auditor") {
		t.Fatalf("loader data not injected: %+v", auth.Principal)
	}
	cur, err := identity.MustCurrent(ctx)
	if err != nil || cur != auth.Principal {
		t.Fatalf("principal not installed: %v %v", cur, err)
	}
	if logctx.Copy(ctx)[logctx.KeyUserID] != "42" {
		t.Fatalf("log correlation user id not set")
	}
}

func TestCodec_LoaderFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("directory down")
	failing := loader.Strategy{LoadFn: func(context.Context, int64) (*principal.Data, error) { return nil, boom }}
	c := newCodec(t, WithLoader(failing))
	tok := issue(t, c, IssueContext{Principal: alice()})

	ctx := identity.NewScope(context.Background())
	if _, err := c.TryAuthentication(ctx, tok); !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
	if _, ok := identity.Current(ctx); ok {
		t.Fatalf("nothing should be installed on failure")
	}
}

func TestCodec_ForeignIssuerSecret(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	foreignCipher, _ := crypto.NewSubjectCipher(strings.Repeat("z", 32))
	foreign, err := New(Config{Secret: signSecret}, foreignCipher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tok, err := foreign.CreateToken(IssueContext{Principal: alice()})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if !c.Validate(tok) {
		t.Fatalf("signature is shared, token should validate")
	}
	_, err = c.TryAuthentication(context.Background(), tok)
	if err == nil {
		t.Fatalf("subject encrypted under another issuer secret must not authenticate")
	}
}

func TestCodec_UnencryptedSubject(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	raw := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "saas:@:saas:@:boss:@:web:@:42:@:alice:@:-:@:1:@:1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok, err := raw.SignedString([]byte(signSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.TryAuthentication(context.Background(), tok); !errors.Is(err, errs.ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}

func TestCodec_ValidateLoud(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	c := newCodec(t, WithLogger(zap.New(core)))

	if c.Validate("garbage") {
		t.Fatalf("garbage should not validate")
	}
	if logs.Len() != 0 {
		t.Fatalf("quiet validation should not log")
	}
	if c.Validate("garbage", Loud()) {
		t.Fatalf("garbage should not validate")
	}
	if logs.Len() != 1 {
		t.Fatalf("loud validation should log once, got %d", logs.Len())
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	cipher, _ := crypto.NewSubjectCipher(issuerSecret)
	if _, err := New(Config{}, cipher); err == nil {
		t.Fatalf("want error on empty secret")
	}
	if _, err := New(Config{Secret: signSecret}, nil); err == nil {
		t.Fatalf("want error on nil cipher")
	}
	c := newCodec(t)
	if _, err := c.CreateToken(IssueContext{}); err == nil {
		t.Fatalf("want error on nil principal")
	}
}

func TestCleanToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"abc":           "abc",
		"Bearer abc":    "abc",
		"OAuth  abc ":   "abc",
		"  bearer abc ": "abc",
		"":              "",
	}
	for in, want := range cases {
		if got := CleanToken(in); got != want {
			t.Fatalf("CleanToken(%q) = %q, want %q", in, got, want)
		}
	}
}
