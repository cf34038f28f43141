// Package principal defines the identity model reconstructed from tokens.
package principal

import (
	"encoding/json"
	"slices"
	"strings"
)

const (
	rolePrefix  = "ROLE_"
	scopePrefix = "SCOPE_"
)

// Normalize strips the ROLE_ and SCOPE_ prefixes so prefixed and bare forms compare equal.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, rolePrefix)
	return strings.TrimPrefix(v, scopePrefix)
}

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (s set) has(v string) bool {
	want := Normalize(v)
	for have := range s {
		if Normalize(have) == want {
			return true
		}
	}
	return false
}

func union(s set, vals []string) set {
	if s == nil {
		s = set{}
	}
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Data is what a loader strategy returns to enrich a principal.
type Data struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Fullname    string   `json:"fullname"`
	Authorities []string `json:"authorities"`
	Scopes      []string `json:"scopes"`
	Roles       []string `json:"roles"`
}

// Principal is the authenticated (or dummy) identity of a request.
// Collections are sets and only grow: Append* and Inject union into them.
// A principal must not be mutated once it has been installed for a request.
type Principal struct {
	Tenant               string
	Platform             string
	App                  string
	Client               string
	UserID               int64
	Username             string
	Fullname             string
	Mobile               string
	Subject              string
	Token                string
	Type                 UserType
	Status               Status
	AuthenticationStatus AuthenticationStatus
	TwoFactorEnabled     bool
	Dummy                bool

	AccountNonExpired     bool
	AccountNonLocked      bool
	CredentialsNonExpired bool
	Enabled               bool

	authorities set
	scopes      set
	roles       set
}

// New builds an account-enabled principal from a passport.
func New(pp Passport) *Principal {
	return &Principal{
		Tenant:                pp.Tenant,
		Platform:              pp.Platform,
		App:                   pp.App,
		Client:                pp.Client,
		UserID:                pp.UserID,
		Username:              pp.Username,
		Mobile:                pp.Mobile,
		Subject:               pp.Subject,
		Type:                  pp.Type,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		Enabled:               true,
		authorities:           set{},
		scopes:                set{},
		roles:                 set{},
	}
}

// NewDummy returns the anonymous placeholder principal.
func NewDummy() *Principal {
	p := New(Passport{
		Tenant:   DefaultTenant,
		Platform: DefaultPlatform,
		App:      DefaultApp,
		Client:   DefaultClient,
		Username: AnonymousUsername,
		Type:     TypeBoss,
	})
	p.Status = StatusUnactivated
	p.Dummy = true
	return p
}

// Passport projects the principal back onto its passport fields.
func (p *Principal) Passport() Passport {
	return Passport{
		Tenant:   p.Tenant,
		Platform: p.Platform,
		App:      p.App,
		Client:   p.Client,
		UserID:   p.UserID,
		Username: p.Username,
		Mobile:   p.Mobile,
		Type:     p.Type,
		Subject:  p.Subject,
	}
}

// Compact returns the canonical compacted username used as the token subject plaintext.
func (p *Principal) Compact() string { return p.Passport().Compact() }

// Authorities returns the granted authorities, sorted.
func (p *Principal) Authorities() []string { return p.authorities.sorted() }

// Scopes returns the scopes, sorted.
func (p *Principal) Scopes() []string { return p.scopes.sorted() }

// Roles returns the roles, sorted.
func (p *Principal) Roles() []string { return p.roles.sorted() }

// AppendAuthorities unions vals into the authority set.
func (p *Principal) AppendAuthorities(vals ...string) {
	p.authorities = union(p.authorities, vals)
}

// AppendScopes unions vals into the scope set.
func (p *Principal) AppendScopes(vals ...string) {
	p.scopes = union(p.scopes, vals)
}

// AppendRoles unions vals into the role set.
func (p *Principal) AppendRoles(vals ...string) {
	p.roles = union(p.roles, vals)
}

// HasAuthority reports membership ignoring ROLE_/SCOPE_ prefixes.
func (p *Principal) HasAuthority(v string) bool { return p.authorities.has(v) }

// HasScope reports membership ignoring ROLE_/SCOPE_ prefixes.
func (p *Principal) HasScope(v string) bool { return p.scopes.has(v) }

// HasRole reports membership ignoring ROLE_/SCOPE_ prefixes.
func (p *Principal) HasRole(v string) bool { return p.roles.has(v) }

// Inject merges loader data: authorities, roles and scopes are unioned into the
// authority set and their own sets; fullname is taken when present.
func (p *Principal) Inject(d *Data) {
	if d == nil {
		return
	}
	p.AppendAuthorities(d.Authorities...)
	p.AppendAuthorities(d.Roles...)
	p.AppendAuthorities(d.Scopes...)
	p.AppendRoles(d.Roles...)
	p.AppendScopes(d.Scopes...)
	if d.Fullname != "" {
		p.Fullname = d.Fullname
	}
}

// Clone returns a deep copy.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.authorities = union(nil, p.authorities.sorted())
	c.scopes = union(nil, p.scopes.sorted())
	c.roles = union(nil, p.roles.sorted())
	return &c
}

type principalJSON struct {
	Tenant               string   `json:"tenant"`
	Platform             string   `json:"platform"`
	App                  string   `json:"app"`
	Client               string   `json:"client"`
	UserID               int64    `json:"user_id"`
	Username             string   `json:"username"`
	Fullname             string   `json:"fullname,omitempty"`
	Mobile               string   `json:"mobile,omitempty"`
	Type                 int      `json:"type"`
	Status               int      `json:"status"`
	AuthenticationStatus int      `json:"authentication_status"`
	TwoFactorEnabled     bool     `json:"twofa_enabled"`
	Dummy                bool     `json:"dummy"`
	Authorities          []string `json:"authorities"`
	Scopes               []string `json:"scopes"`
	Roles                []string `json:"roles"`
}

// MarshalJSON renders the principal without its token and encrypted subject.
func (p *Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(principalJSON{
		Tenant:               p.Tenant,
		Platform:             p.Platform,
		App:                  p.App,
		Client:               p.Client,
		UserID:               p.UserID,
		Username:             p.Username,
		Fullname:             p.Fullname,
		Mobile:               p.Mobile,
		Type:                 int(p.Type),
		Status:               int(p.Status),
		AuthenticationStatus: int(p.AuthenticationStatus),
		TwoFactorEnabled:     p.TwoFactorEnabled,
		Dummy:                p.Dummy,
		Authorities:          p.Authorities(),
		Scopes:               p.Scopes(),
		Roles:                p.Roles(),
	})
}
