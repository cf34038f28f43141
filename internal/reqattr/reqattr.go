// Package reqattr carries the inbound request coordinates (tenant, platform, app, client)
// alongside the identity of a request.
package reqattr

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/slot"
)

// Inbound header names.
const (
	HeaderTenant    = "X-Tenant"
	HeaderPlatform  = "X-Platform"
	HeaderApp       = "X-App"
	HeaderClient    = "X-Client"
	HeaderRequestID = "X-Request-Id"
)

// Attributes are the per-request values propagated to background work.
type Attributes struct {
	Tenant     string
	Platform   string
	App        string
	Client     string
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
}

// Getter looks up a single header value; http.Header.Get satisfies it.
type Getter func(name string) string

// FromHeader reads the tenant coordinates, falling back to the defaults.
// A missing request id is generated.
func FromHeader(get Getter) Attributes {
	a := Attributes{
		Tenant:    value(get, HeaderTenant, principal.DefaultTenant),
		Platform:  value(get, HeaderPlatform, principal.DefaultPlatform),
		App:       value(get, HeaderApp, principal.DefaultApp),
		Client:    value(get, HeaderClient, principal.DefaultClient),
		RequestID: strings.TrimSpace(get(HeaderRequestID)),
	}
	if a.RequestID == "" {
		if id, err := uuid.NewV4(); err == nil {
			a.RequestID = id.String()
		}
	}
	return a
}

// FromRequest reads attributes from an HTTP request.
func FromRequest(r *http.Request) Attributes {
	a := FromHeader(r.Header.Get)
	a.Method = r.Method
	a.Path = r.URL.Path
	a.RemoteAddr = r.RemoteAddr
	return a
}

func value(get Getter, name, def string) string {
	if v := strings.TrimSpace(get(name)); v != "" {
		return v
	}
	return def
}

// Bind attaches a fresh attribute slot to ctx.
func Bind(ctx context.Context) context.Context {
	return slot.Bind(ctx, &slot.Slot[Attributes]{})
}

// Set stores a in the slot bound to ctx. It reports false when no slot is bound.
func Set(ctx context.Context, a Attributes) bool {
	s, ok := slot.From[Attributes](ctx)
	if ok {
		s.Set(a)
	}
	return ok
}

// Get returns the attributes stored in the slot bound to ctx.
func Get(ctx context.Context) (Attributes, bool) {
	s, ok := slot.From[Attributes](ctx)
	if !ok {
		return Attributes{}, false
	}
	return s.Get()
}
