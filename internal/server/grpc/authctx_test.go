package grpcserver

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/reqattr"
)

func ctxWithAuth(tok string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+tok)
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ctx  context.Context
		want string
		ok   bool
	}{
		{"bearer", ctxWithAuth("abc"), "abc", true},
		{"lowercase oauth", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "oauth  xyz ")), "xyz", true},
		{"basic", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic dXNlcjpwdw==")), "", false},
		{"empty token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer ")), "", false},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.MD{}), "", false},
		{"no metadata", context.Background(), "", false},
	}
	for _, tc := range cases {
		got, err := bearerTokenFromMD(tc.ctx)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%s: got %q, %v", tc.name, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected error, got %q", tc.name, got)
		}
	}

	_, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), metadata.MD{}))
	if !errors.Is(err, errNoBearer) {
		t.Fatalf("want errNoBearer, got %v", err)
	}
}

func Test_bindScope(t *testing.T) {
	t.Parallel()

	md := metadata.Pairs("x-tenant", "acme", "x-app", "shop", "x-client", "ios")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: fakeAddr{}})

	ctx = bindScope(ctx, "/riff.Service/Get")

	a, ok := reqattr.Get(ctx)
	if !ok {
		t.Fatalf("attributes not bound")
	}
	if a.Tenant != "acme" || a.App != "shop" || a.Client != "ios" || a.Platform != principal.DefaultPlatform {
		t.Fatalf("unexpected coordinates: %+v", a)
	}
	if a.RemoteAddr != "127.0.0.1:12345" || a.Method != "/riff.Service/Get" {
		t.Fatalf("unexpected call info: %+v", a)
	}
	if a.RequestID == "" {
		t.Fatalf("request id should be generated")
	}

	f := logctx.Copy(ctx)
	if f[logctx.KeyTenant] != "acme" || f[logctx.KeyRequestID] != a.RequestID {
		t.Fatalf("log fields = %v", f)
	}
	if p := identity.CurrentOrDummy(ctx); !p.Dummy {
		t.Fatalf("fresh scope must be anonymous")
	}
}

func Test_bindScope_IsolatesCalls(t *testing.T) {
	t.Parallel()

	base := ctxWithAuth("tok")
	first := bindScope(base, "/riff.Service/A")
	second := bindScope(base, "/riff.Service/B")

	identity.Install(first, principal.New(principal.Passport{UserID: 1}))
	if _, ok := identity.Current(second); ok {
		t.Fatalf("principal leaked across call scopes")
	}
}
