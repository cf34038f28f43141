package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/reqattr"
)

var errNoBearer = errors.New("no bearer token")

// bindScope attaches a fresh identity scope to ctx and fills its request attributes
// from the incoming metadata.
func bindScope(ctx context.Context, method string) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	a := reqattr.FromHeader(func(name string) string {
		if v := md.Get(strings.ToLower(name)); len(v) > 0 {
			return v[0]
		}
		return ""
	})
	a.Method = method
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		a.RemoteAddr = p.Addr.String()
	}

	ctx = identity.NewScope(ctx)
	reqattr.Set(ctx, a)
	logctx.Put(ctx, logctx.KeyRequestID, a.RequestID)
	logctx.Put(ctx, logctx.KeyTenant, a.Tenant)
	return ctx
}

// bearerTokenFromMD extracts the token of an "authorization: Bearer|OAuth <token>" entry.
func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		scheme, rest, ok := strings.Cut(v, " ")
		if !ok || !(strings.EqualFold(scheme, "bearer") || strings.EqualFold(scheme, "oauth")) {
			continue
		}
		if t := strings.TrimSpace(rest); t != "" {
			return t, nil
		}
	}
	return "", errNoBearer
}
