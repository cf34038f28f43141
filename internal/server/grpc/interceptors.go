package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/logctx"
	"github.com/and161185/riffid/internal/principal"
)

// Authenticator verifies an access token and installs its principal into ctx's scope.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*principal.Principal, error)
}

// Public reports whether a full method name may be called without a token.
type Public func(fullMethod string) bool

// PublicMethods returns a Public matching the listed full method names.
func PublicMethods(methods ...string) Public {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return func(fullMethod string) bool {
		_, ok := set[fullMethod]
		return ok
	}
}

type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context { return s.ctx }

// ScopeUnary binds a per-call identity scope. It must run before the logging and auth interceptors.
func ScopeUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		return next(bindScope(ctx, info.FullMethod), req)
	}
}

// ScopeStream is the stream counterpart of ScopeUnary.
func ScopeStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		return next(srv, &scopedStream{ServerStream: ss, ctx: bindScope(ss.Context(), info.FullMethod)})
	}
}

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads or tokens
		logctx.Logger(ctx, log).Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// RecoverStream is the stream counterpart of RecoverUnary.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(srv, ss)
	}
}

// authenticate resolves the caller of method. Public methods proceed anonymously
// when the token is absent or invalid.
func authenticate(ctx context.Context, auth Authenticator, public Public, method string) (context.Context, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		if public != nil && public(method) {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	p, err := auth.Authenticate(ctx, tok)
	if err != nil {
		if public != nil && public(method) {
			return ctx, nil
		}
		if errors.Is(err, errs.ErrThrottled) {
			return nil, status.Error(codes.ResourceExhausted, "too many failed authentications")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return identity.WithAuthenticated(ctx, p), nil
}

// AuthUnary requires a valid access token on every non-public method.
func AuthUnary(auth Authenticator, public Public) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, auth, public, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AuthStream is the stream counterpart of AuthUnary.
func AuthStream(auth Authenticator, public Public) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), auth, public, info.FullMethod)
		if err != nil {
			return err
		}
		return next(srv, &scopedStream{ServerStream: ss, ctx: ctx})
	}
}
