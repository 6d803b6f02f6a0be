package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permStaff             = "staff"
	permBilling           = "billing"
	clientKeyUnknown      = "unknown"

	healthServicePrefix     = "/grpc.health.v1.Health/"
	reflectionServicePrefix = "/grpc.reflection."
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// keyring resolves API clients and checks their permissions. It is shared by
// the HTTP and gRPC front ends.
type keyring struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *clientLimiters
}

func newKeyring(cfg *config.APIConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &keyring{cfg: cfg, clients: m, limiter: newClientLimiters(cfg.RateLimit)}
}

func (k *keyring) apiKeyHeader() string {
	h := strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (k *keyring) extraHeader() string {
	h := strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderExtra))
	if h == "" {
		return apiExtraHeaderDefault
	}
	return h
}

// authenticate checks the key pair and that the client holds required.
func (k *keyring) authenticate(apiKey, extra, required string) error {
	if apiKey == "" || extra == "" {
		return errMissingKey
	}
	client, ok := k.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}
	return checkPermission(client, required)
}

func checkPermission(client config.APIClientKey, required string) error {
	if required == "" {
		return nil
	}
	// If permissions list is empty, treat as allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func (k *keyring) allow(clientKey string) error {
	if k.cfg.RateLimit.RPS <= 0 {
		return nil
	}
	if !k.limiter.allow(clientKey) {
		return errRateLimited
	}
	return nil
}

type AuthInterceptor struct {
	cfg  *config.APIConfig
	keys *keyring
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{cfg: cfg, keys: newKeyring(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *AuthInterceptor) check(ctx context.Context, fullMethod string) error {
	if !a.cfg.Enabled || strings.HasPrefix(fullMethod, healthServicePrefix) {
		return nil
	}
	if a.cfg.Auth.Enabled {
		if err := a.checkAuth(ctx, fullMethod); err != nil {
			return err
		}
	}
	if err := a.keys.allow(a.clientKey(ctx)); err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	return nil
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.keys.apiKeyHeader()))
	extra := first(md.Get(a.keys.extraHeader()))
	err := a.keys.authenticate(apiKey, extra, requiredPermission(fullMethod))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Unauthenticated, err.Error())
	}
}

// requiredPermission maps gRPC methods to a permission. Reflection exposes the
// service surface and is limited to staff keys.
func requiredPermission(fullMethod string) string {
	if strings.HasPrefix(fullMethod, reflectionServicePrefix) {
		return permStaff
	}
	return ""
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.keys.apiKeyHeader())); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := logging.Component(logger, "grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

const requestIDMetadataKey = "x-request-id"

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}
