// Package auth provides HMAC-based API key authentication for the lookup
// server.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey is the gRPC metadata entry carrying the API key.
const MetadataKey = "x-api-key"

type contextKey string

const keyNameKey = contextKey("api_key_name")

// Queries is the subset of *db.Queries authentication needs.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets keyed by
// secret_id.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates apiKey and returns the key's name on success.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		Name       string       `db:"name"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.Get(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Throttled to one write per minute per key.
	if shouldUpdateLastUsed(row.LastUsedAt, a.now()) {
		_, _ = a.queries.Exec(ctx, "update-last-used", a.now(), row.APIKeyID)
	}

	return row.Name, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	return now.Sub(lastUsed.Time) > time.Minute
}

// UnaryInterceptor returns a gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		name, err := a.Authenticate(ctx, keys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrDatabase):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(context.WithValue(ctx, keyNameKey, name), req)
	}
}

// KeyNameFromContext returns the authenticated key name, or "".
func KeyNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(keyNameKey).(string); ok {
		return name
	}
	return ""
}
