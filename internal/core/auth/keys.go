package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IssuedKey is a newly created API key. Key is shown once; only its HMAC is
// stored.
type IssuedKey struct {
	ID   string
	Name string
	Key  string
}

// Issue creates and stores a key named name under the given secret.
func Issue(ctx context.Context, q Queries, secretID string, secret []byte, name string) (IssuedKey, error) {
	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return IssuedKey{}, err
	}
	id := uuid.Must(uuid.NewV7()).String()

	_, err = q.Exec(ctx, "insert-api-key", id, name, ComputeHMAC(secret, key), secretID, time.Now().UTC())
	if err != nil {
		return IssuedKey{}, fmt.Errorf("failed to store api key: %w", err)
	}
	return IssuedKey{ID: id, Name: name, Key: key}, nil
}

// Revoke marks a key unusable.
func Revoke(ctx context.Context, q Queries, apiKeyID string) error {
	res, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC(), apiKeyID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found", apiKeyID)
	}
	return nil
}
