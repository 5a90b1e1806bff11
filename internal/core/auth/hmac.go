package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "ec-v1-"

// ParseAPIKey extracts secret_id and random_data from an API key.
// Format: ec-v1-<secret_id:32 hex>-<random_data:64 hex>.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != "ec" || parts[1] != "v1" {
		return "", "", ErrInvalidKeyFormat
	}

	secretID, randomData = parts[2], parts[3]
	if len(secretID) != 32 || len(randomData) != 64 {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// ComputeHMAC computes the HMAC-SHA256 of apiKey under secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// VerifyHMAC compares two hashes in constant time.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs an API key from its components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s%s-%s", keyPrefix, secretID, randomData)
}

// GenerateAPIKey creates a fresh key bound to secretID.
func GenerateAPIKey(secretID string) (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	key := FormatAPIKey(secretID, hex.EncodeToString(buf[:]))
	if _, _, err := ParseAPIKey(key); err != nil {
		return "", err
	}
	return key, nil
}
