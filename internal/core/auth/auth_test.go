package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/editcheck/internal/core/db"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("testsecret1234567890abcdefghijklmnop")

func newTestQueries(t *testing.T) *db.Queries {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateUp(ctx, conn); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	return q
}

func TestParseAPIKey(t *testing.T) {
	valid := FormatAPIKey(testSecretID, strings.Repeat("ab", 32))
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid", key: valid},
		{name: "wrong prefix", key: strings.Replace(valid, "ec-", "tk-", 1), wantErr: true},
		{name: "wrong version", key: strings.Replace(valid, "-v1-", "-v2-", 1), wantErr: true},
		{name: "short secret id", key: "ec-v1-0123-" + strings.Repeat("ab", 32), wantErr: true},
		{name: "uppercase hex", key: FormatAPIKey(strings.ToUpper(testSecretID), strings.Repeat("ab", 32)), wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, _, err := ParseAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && secretID != testSecretID {
				t.Errorf("secretID = %s, want %s", secretID, testSecretID)
			}
			if err != nil && !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("error = %v, want ErrInvalidKeyFormat", err)
			}
		})
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateAPIKey(testSecretID)
	if a == b {
		t.Error("GenerateAPIKey() returned the same key twice")
	}
	if !VerifyHMAC(ComputeHMAC(testSecret, a), ComputeHMAC(testSecret, a)) {
		t.Error("VerifyHMAC() rejected identical hashes")
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	q := newTestQueries(t)
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)

	issued, err := Issue(ctx, q, testSecretID, testSecret, "geocoder")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	name, err := a.Authenticate(ctx, issued.Key)
	if err != nil || name != "geocoder" {
		t.Fatalf("Authenticate() = %q, %v, want geocoder, nil", name, err)
	}
	// Second call exercises the last_used_at throttle path.
	if _, err := a.Authenticate(ctx, issued.Key); err != nil {
		t.Fatalf("Authenticate() second call error = %v", err)
	}

	unknownSecret := FormatAPIKey("fedcba9876543210fedcba9876543210", strings.Repeat("cd", 32))
	forged, _ := GenerateAPIKey(testSecretID)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "malformed", key: "nope", want: ErrInvalidKeyFormat},
		{name: "unknown secret", key: unknownSecret, want: ErrUnknownKey},
		{name: "not issued", key: forged, want: ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Authenticate(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := Revoke(ctx, q, issued.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := a.Authenticate(ctx, issued.Key); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Authenticate(revoked) error = %v, want ErrKeyRevoked", err)
	}
	if err := Revoke(ctx, q, "missing"); err == nil {
		t.Error("Revoke(missing) succeeded")
	}
}

func TestUnaryInterceptor(t *testing.T) {
	ctx := context.Background()
	q := newTestQueries(t)
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
	issued, err := Issue(ctx, q, testSecretID, testSecret, "geocoder")
	if err != nil {
		t.Fatal(err)
	}
	revoked, _ := Issue(ctx, q, testSecretID, testSecret, "old")
	if err := Revoke(ctx, q, revoked.ID); err != nil {
		t.Fatal(err)
	}

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = KeyNameFromContext(ctx)
		return "ok", nil
	}
	intercept := a.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	tests := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{name: "valid key", ctx: metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, issued.Key)), want: codes.OK},
		{name: "no metadata", ctx: ctx, want: codes.Unauthenticated},
		{name: "no key", ctx: metadata.NewIncomingContext(ctx, metadata.Pairs("other", "x")), want: codes.Unauthenticated},
		{name: "revoked key", ctx: metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, revoked.Key)), want: codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			_, err := intercept(tt.ctx, nil, info, handler)
			if got := status.Code(err); got != tt.want {
				t.Fatalf("code = %v, want %v (err %v)", got, tt.want, err)
			}
			if tt.want == codes.OK && seen != "geocoder" {
				t.Errorf("KeyNameFromContext() = %q, want geocoder", seen)
			}
		})
	}
}
