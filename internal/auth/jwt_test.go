package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	testIssuer   = "postroom"
	testAudience = "postroom-api"
)

func newTestKeypair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestNewJWTValidator(t *testing.T) {
	_, pubPEM := newTestKeypair(t)

	tests := []struct {
		name        string
		pem         string
		expectError bool
	}{
		{
			name:        "valid PKIX public key",
			pem:         pubPEM,
			expectError: false,
		},
		{
			name:        "empty PEM",
			pem:         "",
			expectError: true,
		},
		{
			name:        "garbage PEM",
			pem:         "-----BEGIN PUBLIC KEY-----\naGVsbG8=\n-----END PUBLIC KEY-----",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTValidator(tt.pem, testIssuer, testAudience)
			if tt.expectError && err == nil {
				t.Error("NewJWTValidator() expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("NewJWTValidator() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	key, pubPEM := newTestKeypair(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator: %v", err)
	}

	actorID := uuid.New()

	tests := []struct {
		name        string
		claims      jwt.MapClaims
		expectError bool
	}{
		{
			name: "valid token",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": testAudience,
				"sub": actorID.String(),
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			expectError: false,
		},
		{
			name: "wrong issuer",
			claims: jwt.MapClaims{
				"iss": "someone-else",
				"aud": testAudience,
				"sub": actorID.String(),
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			expectError: true,
		},
		{
			name: "wrong audience",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": "other-api",
				"sub": actorID.String(),
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			expectError: true,
		},
		{
			name: "missing sub",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": testAudience,
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			expectError: true,
		},
		{
			name: "sub not a UUID",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": testAudience,
				"sub": "not-a-uuid",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			expectError: true,
		},
		{
			name: "expired token",
			claims: jwt.MapClaims{
				"iss": testIssuer,
				"aud": testAudience,
				"sub": actorID.String(),
				"exp": time.Now().Add(-time.Hour).Unix(),
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateToken(signToken(t, key, tt.claims))
			if tt.expectError {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateToken() unexpected error: %v", err)
				return
			}
			if got != actorID {
				t.Errorf("ValidateToken() = %s, want %s", got, actorID)
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	key, pubPEM := newTestKeypair(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator: %v", err)
	}

	actorID := uuid.New()
	valid := signToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": actorID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
		wantActor  bool
	}{
		{
			name:       "valid bearer token",
			path:       "/admin/newsletters",
			authHeader: "Bearer " + valid,
			wantStatus: http.StatusOK,
			wantActor:  true,
		},
		{
			name:       "missing header",
			path:       "/admin/newsletters",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			path:       "/admin/newsletters",
			authHeader: "Token " + valid,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "healthz bypasses auth",
			path:       "/healthz",
			authHeader: "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor uuid.UUID
			var gotOK bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotActor, gotOK = GetActorIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			v.HTTPMiddleware(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantActor {
				if !gotOK || gotActor != actorID {
					t.Errorf("actor in context = %s (ok=%v), want %s", gotActor, gotOK, actorID)
				}
			}
		})
	}
}

func TestGetActorIDFromContextMissing(t *testing.T) {
	if _, ok := GetActorIDFromContext(context.Background()); ok {
		t.Error("GetActorIDFromContext() ok = true on empty context")
	}
}
