// ABOUTME: Unit tests for JWT verification and the bearer middleware
// ABOUTME: Covers valid, invalid, and expired tokens plus header parsing

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var authTestSecret = []byte("httpapi-bearer-test-secret-32by!")

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)

	token, err := verifier.Generate("admin", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	subject, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if subject != "admin" {
		t.Errorf("Verify() = %q, want %q", subject, "admin")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTVerifier([]byte("a-different-secret-entirely-32by"))
				token, _ := other.Generate("admin", time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifier.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)

	token, err := verifier.Generate("admin", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubClaim(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authTestSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantToken  string
		wantErrMsg string
	}{
		{
			name:      "valid bearer token",
			header:    "Bearer abc123",
			wantToken: "abc123",
		},
		{
			name:       "missing header",
			header:     "",
			wantErrMsg: "missing authorization header",
		},
		{
			name:       "wrong scheme",
			header:     "Basic abc123",
			wantErrMsg: "invalid authorization header format",
		},
		{
			name:       "empty token",
			header:     "Bearer ",
			wantErrMsg: "empty token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, errMsg := extractBearerToken(tt.header)
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
			if errMsg != tt.wantErrMsg {
				t.Errorf("errMsg = %q, want %q", errMsg, tt.wantErrMsg)
			}
		})
	}
}

func TestBearerAuth_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)
	token, _ := verifier.Generate("admin", time.Hour)

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	bearerAuth(verifier)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !called {
		t.Error("expected wrapped handler to run")
	}
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("wrapped handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()

	bearerAuth(verifier)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}

	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp["error"] != "missing authorization header" {
		t.Errorf("unexpected error message: %s", errResp["error"])
	}
}

func TestBearerAuth_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier(authTestSecret)
	token, _ := verifier.Generate("admin", -time.Minute)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("wrapped handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	bearerAuth(verifier)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
