package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func mintToken(t *testing.T, secret, headerJSON string, payload map[string]any) string {
	t.Helper()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := base64.RawURLEncoding.EncodeToString([]byte(headerJSON)) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(body))
	return body + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validToken(t *testing.T, secret, sub string) string {
	t.Helper()
	return mintToken(t, secret, `{"alg":"HS256","typ":"JWT"}`, map[string]any{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestAuthorizeBearerValidToken(t *testing.T) {
	token := validToken(t, "secret", "u1")
	claims, authErr := authorizeBearer("Bearer "+token, "secret", time.Now())
	if authErr != nil {
		t.Fatalf("expected success, got %v", authErr)
	}
	if claims.UserID != "u1" {
		t.Fatalf("expected user u1, got %q", claims.UserID)
	}
}

func TestAuthorizeBearerNoExpiryClaim(t *testing.T) {
	token := mintToken(t, "secret", `{"alg":"HS256","typ":"JWT"}`, map[string]any{"sub": "u1"})
	if _, authErr := authorizeBearer("Bearer "+token, "secret", time.Now()); authErr != nil {
		t.Fatalf("token without exp must be accepted, got %v", authErr)
	}
}

func TestAuthorizeBearerRejections(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"not a jwt", "Bearer garbage"},
		{"wrong secret", "Bearer " + validToken(t, "other-secret", "u1")},
		{"wrong algorithm", "Bearer " + mintToken(t, "secret", `{"alg":"none","typ":"JWT"}`, map[string]any{"sub": "u1"})},
		{"missing sub", "Bearer " + mintToken(t, "secret", `{"alg":"HS256","typ":"JWT"}`, map[string]any{"exp": now.Add(time.Hour).Unix()})},
		{"expired", "Bearer " + mintToken(t, "secret", `{"alg":"HS256","typ":"JWT"}`, map[string]any{"sub": "u1", "exp": now.Add(-time.Hour).Unix()})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, authErr := authorizeBearer(tc.header, "secret", now)
			if authErr == nil {
				t.Fatalf("expected rejection")
			}
			if authErr.status != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", authErr.status)
			}
		})
	}
}
