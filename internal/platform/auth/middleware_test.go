package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubTokenVerifier struct {
	token    *Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyToken(_ context.Context, raw string) (*Token, error) {
	s.received = raw
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/my-bookings", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	if next == nil {
		next = func(http.ResponseWriter, *http.Request) { t.Fatalf("handler should not be called") }
	}
	mw(next).ServeHTTP(rr, req)
	return rr
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	verifier := &stubTokenVerifier{token: &Token{
		UID:    "uid-123",
		Claims: map[string]any{"role": []any{"Admin", "user", "admin"}, "email": "ops@example.com"},
	}}
	authn := NewAuthenticator(verifier)

	called := false
	rr := serve(t, authn.RequireAuth(RoleAdmin), "Bearer token-abc", func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "ops@example.com" {
			t.Fatalf("unexpected identity %#v", identity)
		}
		if !identity.IsAdmin() || len(identity.Roles) != 2 {
			t.Fatalf("expected deduplicated admin roles, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if !called || rr.Code != http.StatusNoContent {
		t.Fatalf("expected handler call with 204, got %d", rr.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("verifier received %q", verifier.received)
	}
}

func TestRequireAuthDefaultsToUserRole(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{token: &Token{UID: "uid-1"}})

	rr := serve(t, authn.RequireAuth(), "Bearer t", func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleUser) || identity.IsAdmin() {
			t.Fatalf("expected plain user, got %v", identity.Roles)
		}
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = serve(t, authn.RequireAuth(RoleAdmin), "Bearer t", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing admin role, got %d", rr.Code)
	}
}

func TestRequireAuthFirebaseAdminClaim(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{token: &Token{UID: "uid-1", Claims: map[string]any{"admin": true}}})
	rr := serve(t, authn.RequireAuth(RoleAdmin), "Bearer t", func(http.ResponseWriter, *http.Request) {})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin custom claim to pass, got %d", rr.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		err      error
		wantCode string
	}{
		{"missing header", "", nil, "unauthenticated"},
		{"wrong scheme", "Basic abc", nil, "unauthenticated"},
		{"expired", "Bearer t", ErrTokenExpired, "token_expired"},
		{"invalid", "Bearer t", ErrTokenInvalid, "invalid_token"},
		{"other", "Bearer t", errors.New("network"), "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(&stubTokenVerifier{err: tc.err, token: &Token{UID: "u"}})
			rr := serve(t, authn.RequireAuth(), tc.header, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected error %q, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestHMACTokenVerifierRoundTrip(t *testing.T) {
	verifier, err := NewHMACTokenVerifier("0123456789abcdef0123456789abcdef", "rentwheel")
	if err != nil {
		t.Fatalf("NewHMACTokenVerifier: %v", err)
	}

	raw, err := verifier.IssueToken("user-1", "rider@example.com", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	token, err := verifier.VerifyToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if token.UID != "user-1" || token.Claims["role"] != RoleAdmin {
		t.Fatalf("unexpected token %#v", token)
	}

	expired, err := verifier.IssueToken("user-1", "", "", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.VerifyToken(context.Background(), expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	other, _ := NewHMACTokenVerifier("ffffffffffffffffffffffffffffffff", "rentwheel")
	foreign, _ := other.IssueToken("user-1", "", "", time.Hour)
	if _, err := verifier.VerifyToken(context.Background(), foreign); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}

	wrongIssuer, _ := NewHMACTokenVerifier("0123456789abcdef0123456789abcdef", "someone-else")
	minted, _ := wrongIssuer.IssueToken("user-1", "", "", time.Hour)
	if _, err := verifier.VerifyToken(context.Background(), minted); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	if _, err := NewHMACTokenVerifier("short", ""); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
