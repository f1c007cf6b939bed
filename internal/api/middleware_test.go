package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ragstore/ragstore/internal/authz"
	"github.com/ragstore/ragstore/internal/log"
)

func TestRequestIDMiddleware_Generates(t *testing.T) {
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := requestIDFromContext(r.Context()); !ok || id == "" {
			t.Error("request ID missing from context")
		}
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	got := w.Header().Get("X-Request-ID")
	if got == "" {
		t.Fatal("requestIDMiddleware() did not set X-Request-ID header")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("X-Request-ID = %q, not a valid UUID", got)
	}
}

func TestRequestIDMiddleware_EchoesValid(t *testing.T) {
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	want := uuid.New().String()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", want)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-ID"); got != want {
		t.Errorf("X-Request-ID = %q, want %q", got, want)
	}
}

func TestRequestIDMiddleware_ReplacesInvalid(t *testing.T) {
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "not-a-valid-uuid")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	got := w.Header().Get("X-Request-ID")
	if got == "not-a-valid-uuid" {
		t.Error("invalid incoming request ID must not be propagated")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("X-Request-ID = %q, not a valid UUID", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		name       string
		auth       tokenAuth
		header     string
		wantOK     bool
		wantCaps   authz.Capability
		wantDenied authz.Capability
	}{
		{
			name:     "permissive mode grants everything",
			auth:     tokenAuth{},
			wantOK:   true,
			wantCaps: authz.CapRead | authz.CapWrite | authz.CapAdmin,
		},
		{
			name:       "no token is read-only",
			auth:       tokenAuth{writeToken: "w"},
			wantOK:     true,
			wantCaps:   authz.CapRead,
			wantDenied: authz.CapWrite,
		},
		{
			name:       "write token",
			auth:       tokenAuth{writeToken: "w", adminToken: "a"},
			header:     "Bearer w",
			wantOK:     true,
			wantCaps:   authz.CapRead | authz.CapWrite,
			wantDenied: authz.CapAdmin,
		},
		{
			name:     "admin token",
			auth:     tokenAuth{writeToken: "w", adminToken: "a"},
			header:   "Bearer a",
			wantOK:   true,
			wantCaps: authz.CapRead | authz.CapWrite | authz.CapAdmin,
		},
		{
			name:   "unknown token rejected",
			auth:   tokenAuth{writeToken: "w"},
			header: "Bearer stolen",
			wantOK: false,
		},
		{
			name:   "malformed header rejected",
			auth:   tokenAuth{writeToken: "w"},
			header: "Basic dXNlcjpwYXNz",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			ac, ok := tt.auth.authenticate(r)
			if ok != tt.wantOK {
				t.Fatalf("authenticate() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !ac.Can(tt.wantCaps) {
				t.Errorf("context should grant %s", tt.wantCaps)
			}
			if tt.wantDenied != 0 && ac.Can(tt.wantDenied) {
				t.Errorf("context should not grant %s", tt.wantDenied)
			}
		})
	}
}

func TestAuthMiddleware_RejectsUnknownToken(t *testing.T) {
	auth := tokenAuth{writeToken: "secret"}
	handler := authMiddleware(auth, log.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run for a rejected token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_StoresContext(t *testing.T) {
	auth := tokenAuth{writeToken: "secret"}
	var got authz.Context
	handler := authMiddleware(auth, log.NewNop())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = authzFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if got.Principal() != "writer" {
		t.Errorf("principal = %q, want writer", got.Principal())
	}
	if !got.Can(authz.CapWrite) || got.Can(authz.CapAdmin) {
		t.Error("write token should grant read|write but not admin")
	}
}
