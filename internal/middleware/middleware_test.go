package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func okHandler(captured *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = GetUserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_Middleware(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	valid, err := auth.GenerateAccessToken(userID, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	expired, _ := auth.GenerateAccessToken(userID, -time.Minute)
	foreign, _ := NewJWTAuth("other-secret").GenerateAccessToken(userID, time.Minute)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + valid, http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got uuid.UUID
			req := httptest.NewRequest(http.MethodGet, "/api/v1/learning/courses/x/progress", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			auth.Middleware(okHandler(&got)).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantStatus == http.StatusOK && got != userID {
				t.Errorf("expected user id %s in context, got %s", userID, got)
			}
		})
	}
}

func TestJWTAuth_ParseTokenExpired(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, _ := auth.GenerateAccessToken(uuid.New(), -time.Minute)
	if _, err := auth.ParseToken(token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	handler := rl.Middleware(okHandler(nil))

	call := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/learning/session", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	alice, bob := uuid.New(), uuid.New()
	if call(alice) != http.StatusOK || call(alice) != http.StatusOK {
		t.Fatalf("expected first two requests to pass")
	}
	if code := call(alice); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on third request, got %d", code)
	}
	if code := call(bob); code != http.StatusOK {
		t.Errorf("other users must not share the window, got %d", code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("http://localhost:5173")(okHandler(nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/learning/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code >= http.StatusMultipleChoices {
		t.Errorf("expected successful preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("expected allowed origin header")
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("expected simple request to pass with CORS headers, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("unexpected CORS header for foreign origin")
	}
}
