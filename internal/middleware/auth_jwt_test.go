package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignJWT("s3cret", TokenClaims{Sub: "user-1", Locale: "id", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}
	claims, err := VerifyJWT("s3cret", token, now)
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Locale != "id" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := VerifyJWT("other", token, now); err != ErrInvalidToken {
		t.Fatalf("wrong secret error = %v, want ErrInvalidToken", err)
	}
	if _, err := VerifyJWT("s3cret", token, now.Add(2*time.Hour)); err != ErrTokenExpired {
		t.Fatalf("expired error = %v, want ErrTokenExpired", err)
	}
	if _, err := SignJWT("s3cret", TokenClaims{}); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestRequesterMiddleware(t *testing.T) {
	token, err := SignJWT("s3cret", TokenClaims{Sub: "user-9"})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}
	tests := []struct {
		name      string
		secret    string
		header    string
		wantCode  int
		wantOwner string
	}{
		{name: "anonymous without header", secret: "s3cret", wantCode: http.StatusOK},
		{name: "bearer token", secret: "s3cret", header: "Bearer " + token, wantCode: http.StatusOK, wantOwner: "user-9"},
		{name: "bad scheme", secret: "s3cret", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "tampered token", secret: "s3cret", header: "Bearer " + token + "x", wantCode: http.StatusUnauthorized},
		{name: "auth disabled", secret: "", header: "Bearer " + token, wantCode: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var owner string
			handler := Requester(tc.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				owner = RequesterIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/songs/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantCode)
			}
			if owner != tc.wantOwner {
				t.Fatalf("requester = %q, want %q", owner, tc.wantOwner)
			}
			if tc.wantCode == http.StatusUnauthorized && !strings.Contains(rr.Body.String(), `"code":"unauthorized"`) {
				t.Fatalf("unexpected body: %s", rr.Body.String())
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not propagated: %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id\n" || len(seen) != 36 {
		t.Fatalf("invalid request id should be replaced, got %q", seen)
	}
}
