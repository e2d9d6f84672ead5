package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Error("Request over the limit should be denied")
	}
	// A different IP has its own bucket.
	if !rl.allow("5.6.7.8") {
		t.Error("Different IP should be allowed")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.allow("1.2.3.4") {
		t.Fatal("First request should be allowed")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("Second request in window should be denied")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.allow("1.2.3.4") {
		t.Error("Request after window reset should be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)

	for i := 0; i < 10; i++ {
		rl.allow("10.0.0." + string(rune('0'+i)))
	}
	time.Sleep(5 * time.Millisecond)
	rl.Cleanup()

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected all buckets cleaned up, %d remain", n)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("First request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: expected 429, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if got := clientIP(req); got != "1.2.3.4" {
		t.Errorf("Expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "9.8.7.6")
	if got := clientIP(req); got != "9.8.7.6" {
		t.Errorf("Expected forwarded address, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "9.8.7.6, 10.0.0.1")
	if got := clientIP(req); got != "9.8.7.6" {
		t.Errorf("Expected first forwarded address, got %q", got)
	}
}
