package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/redis"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddlewareNilLimiterPassesThrough(t *testing.T) {
	mw := RateLimitMiddleware(nil, zap.NewNop(), IPKeyFunc)
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddlewareBlocksOverLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client, err := redis.NewFromAddr(context.Background(), mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  2,
		Window: time.Minute,
	})

	mw := RateLimitMiddleware(limiter, zap.NewNop(), func(r *http.Request) string {
		return "property:test"
	})
	handler := mw(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

// TestRateLimitOnMountedRoutes goes through the real route tree instead of a
// stubbed key function: the limiter must see the propertyID path parameter,
// which chi only resolves once the property subrouter has matched.
func TestRateLimitOnMountedRoutes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client, err := redis.NewFromAddr(context.Background(), mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})

	h := NewHandler(zap.NewNop(), NewMockService(), &MockRunner{}, &MockLeases{})
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		h.Routes(r, RateLimitMiddleware(limiter, zap.NewNop(), PropertyKeyFunc))
	})

	propertyID := uuid.New()
	url := "/v1/properties/" + propertyID.String() + "/reminders/stats"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatal("limiter did not run, the property key was not resolved from the path")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", rec.Code)
	}

	// A different property has its own counter.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/properties/"+uuid.New().String()+"/reminders/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("other property: status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddlewareEmptyKeyPassesThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client, err := redis.NewFromAddr(context.Background(), mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})

	mw := RateLimitMiddleware(limiter, zap.NewNop(), func(r *http.Request) string { return "" })
	handler := mw(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
}
