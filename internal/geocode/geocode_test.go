package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func fakeNominatim(t *testing.T, body string, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		if r.URL.Query().Get("q") == "" {
			t.Error("missing q parameter")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestResolveSentinelSkipsNetwork(t *testing.T) {
	var calls int64
	srv := fakeNominatim(t, `[{"lat":"40.71","lon":"-74.00"}]`, &calls)
	defer srv.Close()
	r := New(srv.Client(), Config{BaseURL: srv.URL, UserAgent: "test"})

	for _, text := range []string{"Unknown", "UNKNOWN", "unknown", "", "   ", "none"} {
		if _, ok := r.Resolve(context.Background(), text); ok {
			t.Fatalf("expected absent for %q", text)
		}
	}
	if calls != 0 {
		t.Fatalf("expected no geocoder calls, got %d", calls)
	}
}

func TestResolveCachesSuccess(t *testing.T) {
	var calls int64
	srv := fakeNominatim(t, `[{"lat":"40.71280","lon":"-74.00600"}]`, &calls)
	defer srv.Close()
	r := New(srv.Client(), Config{BaseURL: srv.URL, UserAgent: "test"})

	first, ok := r.Resolve(context.Background(), "Main Street")
	if !ok {
		t.Fatal("expected coordinates")
	}
	if first.Lat != 40.7128 || first.Lng != -74.006 {
		t.Fatalf("coords = %+v", first)
	}

	// Second lookup, different casing, must hit the cache.
	second, ok := r.Resolve(context.Background(), "  main street ")
	if !ok || second != first {
		t.Fatalf("cache miss: %+v vs %+v", second, first)
	}
	if calls != 1 {
		t.Fatalf("expected one geocoder call, got %d", calls)
	}
}

func TestResolveCachesNotFound(t *testing.T) {
	var calls int64
	srv := fakeNominatim(t, `[]`, &calls)
	defer srv.Close()
	r := New(srv.Client(), Config{BaseURL: srv.URL, UserAgent: "test"})

	if _, ok := r.Resolve(context.Background(), "nowhere at all"); ok {
		t.Fatal("expected not found")
	}
	if _, ok := r.Resolve(context.Background(), "Nowhere At All"); ok {
		t.Fatal("expected cached not found")
	}
	if calls != 1 {
		t.Fatalf("not-found outcome must be cached, got %d calls", calls)
	}
}

func TestResolveServerErrorIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	r := New(srv.Client(), Config{BaseURL: srv.URL, UserAgent: "test"})

	if _, ok := r.Resolve(context.Background(), "Main Street"); ok {
		t.Fatal("expected absent on server error")
	}
}

func TestResolveFallbackProvider(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer primary.Close()

	var fallbackCalls int64
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fallbackCalls, 1)
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("missing api key, query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":51.5,"lng":-0.12}}}]}`))
	}))
	defer fallback.Close()

	r := New(primary.Client(), Config{
		BaseURL:     primary.URL,
		UserAgent:   "test",
		FallbackURL: fallback.URL,
		FallbackKey: "secret",
	})
	coords, ok := r.Resolve(context.Background(), "Trafalgar Square")
	if !ok {
		t.Fatal("expected fallback coordinates")
	}
	if coords.Lat != 51.5 || coords.Lng != -0.12 {
		t.Fatalf("coords = %+v", coords)
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback calls = %d", fallbackCalls)
	}
}
