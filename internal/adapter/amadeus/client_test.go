package amadeus_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/DealWatch/internal/adapter/amadeus"
	"github.com/Strob0t/DealWatch/internal/port/offersource"
	"github.com/Strob0t/DealWatch/internal/resilience"
	"github.com/Strob0t/DealWatch/internal/secrets"
)

// memCache is an in-memory cache.Cache honoring TTLs.
type memCache struct {
	mu   sync.Mutex
	vals map[string]memEntry
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func newMemCache() *memCache { return &memCache{vals: map[string]memEntry{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.vals[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = memEntry{val: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}

type staticCreds map[string]string

func (s staticCreds) Get(k string) string { return s[k] }

var goodCreds = staticCreds{secrets.AmadeusAPIKey: "key", secrets.AmadeusAPISecret: "secret"}

// fakeAmadeus serves the token and search endpoints and counts calls.
type fakeAmadeus struct {
	tokenCalls  atomic.Int32
	searchCalls atomic.Int32
	expiresIn   int
	tokenDelay  time.Duration
	tokenStatus int
	search      http.HandlerFunc
}

func (f *fakeAmadeus) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/security/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.tokenDelay > 0 {
			time.Sleep(f.tokenDelay)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "key" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("unexpected token form: %v", r.Form)
		}
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client credentials are invalid"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d,"token_type":"Bearer"}`, f.tokenCalls.Load(), f.expiresIn)
	})
	mux.HandleFunc("GET /v2/shopping/flight-offers", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if f.search != nil {
			f.search(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeAmadeus, creds staticCreds) *amadeus.Client {
	t.Helper()
	if f.expiresIn == 0 {
		f.expiresIn = 1799
	}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return amadeus.NewClient(amadeus.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, creds, newMemCache())
}

const offerJSON = `{"data":[{
	"id":"42","source":"GDS",
	"price":{"total":"300.00","currency":"EUR","base":"600.00"},
	"itineraries":[{"segments":[
		{"departure":{"iataCode":"GRU","at":"2026-12-10T22:35:00"},"arrival":{"iataCode":"MAD","at":"2026-12-11T11:00:00"},"carrierCode":"UX","number":"58"},
		{"departure":{"iataCode":"MAD","at":"2026-12-11T13:00:00"},"arrival":{"iataCode":"LIS","at":"2026-12-11T13:20:00"},"carrierCode":"UX","number":"1153"}
	]}]
}]}`

func TestSearchFlights(t *testing.T) {
	f := &fakeAmadeus{search: func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		q := r.URL.Query()
		if q.Get("originLocationCode") != "GRU" || q.Get("destinationLocationCode") != "LIS" {
			t.Errorf("unexpected route %v", q)
		}
		if q.Get("departureDate") != "2026-12-10" || q.Get("returnDate") != "2026-12-20" {
			t.Errorf("unexpected dates %v", q)
		}
		if q.Get("adults") != "1" || q.Get("max") != "20" {
			t.Errorf("unexpected adults/max %v", q)
		}
		_, _ = w.Write([]byte(offerJSON))
	}}
	c := newTestClient(t, f, goodCreds)

	offers, err := c.SearchFlights(context.Background(), offersource.SearchParams{
		Origin: "GRU", Destination: "LIS", DepartureDate: "2026-12-10", ReturnDate: "2026-12-20", Max: 20,
	})
	if err != nil {
		t.Fatalf("SearchFlights: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	o := offers[0]
	if o.ID != "42" || o.Price.Total.String() != "300" || o.Price.Currency != "EUR" {
		t.Errorf("unexpected offer %+v", o)
	}
	if len(o.Itineraries[0].Segments) != 2 {
		t.Errorf("expected 2 segments")
	}
	if len(o.Raw) == 0 {
		t.Error("expected raw offer JSON to be kept")
	}
}

func TestSearchFlightsOmitsEmptyReturnDate(t *testing.T) {
	f := &fakeAmadeus{search: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("returnDate") {
			t.Errorf("returnDate should be omitted")
		}
		if r.URL.Query().Get("max") != "10" {
			t.Errorf("expected default max 10, got %s", r.URL.Query().Get("max"))
		}
		_, _ = w.Write([]byte(`{}`))
	}}
	c := newTestClient(t, f, goodCreds)

	offers, err := c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "GRU", Destination: "LIS", DepartureDate: "2026-12-10"})
	if err != nil {
		t.Fatalf("SearchFlights: %v", err)
	}
	if offers == nil || len(offers) != 0 {
		t.Errorf("absent data should yield an empty slice, got %#v", offers)
	}
}

func TestTokenIsCached(t *testing.T) {
	f := &fakeAmadeus{}
	c := newTestClient(t, f, goodCreds)
	ctx := context.Background()

	for range 3 {
		if _, err := c.SearchFlights(ctx, offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.tokenCalls.Load(); got != 1 {
		t.Errorf("expected 1 token request, got %d", got)
	}
}

func TestShortLivedTokenNotCached(t *testing.T) {
	f := &fakeAmadeus{expiresIn: 300}
	c := newTestClient(t, f, goodCreds)
	ctx := context.Background()

	for range 2 {
		if _, err := c.SearchFlights(ctx, offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Errorf("expected 2 token requests, got %d", got)
	}
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	f := &fakeAmadeus{tokenDelay: 100 * time.Millisecond}
	c := newTestClient(t, f, goodCreds)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.ValidateCredentials(context.Background()) {
				t.Error("expected valid credentials")
			}
		}()
	}
	wg.Wait()

	if got := f.tokenCalls.Load(); got != 1 {
		t.Errorf("expected 1 token request, got %d", got)
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	f := &fakeAmadeus{}
	f.search = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"status":401,"detail":"Access token expired"}]}`))
			return
		}
		_, _ = w.Write([]byte(offerJSON))
	}
	c := newTestClient(t, f, goodCreds)

	offers, err := c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "GRU", Destination: "LIS", DepartureDate: "2026-12-10"})
	if err != nil {
		t.Fatalf("expected retry with a fresh token to succeed, got %v", err)
	}
	if len(offers) != 1 {
		t.Errorf("expected 1 offer, got %d", len(offers))
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Errorf("expected 2 token requests, got %d", got)
	}
}

func TestSearchErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantStatus int
	}{
		{"detail", 400, `{"errors":[{"status":400,"code":477,"title":"INVALID FORMAT","detail":"departureDate must be in the future"}]}`, "departureDate must be in the future", 400},
		{"title fallback", 400, `{"errors":[{"title":"INVALID DATA"}]}`, "INVALID DATA", 400},
		{"no body", 500, ``, "failed to search flights", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAmadeus{search: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}}
			c := newTestClient(t, f, goodCreds)

			_, err := c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"})
			var apiErr *offersource.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tt.wantStatus || apiErr.Error() != tt.wantMsg {
				t.Errorf("got status %d msg %q", apiErr.Status, apiErr.Error())
			}
		})
	}
}

func TestMissingCredentials(t *testing.T) {
	f := &fakeAmadeus{}
	c := newTestClient(t, f, staticCreds{secrets.AmadeusAPIKey: "key"})

	_, err := c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"})
	if !errors.Is(err, offersource.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if c.ValidateCredentials(context.Background()) {
		t.Error("expected invalid credentials")
	}
	if f.tokenCalls.Load() != 0 {
		t.Error("no token request expected without credentials")
	}
}

func TestTokenRejected(t *testing.T) {
	f := &fakeAmadeus{tokenStatus: http.StatusUnauthorized}
	c := newTestClient(t, f, goodCreds)

	_, err := c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"})
	if !errors.Is(err, offersource.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if f.searchCalls.Load() != 0 {
		t.Error("search must not run without a token")
	}
	if got := f.tokenCalls.Load(); got != 1 {
		t.Errorf("a rejected token request must not be retried, got %d token requests", got)
	}
}

func TestTokenCacheKeyHidesAPIKey(t *testing.T) {
	f := &fakeAmadeus{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cache := newMemCache()
	c := amadeus.NewClient(amadeus.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, goodCreds, cache)

	if !c.ValidateCredentials(context.Background()) {
		t.Fatal("expected valid credentials")
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.vals) != 1 {
		t.Fatalf("expected one cached token, got %d", len(cache.vals))
	}
	for k := range cache.vals {
		if strings.Contains(k, goodCreds[secrets.AmadeusAPIKey]) {
			t.Errorf("cache key %q contains the API key", k)
		}
	}
}

func TestBreakerIgnoresRequestErrors(t *testing.T) {
	f := &fakeAmadeus{search: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"bad"}]}`))
	}}
	c := newTestClient(t, f, goodCreds)
	b := resilience.NewBreaker(1, time.Hour, resilience.WithIgnoreError(func(err error) bool {
		return !amadeus.IsUpstreamFailure(err)
	}))
	c.SetBreaker(b)

	for range 3 {
		_, _ = c.SearchFlights(context.Background(), offersource.SearchParams{Origin: "A", Destination: "B", DepartureDate: "2026-01-01"})
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("400 responses tripped the breaker: %s", b.State())
	}
	if got := f.searchCalls.Load(); got != 3 {
		t.Errorf("expected 3 search calls, got %d", got)
	}
}
