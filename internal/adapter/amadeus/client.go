// Package amadeus implements the offer source port against the Amadeus
// Self-Service flight offers API.
package amadeus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Strob0t/DealWatch/internal/port/cache"
	"github.com/Strob0t/DealWatch/internal/port/offersource"
	"github.com/Strob0t/DealWatch/internal/resilience"
	"github.com/Strob0t/DealWatch/internal/secrets"
)

const (
	tokenPath  = "/v1/security/oauth2/token"
	searchPath = "/v2/shopping/flight-offers"

	// tokenSafety is subtracted from expires_in before caching a token.
	tokenSafety = 300 * time.Second

	maxBodyBytes = 8 << 20
)

// Credentials yields secrets by name. *secrets.Vault satisfies it.
type Credentials interface {
	Get(key string) string
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the Amadeus API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	tokens     cache.Cache
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	refresh    singleflight.Group
}

var _ offersource.Source = (*Client)(nil)

// NewClient creates a client. tokens caches access tokens between calls.
func NewClient(cfg Config, creds Credentials, tokens cache.Cache) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds:   creds,
		tokens:  tokens,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// IsUpstreamFailure reports whether err should count against the circuit
// breaker. Request-level API errors do not.
func IsUpstreamFailure(err error) bool {
	var apiErr *offersource.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, offersource.ErrNotConfigured)
}

// SearchFlights queries flight offers for a route and date.
func (c *Client) SearchFlights(ctx context.Context, params offersource.SearchParams) ([]offersource.Offer, error) {
	params = params.Normalize()

	offers, err := c.search(ctx, params)
	var apiErr *offersource.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && !errors.Is(err, offersource.ErrAuth) {
		// Token revoked or expired early: drop it and retry once.
		c.invalidateToken(ctx)
		offers, err = c.search(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (c *Client) search(ctx context.Context, params offersource.SearchParams) ([]offersource.Offer, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("originLocationCode", params.Origin)
	q.Set("destinationLocationCode", params.Destination)
	q.Set("departureDate", params.DepartureDate)
	if params.ReturnDate != "" {
		q.Set("returnDate", params.ReturnDate)
	}
	q.Set("adults", strconv.Itoa(params.Adults))
	q.Set("max", strconv.Itoa(params.Max))

	var body []byte
	err = c.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+q.Encode(), http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		body, err = c.send(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search flights %s-%s: %w", params.Origin, params.Destination, err)
	}

	return decodeOffers(body)
}

func decodeOffers(body []byte) ([]offersource.Offer, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode flight offers: %w", err)
	}

	offers := make([]offersource.Offer, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		var o offersource.Offer
		if err := json.Unmarshal(raw, &o); err != nil {
			slog.Warn("skipping undecodable flight offer", "error", err)
			continue
		}
		o.Raw = raw
		offers = append(offers, o)
	}
	return offers, nil
}

// ValidateCredentials reports whether a token can be obtained.
func (c *Client) ValidateCredentials(ctx context.Context) bool {
	_, err := c.accessToken(ctx)
	if err != nil {
		slog.Warn("amadeus credential check failed", "error", err)
		return false
	}
	return true
}

// tokenKey names the cached token by a digest of the API key so the key
// itself never shows up in cache errors or logs.
func (c *Client) tokenKey() string {
	sum := sha256.Sum256([]byte(c.creds.Get(secrets.AmadeusAPIKey)))
	return "amadeus:token:" + hex.EncodeToString(sum[:8])
}

func (c *Client) invalidateToken(ctx context.Context) {
	if err := c.tokens.Delete(ctx, c.tokenKey()); err != nil {
		slog.Warn("amadeus token invalidate failed", "error", err)
	}
}

// accessToken returns a cached token or fetches a new one. Concurrent
// misses share a single token request.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	key, secret := c.creds.Get(secrets.AmadeusAPIKey), c.creds.Get(secrets.AmadeusAPISecret)
	if key == "" || secret == "" {
		return "", offersource.ErrNotConfigured
	}

	cacheKey := c.tokenKey()
	if tok, ok, err := c.tokens.Get(ctx, cacheKey); err == nil && ok {
		return string(tok), nil
	}

	v, err, _ := c.refresh.Do(cacheKey, func() (any, error) {
		return c.fetchToken(ctx, key, secret, cacheKey)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (c *Client) fetchToken(ctx context.Context, key, secret, cacheKey string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", key)
	form.Set("client_secret", secret)

	var body []byte
	err := c.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		body, err = c.send(req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", offersource.ErrAuth, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode token: %w", offersource.ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", offersource.ErrAuth)
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSafety
	if err := c.tokens.Set(ctx, cacheKey, []byte(tr.AccessToken), ttl); err != nil {
		slog.Warn("amadeus token cache failed", "error", err)
	}
	return tr.AccessToken, nil
}

// do waits for the rate limiter and runs call through the breaker.
func (c *Client) do(ctx context.Context, call func(context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if c.breaker != nil {
		return c.breaker.ExecuteCtx(ctx, call)
	}
	return call(ctx)
}

// send performs req and returns the body of a 2xx response. Other
// statuses become *offersource.APIError.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &offersource.APIError{Status: resp.StatusCode, Detail: errorDetail(data)}
		slog.Debug("amadeus api error", "status", resp.StatusCode, "path", req.URL.Path, "detail", apiErr.Detail)
		return nil, apiErr
	}
	return data, nil
}

// errorDetail extracts errors[0].detail (search API) or
// error_description (OAuth endpoint) from an error body.
func errorDetail(body []byte) string {
	var e struct {
		Errors []struct {
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if len(e.Errors) > 0 {
		if e.Errors[0].Detail != "" {
			return e.Errors[0].Detail
		}
		return e.Errors[0].Title
	}
	return e.ErrorDescription
}
