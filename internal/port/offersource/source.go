// Package offersource defines the port for external travel offer search.
package offersource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured is returned when the source has no credentials.
	ErrNotConfigured = errors.New("offersource: credentials not configured")

	// ErrAuth is returned when the source rejects or cannot issue a token.
	ErrAuth = errors.New("offersource: authentication failed")
)

// DefaultAdults and DefaultMax apply when SearchParams leaves them zero.
const (
	DefaultAdults = 1
	DefaultMax    = 10
)

// APIError is a non-2xx answer from the source. Error returns the first
// detail the source reported.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return "failed to search flights"
	}
	return e.Detail
}

// StatusOf returns the HTTP status carried by an APIError in err's chain,
// or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Temporary reports whether the error says something about the source's
// health (rate limiting or server errors) rather than about the request.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// SearchParams describes one flight search. Dates are YYYY-MM-DD.
type SearchParams struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	Max           int
}

// Normalize fills defaults.
func (p SearchParams) Normalize() SearchParams {
	if p.Adults <= 0 {
		p.Adults = DefaultAdults
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	return p
}

// Source searches an external provider for offers.
type Source interface {
	// SearchFlights returns the offers for a route and date. An empty
	// result is not an error.
	SearchFlights(ctx context.Context, params SearchParams) ([]Offer, error)

	// ValidateCredentials reports whether the source accepts the configured
	// credentials.
	ValidateCredentials(ctx context.Context) bool
}

// Offer is a flight offer as returned by the provider.
type Offer struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	Price       Price       `json:"price"`
	Itineraries []Itinerary `json:"itineraries"`

	// Raw is the provider's JSON for the offer, kept as deal details.
	Raw json.RawMessage `json:"-"`
}

// Price is the fare of an offer. Base is absent for some fares.
type Price struct {
	Total    decimal.Decimal  `json:"total"`
	Currency string           `json:"currency"`
	Base     *decimal.Decimal `json:"base,omitempty"`
}

// Itinerary is one direction of travel (outbound, then return).
type Itinerary struct {
	Segments []Segment `json:"segments"`
}

// Segment is a single flight leg.
type Segment struct {
	Departure   Endpoint `json:"departure"`
	Arrival     Endpoint `json:"arrival"`
	CarrierCode string   `json:"carrierCode"`
	Number      string   `json:"number"`
}

// Endpoint is an airport and local time.
type Endpoint struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

// Time parses At, which the provider sends without a zone. The second
// return is false when At is empty or malformed.
func (e Endpoint) Time() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, e.At); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
