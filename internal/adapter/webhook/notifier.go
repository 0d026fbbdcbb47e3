// Package webhook implements a notifier.Notifier that POSTs deal batches as
// JSON to a per-rule URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

const (
	channelName = "webhook"

	// SignatureHeader carries "sha256=<hex HMAC of the body>" when a signing
	// secret is configured.
	SignatureHeader = "X-DealWatch-Signature"

	defaultUserAgent = "DealWatch/1.0"
	defaultTimeout   = 10 * time.Second
)

// Config configures the webhook notifier.
type Config struct {
	Timeout       time.Duration
	UserAgent     string
	SigningSecret string
}

// Notifier sends deal notifications to webhooks.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a webhook notifier.
func NewNotifier(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Notifier{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (n *Notifier) Name() string { return channelName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{Signed: n.cfg.SigningSecret != ""}
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Rule      notifier.RuleRef `json:"rule"`
	Deals     []DealPayload    `json:"deals"`
	Timestamp string           `json:"timestamp"`
}

// DealPayload is one deal inside Payload. Prices are JSON numbers.
type DealPayload struct {
	Title              string      `json:"title"`
	Origin             string      `json:"origin"`
	Destination        string      `json:"destination"`
	DepartureDate      string      `json:"departureDate"`
	ReturnDate         string      `json:"returnDate,omitempty"`
	OriginalPrice      json.Number `json:"originalPrice"`
	CurrentPrice       json.Number `json:"currentPrice"`
	DiscountPercentage int         `json:"discountPercentage"`
	Currency           string      `json:"currency"`
	OfferURL           string      `json:"offerUrl"`
	Provider           string      `json:"provider"`
}

// BuildPayload converts a notification to the webhook body.
func BuildPayload(nt notifier.Notification) Payload {
	ts := nt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	deals := make([]DealPayload, 0, len(nt.Deals))
	for i := range nt.Deals {
		deals = append(deals, toDealPayload(&nt.Deals[i]))
	}
	return Payload{
		Rule:      nt.Rule,
		Deals:     deals,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

func toDealPayload(d *deal.Found) DealPayload {
	p := DealPayload{
		Title:              d.Title,
		Origin:             d.Origin,
		Destination:        d.Destination,
		DepartureDate:      d.DepartureDate.UTC().Format(time.RFC3339Nano),
		OriginalPrice:      json.Number(d.OriginalPrice.StringFixed(2)),
		CurrentPrice:       json.Number(d.CurrentPrice.StringFixed(2)),
		DiscountPercentage: d.DiscountPercentage,
		Currency:           d.Currency,
		OfferURL:           d.OfferURL,
		Provider:           d.Provider,
	}
	if d.ReturnDate != nil {
		p.ReturnDate = d.ReturnDate.UTC().Format(time.RFC3339Nano)
	}
	return p
}

// Send posts the notification to notification.Recipient.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if notification.Recipient == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(BuildPayload(notification))
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.Recipient, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	if n.cfg.SigningSecret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, n.cfg.SigningSecret))
	}

	resp, err := n.httpClient.Do(req) //nolint:gosec // URL is owned by the rule's user
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook %d: %s", resp.StatusCode, string(respBody))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
