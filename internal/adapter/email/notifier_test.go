package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

func sampleDeals() []deal.Found {
	ret := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	return []deal.Found{
		{
			Title:              "GRU → LIS",
			Origin:             "GRU",
			Destination:        "LIS",
			DepartureDate:      time.Date(2026, 12, 10, 22, 35, 0, 0, time.UTC),
			ReturnDate:         &ret,
			OriginalPrice:      decimal.RequireFromString("4500"),
			CurrentPrice:       decimal.RequireFromString("1999.9"),
			DiscountPercentage: 56,
			Currency:           "BRL",
			OfferURL:           "https://www.amadeus.com/booking?offer=7",
			Provider:           "Amadeus",
		},
		{
			Title:         "GRU → OPO",
			Origin:        "GRU",
			Destination:   "OPO",
			DepartureDate: time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
			OriginalPrice: decimal.RequireFromString("3000"),
			CurrentPrice:  decimal.RequireFromString("1400"),
			Currency:      "BRL",
			Provider:      "Amadeus",
		},
	}
}

func sampleNotification() notifier.Notification {
	return notifier.Notification{
		Recipient: "ana@example.com",
		Rule:      notifier.RuleRef{ID: 1, Name: "Europa barata", Type: rule.TypeFlight},
		Deals:     sampleDeals(),
		Timestamp: time.Now(),
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(2, "Europa barata"); got != "🎉 2 Nova(s) Oferta(s) Encontrada(s): Europa barata" {
		t.Errorf("Subject = %q", got)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("Europa <barata>", sampleDeals())
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}

	for _, want := range []string{
		"Regra: Europa &lt;barata&gt;",
		"<strong>2</strong> nova(s) oferta(s)",
		"Data de Ida:</strong> 10/12/2026",
		"Data de Volta:</strong> 20/12/2026",
		"De: BRL 4500.00",
		"BRL 1999.90",
		"56% OFF",
		"Fornecedor: Amadeus",
		`href="https://www.amadeus.com/booking?offer=7"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	if strings.Count(html, "Data de Volta") != 1 {
		t.Error("return date should only render for deals that have one")
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier(SMTPConfig{})
	n2 := sampleNotification()
	n2.Recipient = ""
	if err := n.Send(context.Background(), n2); !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendLogOnly(t *testing.T) {
	n := NewNotifier(SMTPConfig{})
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("log-only mode must not dial SMTP")
		return nil
	}
	if err := n.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendSMTP(t *testing.T) {
	n := NewNotifier(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "DealWatch <noreply@example.com>", Password: "pw"})

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	if err := n.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth == nil {
		t.Error("expected auth when a password is set")
	}
	if gotFrom != "noreply@example.com" || len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Errorf("envelope from=%q to=%v", gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Content-Type: text/html; charset=UTF-8") {
		t.Error("missing html content type")
	}
	if !strings.Contains(gotMsg, "Subject: =?utf-8?q?") {
		t.Errorf("subject should be Q-encoded, message head: %q", gotMsg[:200])
	}
}

func TestSendSMTPError(t *testing.T) {
	n := NewNotifier(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "noreply@example.com"})
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := n.Send(context.Background(), sampleNotification())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestRegisteredFactory(t *testing.T) {
	n, err := notifier.New("email", map[string]string{"host": "", "port": "465"})
	if err != nil {
		t.Fatalf("notifier.New: %v", err)
	}
	if n.Name() != "email" {
		t.Errorf("Name() = %q", n.Name())
	}
	if _, err := notifier.New("email", map[string]string{"port": "abc"}); err == nil {
		t.Error("expected error for invalid port")
	}
}
