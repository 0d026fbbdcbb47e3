package alert

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func flightDeal() deal.Found {
	return deal.Found{
		UserID:             1,
		Type:               rule.TypeFlight,
		Title:              "GRU → LIS",
		Origin:             "GRU",
		Destination:        "LIS",
		OriginalPrice:      decimal.RequireFromString("3000"),
		CurrentPrice:       decimal.RequireFromString("1200.5"),
		DiscountPercentage: 60,
		Currency:           "BRL",
		OfferURL:           "https://www.amadeus.com/booking?offer=1",
	}
}

func TestPushAlertMatches(t *testing.T) {
	tests := []struct {
		name  string
		alert PushAlert
		want  bool
	}{
		{"both types", PushAlert{Type: TypeBoth, MinDiscount: 50}, true},
		{"type mismatch", PushAlert{Type: TypeCruise, MinDiscount: 0}, false},
		{"type match", PushAlert{Type: TypeFlight, MinDiscount: 0}, true},
		{"origin mismatch", PushAlert{Type: TypeBoth, Origin: "GIG"}, false},
		{"origin match", PushAlert{Type: TypeBoth, Origin: "GRU"}, true},
		{"destination mismatch", PushAlert{Type: TypeBoth, Destination: "OPO"}, false},
		{"discount below threshold", PushAlert{Type: TypeBoth, MinDiscount: 61}, false},
		{"discount at threshold", PushAlert{Type: TypeBoth, MinDiscount: 60}, true},
		{"price above ceiling", PushAlert{Type: TypeBoth, MaxPrice: decPtr("1200")}, false},
		{"price at ceiling", PushAlert{Type: TypeBoth, MaxPrice: decPtr("1200.50")}, true},
		{"zero ceiling ignored", PushAlert{Type: TypeBoth, MaxPrice: decPtr("0")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := flightDeal()
			if got := tt.alert.Matches(&d); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPushAlertMatchesEmptyDealRoute(t *testing.T) {
	d := flightDeal()
	d.Origin = ""
	a := PushAlert{Type: TypeBoth, Origin: "GIG"}
	if !a.Matches(&d) {
		t.Error("an empty deal origin should not be filtered by the alert origin")
	}
}

func TestFormatPush(t *testing.T) {
	d := flightDeal()
	msg := FormatPush(&d)

	if msg.Title != "🎉 60% OFF - GRU → LIS" {
		t.Errorf("title = %q", msg.Title)
	}
	if msg.Body != "De BRL 3000.00 por BRL 1200.50" {
		t.Errorf("body = %q", msg.Body)
	}
	if msg.Data["url"] != d.OfferURL {
		t.Errorf("data url = %q", msg.Data["url"])
	}

	d.Destination = ""
	if got := FormatPush(&d).Title; got != "🎉 60% OFF - GRU → LIS" {
		t.Errorf("fallback title = %q", got)
	}
}

func TestCreateRequestDefaults(t *testing.T) {
	req := CreateRequest{Name: "cheap lisbon"}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := req.ToAlert(7)
	if a.UserID != 7 || a.Type != TypeBoth || a.MinDiscount != DefaultMinDiscount || !a.IsActive {
		t.Errorf("unexpected defaults: %+v", a)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	bad := 150
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing name", CreateRequest{}},
		{"bad type", CreateRequest{Name: "x", Type: "train"}},
		{"discount over 100", CreateRequest{Name: "x", MinDiscount: &bad}},
		{"negative price", CreateRequest{Name: "x", MaxPrice: decPtr("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdateRequestApplyMaxPrice(t *testing.T) {
	tests := []struct {
		name  string
		start *decimal.Decimal
		req   UpdateRequest
		want  *decimal.Decimal
	}{
		{"absent keeps ceiling", decPtr("500"), UpdateRequest{}, decPtr("500")},
		{"new ceiling", decPtr("500"), UpdateRequest{MaxPrice: decPtr("350.50")}, decPtr("350.50")},
		{"zero clears ceiling", decPtr("500"), UpdateRequest{MaxPrice: decPtr("0")}, nil},
		{"zero on unset", nil, UpdateRequest{MaxPrice: decPtr("0.00")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := PushAlert{Name: "x", MaxPrice: tt.start}
			tt.req.Apply(&a)
			switch {
			case tt.want == nil && a.MaxPrice != nil:
				t.Errorf("expected no ceiling, got %s", a.MaxPrice)
			case tt.want != nil && (a.MaxPrice == nil || !a.MaxPrice.Equal(*tt.want)):
				t.Errorf("expected ceiling %s, got %v", tt.want, a.MaxPrice)
			}
		})
	}
}
