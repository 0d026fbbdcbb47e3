package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/offersource"
	"github.com/Strob0t/DealWatch/internal/service"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptrDec(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seg(from, to, at string) offersource.Segment {
	return offersource.Segment{
		Departure: offersource.Endpoint{IATACode: from, At: at},
		Arrival:   offersource.Endpoint{IATACode: to},
	}
}

func offer(id, total string, base *decimal.Decimal, itineraries ...[]offersource.Segment) offersource.Offer {
	o := offersource.Offer{
		ID:    id,
		Price: offersource.Price{Total: dec(total), Currency: "EUR", Base: base},
		Raw:   []byte(`{"id":"` + id + `"}`),
	}
	for _, segs := range itineraries {
		o.Itineraries = append(o.Itineraries, offersource.Itinerary{Segments: segs})
	}
	return o
}

func flightRule(id, userID int64, origin, dest string, minDiscount int) rule.Rule {
	return rule.Rule{
		ID:               id,
		UserID:           userID,
		Name:             origin + " " + dest,
		Type:             rule.TypeFlight,
		Origin:           origin,
		Destination:      dest,
		DepartureDate:    day(2026, 12, 20),
		MinDiscount:      minDiscount,
		NotificationType: rule.NotifyEmail,
		IsActive:         true,
	}
}

func TestSearchFlightDeals(t *testing.T) {
	src := &fakeSource{offers: map[string][]offersource.Offer{
		"GRU-LIS": {
			offer("keep-base", "500", ptrDec("1000"),
				[]offersource.Segment{seg("GRU", "MAD", "2026-12-20T08:30:00"), seg("MAD", "LIS", "2026-12-21T01:00:00")},
				[]offersource.Segment{seg("LIS", "GRU", "2026-12-30T10:00:00")},
			),
			offer("too-small", "900", ptrDec("1000"),
				[]offersource.Segment{seg("GRU", "LIS", "2026-12-20T08:30:00")},
			),
			offer("keep-markup", "100", nil,
				[]offersource.Segment{seg("GRU", "LIS", "2026-12-20T09:00:00")},
			),
			offer("no-segments", "100", ptrDec("1000"), []offersource.Segment{}),
		},
	}}
	svc := service.NewDiscoveryService(&memStore{}, src, 0)

	r := flightRule(1, 7, "GRU", "LIS", 30)
	r.ReturnDate = day(2026, 12, 30)
	deals := svc.SearchFlightDeals(context.Background(), &r)

	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d: %+v", len(deals), deals)
	}

	if len(src.calls) != 1 {
		t.Fatalf("expected 1 search, got %d", len(src.calls))
	}
	p := src.calls[0]
	if p.Max != 20 || p.DepartureDate != "2026-12-20" || p.ReturnDate != "2026-12-30" {
		t.Errorf("unexpected search params: %+v", p)
	}

	d := deals[0]
	if d.Title != "GRU → LIS" || d.Origin != "GRU" || d.Destination != "LIS" {
		t.Errorf("route = %q %s→%s", d.Title, d.Origin, d.Destination)
	}
	if d.DiscountPercentage != 50 || !d.CurrentPrice.Equal(dec("500")) || !d.OriginalPrice.Equal(dec("1000")) {
		t.Errorf("prices = %s/%s %d%%", d.CurrentPrice, d.OriginalPrice, d.DiscountPercentage)
	}
	if d.OfferURL != "https://www.amadeus.com/booking?offer=keep-base" || d.Provider != "Amadeus" {
		t.Errorf("url/provider = %q %q", d.OfferURL, d.Provider)
	}
	if d.ReturnDate == nil || !d.ReturnDate.Equal(time.Date(2026, 12, 30, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("return date = %v", d.ReturnDate)
	}
	if !d.DepartureDate.Equal(time.Date(2026, 12, 20, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("departure = %v", d.DepartureDate)
	}
	if d.RuleID != 1 || d.UserID != 7 || d.Currency != "EUR" || string(d.Details) != `{"id":"keep-base"}` {
		t.Errorf("unexpected deal metadata: %+v", d)
	}

	m := deals[1]
	if m.DiscountPercentage != 33 || !m.OriginalPrice.Equal(dec("150")) || m.ReturnDate != nil {
		t.Errorf("markup deal = %d%% base %s return %v", m.DiscountPercentage, m.OriginalPrice, m.ReturnDate)
	}
}

func TestSearchFlightDeals_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*rule.Rule)
	}{
		{"no origin", func(r *rule.Rule) { r.Origin = "" }},
		{"no destination", func(r *rule.Rule) { r.Destination = "" }},
		{"no departure", func(r *rule.Rule) { r.DepartureDate = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			svc := service.NewDiscoveryService(&memStore{}, src, 0)
			r := flightRule(1, 1, "GRU", "LIS", 10)
			tt.mutate(&r)
			if got := svc.SearchFlightDeals(context.Background(), &r); len(got) != 0 {
				t.Fatalf("expected no deals, got %d", len(got))
			}
			if len(src.calls) != 0 {
				t.Fatalf("source should not be called, got %d calls", len(src.calls))
			}
		})
	}
}

func TestSearchFlightDeals_SourceError(t *testing.T) {
	src := &fakeSource{err: &offersource.APIError{Status: 500, Detail: "upstream down"}}
	svc := service.NewDiscoveryService(&memStore{}, src, 5)
	r := flightRule(1, 1, "GRU", "LIS", 10)
	if got := svc.SearchFlightDeals(context.Background(), &r); got != nil {
		t.Fatalf("expected nil deals, got %+v", got)
	}
	if src.calls[0].Max != 5 {
		t.Errorf("max = %d, want configured 5", src.calls[0].Max)
	}
}

func TestSearchCruiseDeals(t *testing.T) {
	svc := service.NewDiscoveryService(&memStore{}, &fakeSource{}, 0)
	r := rule.Rule{ID: 1, Type: rule.TypeCruise}
	if got := svc.SearchCruiseDeals(context.Background(), &r); len(got) != 0 {
		t.Fatalf("expected no cruise deals, got %d", len(got))
	}
}

func TestProcessAllRules(t *testing.T) {
	inactive := flightRule(4, 1, "GRU", "LIS", 10)
	inactive.IsActive = false
	missing := flightRule(2, 1, "GRU", "", 10)

	store := &memStore{
		rules: []rule.Rule{
			flightRule(1, 1, "GRU", "LIS", 30),
			missing,
			{ID: 3, UserID: 2, Name: "cruise", Type: rule.TypeCruise, IsActive: true},
			inactive,
			flightRule(5, 2, "GIG", "SCL", 10),
		},
		failDeal: "GIG → SCL",
	}
	store.nextID = 100
	src := &fakeSource{offers: map[string][]offersource.Offer{
		"GRU-LIS": {offer("a", "400", ptrDec("1000"), []offersource.Segment{seg("GRU", "LIS", "2026-12-20T08:00:00")})},
		"GIG-SCL": {offer("b", "100", ptrDec("1000"), []offersource.Segment{seg("GIG", "SCL", "2026-12-20T08:00:00")})},
	}}

	res, err := service.NewDiscoveryService(store, src, 0).ProcessAllRules(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllRules: %v", err)
	}
	if res.RulesProcessed != 4 {
		t.Errorf("rules processed = %d, want 4", res.RulesProcessed)
	}
	if res.DealsFound != 1 || len(res.Deals) != 1 {
		t.Fatalf("deals found = %d (%d), want 1", res.DealsFound, len(res.Deals))
	}
	if res.Deals[0].ID == 0 || res.Deals[0].RuleID != 1 {
		t.Errorf("unexpected persisted deal: %+v", res.Deals[0])
	}
	if _, ok := res.Rules[5]; !ok {
		t.Error("rule index missing rule 5")
	}
	if _, ok := res.Rules[4]; ok {
		t.Error("inactive rule should not be indexed")
	}
	if found := res.Found(); len(found) != 1 || found[0].Title != "GRU → LIS" {
		t.Errorf("Found() = %+v", found)
	}
}

func TestProcessAllRules_StoreError(t *testing.T) {
	store := &memStore{listRulesErr: errors.New("db down")}
	_, err := service.NewDiscoveryService(store, &fakeSource{}, 0).ProcessAllRules(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}
