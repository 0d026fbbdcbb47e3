package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	dwotel "github.com/Strob0t/DealWatch/internal/adapter/otel"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/database"
	"github.com/Strob0t/DealWatch/internal/port/offersource"
)

const (
	// flightSearchMax is the offer count requested per rule.
	flightSearchMax = 20
	providerAmadeus = "Amadeus"
	bookingURL      = "https://www.amadeus.com/booking?offer="
	dateLayout      = "2006-01-02"
)

// assumedMarkup estimates the undiscounted fare when the source gives no base.
var assumedMarkup = decimal.RequireFromString("1.5")

// DiscoveryResult is the outcome of one pass over the active rules.
type DiscoveryResult struct {
	RulesProcessed int
	DealsFound     int
	// Deals holds the persisted deals in discovery order.
	Deals []deal.Deal
	// Rules indexes the processed rules by ID.
	Rules map[int64]*rule.Rule
}

// Found returns the candidate view of the persisted deals.
func (r *DiscoveryResult) Found() []deal.Found {
	out := make([]deal.Found, len(r.Deals))
	for i := range r.Deals {
		out[i] = r.Deals[i].Found
	}
	return out
}

// DiscoveryStore is the persistence DiscoveryService needs.
type DiscoveryStore interface {
	database.RuleStore
	database.DealStore
}

// DiscoveryService searches the offer source for every active rule and
// persists the deals that clear the rule's discount threshold.
type DiscoveryService struct {
	store     DiscoveryStore
	source    offersource.Source
	searchMax int
	metrics   *dwotel.Metrics
}

// NewDiscoveryService creates a DiscoveryService. searchMax <= 0 uses the
// default of 20 offers per rule.
func NewDiscoveryService(store DiscoveryStore, source offersource.Source, searchMax int) *DiscoveryService {
	if searchMax <= 0 {
		searchMax = flightSearchMax
	}
	return &DiscoveryService{store: store, source: source, searchMax: searchMax}
}

// SetMetrics enables search counters.
func (s *DiscoveryService) SetMetrics(m *dwotel.Metrics) { s.metrics = m }

// ProcessAllRules runs discovery for every active rule. Only a failure to
// load the rules is returned; per-rule and per-deal failures are logged and
// skipped.
func (s *DiscoveryService) ProcessAllRules(ctx context.Context) (*DiscoveryResult, error) {
	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	res := &DiscoveryResult{
		RulesProcessed: len(rules),
		Rules:          make(map[int64]*rule.Rule, len(rules)),
	}

	for i := range rules {
		r := &rules[i]
		res.Rules[r.ID] = r

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rctx, span := dwotel.StartRuleSpan(ctx, r.ID, string(r.Type))
		var found []deal.Found
		switch r.Type {
		case rule.TypeFlight:
			found = s.SearchFlightDeals(rctx, r)
		case rule.TypeCruise:
			found = s.SearchCruiseDeals(rctx, r)
		default:
			slog.WarnContext(rctx, "unknown rule type", "rule_id", r.ID, "type", r.Type)
		}

		for j := range found {
			d, err := s.store.CreateDeal(rctx, &found[j])
			if err != nil {
				slog.ErrorContext(rctx, "save deal failed", "rule_id", r.ID, "title", found[j].Title, "error", err)
				continue
			}
			res.Deals = append(res.Deals, *d)
		}
		span.End()
	}

	res.DealsFound = len(res.Deals)
	return res, nil
}

// SearchFlightDeals queries the offer source for the rule's route and returns
// the offers whose discount meets the rule's minimum. Source failures yield
// no deals.
func (s *DiscoveryService) SearchFlightDeals(ctx context.Context, r *rule.Rule) []deal.Found {
	if !r.Searchable() {
		slog.InfoContext(ctx, "rule missing fields for flight search", "rule_id", r.ID)
		return nil
	}

	params := offersource.SearchParams{
		Origin:        r.Origin,
		Destination:   r.Destination,
		DepartureDate: r.DepartureDate.UTC().Format(dateLayout),
		Max:           s.searchMax,
	}
	if r.ReturnDate != nil {
		params.ReturnDate = r.ReturnDate.UTC().Format(dateLayout)
	}

	offers, err := s.source.SearchFlights(ctx, params)
	s.metrics.RecordSearch(ctx, string(rule.TypeFlight), err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "flight search failed", "rule_id", r.ID, "status", offersource.StatusOf(err), "error", err)
		return nil
	}

	var deals []deal.Found
	for i := range offers {
		if d, ok := flightDeal(r, &offers[i]); ok {
			deals = append(deals, d)
		}
	}
	slog.DebugContext(ctx, "flight search done", "rule_id", r.ID, "offers", len(offers), "deals", len(deals))
	return deals
}

// SearchCruiseDeals returns no deals: no cruise offer source is integrated.
func (s *DiscoveryService) SearchCruiseDeals(ctx context.Context, r *rule.Rule) []deal.Found {
	slog.InfoContext(ctx, "cruise search not available", "rule_id", r.ID)
	return nil
}

// flightDeal converts an offer into a deal for r when it clears the rule's
// discount threshold and carries at least one outbound segment.
func flightDeal(r *rule.Rule, o *offersource.Offer) (deal.Found, bool) {
	current := o.Price.Total
	base := current.Mul(assumedMarkup)
	if o.Price.Base != nil {
		base = *o.Price.Base
	}
	discount := deal.CalculateDiscount(current, base)
	if discount < r.MinDiscount {
		return deal.Found{}, false
	}
	if len(o.Itineraries) == 0 || len(o.Itineraries[0].Segments) == 0 {
		return deal.Found{}, false
	}

	outbound := o.Itineraries[0].Segments
	first, last := outbound[0], outbound[len(outbound)-1]

	departure, ok := first.Departure.Time()
	if !ok {
		departure = r.DepartureDate.UTC()
	}

	var ret *time.Time
	if len(o.Itineraries) > 1 && len(o.Itineraries[1].Segments) > 0 {
		if t, ok := o.Itineraries[1].Segments[0].Departure.Time(); ok {
			ret = &t
		}
	}

	currency := o.Price.Currency
	if currency == "" {
		currency = deal.DefaultCurrency
	}

	return deal.Found{
		RuleID:             r.ID,
		UserID:             r.UserID,
		Type:               rule.TypeFlight,
		Title:              first.Departure.IATACode + " → " + last.Arrival.IATACode,
		Origin:             first.Departure.IATACode,
		Destination:        last.Arrival.IATACode,
		DepartureDate:      departure,
		ReturnDate:         ret,
		OriginalPrice:      base.Round(2),
		CurrentPrice:       current,
		DiscountPercentage: discount,
		Currency:           currency,
		OfferURL:           bookingURL + o.ID,
		Provider:           providerAmadeus,
		Details:            o.Raw,
	}, true
}
