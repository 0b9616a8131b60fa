// Package itinerary builds day-by-day trip plans from the venue catalog and
// prices each day with the cost model.
package itinerary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/catalog"
	"github.com/sells-group/trip-cli/internal/cost"
	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/pkg/anthropic"
)

// ErrNoItinerary is returned when a profile yields no days to plan.
var ErrNoItinerary = eris.New("no itinerary generated")

// Per-day attraction caps by day shape.
const (
	arrivalAttractions     = 2
	destinationAttractions = 3
	departureAttractions   = 1
)

// Flight schedule shown on travel days.
const (
	carrier           = "United"
	outboundDeparture = "4:12 PM"
	outboundArrival   = "6:20 PM"
	returnDeparture   = "11:12 AM"
	returnArrival     = "3:08 PM"
)

// minAccommodationFactor bounds how far reduce_accommodation can shrink the
// hotel spend.
var minAccommodationFactor = decimal.NewFromFloat(0.4)

// Generator proposes itineraries.
type Generator struct {
	catalog *catalog.Catalog
	calc    *cost.Calculator
	venues  *venueSource
}

// Option configures a Generator.
type Option func(*Generator)

// WithLLM enables venue suggestions from Claude for cities missing from the
// catalog.
func WithLLM(client anthropic.Client, model string, timeout time.Duration) Option {
	return func(g *Generator) {
		g.venues.llm = client
		g.venues.model = model
		if timeout > 0 {
			g.venues.timeout = timeout
		}
	}
}

// New creates a Generator.
func New(cat *catalog.Catalog, calc *cost.Calculator, opts ...Option) *Generator {
	g := &Generator{
		catalog: cat,
		calc:    calc,
		venues:  newVenueSource(cat),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// plan holds the constraint-adjusted knobs for one proposal.
type plan struct {
	style          model.TravelStyle // reported style
	mealTier       model.TravelStyle
	hotelTier      model.TravelStyle
	lunchDrops     int
	attractionCut  int
	flightTotal    decimal.Decimal
	hotelTotal     decimal.Decimal
	accommodations []decimal.Decimal
	flights        []decimal.Decimal
}

// Generate proposes an itinerary for profile. costs supplies the baseline
// flight and hotel totals; constraints carry re-optimization hints, each of
// which lowers the spend in the category it targets.
func (g *Generator) Generate(ctx context.Context, profile *model.TripProfile, costs model.CostBreakdown, constraints model.Constraints) (*model.Itinerary, error) {
	if profile == nil {
		return nil, ErrNoItinerary
	}
	n := profile.Days()
	if n < 1 {
		return nil, ErrNoItinerary
	}

	p := g.plan(profile, costs, constraints, n)
	log := zap.L().With(
		zap.String("destination", profile.Destination),
		zap.Int("days", n),
		zap.Any("constraints", constraints),
	)

	selections := trim(g.selectAttractions(ctx, profile, n), p.attractionCut)

	days := make([]model.DayPlan, 0, n)
	for i := 1; i <= n; i++ {
		days = append(days, g.day(ctx, profile, p, selections[i-1], i, n))
	}

	it := model.NewItinerary(days, p.style, profile.Budget)
	log.Debug("itinerary: proposed",
		zap.String("total", it.TotalEstimatedCost.StringFixed(2)),
		zap.String("meal_tier", string(p.mealTier)),
		zap.Int("attractions", it.AttractionCount()),
	)
	return it, nil
}

func (g *Generator) plan(profile *model.TripProfile, costs model.CostBreakdown, c model.Constraints, n int) plan {
	base := profile.TravelStyle
	if base == "" {
		base = model.StyleModerate
	}
	downgrade := c.Level(model.HintDowngradeStyle)
	styleTier := base.Downgrade(downgrade)

	p := plan{
		style:         base,
		attractionCut: c.Level(model.HintReduceAttractions),
	}
	if downgrade > 0 {
		p.style = styleTier
	}

	// Meals step down one tier per level; past the budget tier, lunches go.
	p.mealTier = styleTier
	for l := 0; l < c.Level(model.HintReduceMeals); l++ {
		if p.mealTier == model.StyleBudget {
			p.lunchDrops++
			continue
		}
		p.mealTier = p.mealTier.Downgrade(1)
	}

	p.hotelTier = styleTier.Downgrade(c.Level(model.HintReduceAccommodation))

	// Style downgrades scale the baseline by the heuristic rate ratio.
	p.flightTotal = scale(costs.Flights, ratio(g.calc.FlightFallback(styleTier), g.calc.FlightFallback(base)))
	p.hotelTotal = scale(costs.Hotels, ratio(g.calc.NightlyRate(styleTier), g.calc.NightlyRate(base)))

	if l := c.Level(model.HintReduceAccommodation); l > 0 {
		factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(0.2).Mul(decimal.NewFromInt(int64(l))))
		p.hotelTotal = scale(p.hotelTotal, decimal.Max(factor, minAccommodationFactor))
	}

	p.flights = cost.SplitFlights(p.flightTotal, n)
	p.accommodations = cost.SplitNights(p.hotelTotal, profile.Nights())
	return p
}

func (g *Generator) day(ctx context.Context, profile *model.TripProfile, p plan, attractions []string, i, n int) model.DayPlan {
	first, last := i == 1, i == n
	travel := first || last
	origin, dest := profile.Origin, profile.Destination

	d := model.DayPlan{
		Day:            i,
		CurrentCity:    dest,
		Transportation: model.Placeholder,
		Breakfast:      model.Placeholder,
		Lunch:          model.Placeholder,
		Dinner:         model.Placeholder,
		Attraction:     model.Placeholder,
		Accommodation:  model.Placeholder,
	}

	var meals []cost.Meal
	dropLunch := p.lunchDrops >= 2 || (p.lunchDrops == 1 && !travel)

	switch {
	case first:
		d.CurrentCity = fmt.Sprintf("from %s to %s", origin, dest)
		d.Transportation = fmt.Sprintf("%s, from %s to %s, Departure Time: %s, Arrival Time: %s",
			carrier, origin, dest, outboundDeparture, outboundArrival)
		d.Breakfast = g.venues.restaurant(ctx, origin, "breakfast", p.mealTier, i, 0)
		meals = append(meals, cost.Breakfast)
		if !dropLunch {
			d.Lunch = g.venues.restaurant(ctx, origin, "lunch", p.mealTier, i, 1)
			meals = append(meals, cost.Lunch)
		}
		if !last {
			d.Dinner = g.venues.restaurant(ctx, dest, "dinner", p.mealTier, i, 2)
			meals = append(meals, cost.Dinner)
		}
	case last:
		d.CurrentCity = fmt.Sprintf("from %s to %s", dest, origin)
		d.Transportation = fmt.Sprintf("%s, from %s (%s) to %s (%s), Departure Time: %s, Arrival Time: %s",
			carrier, dest, g.airportCode(dest), origin, g.airportCode(origin), returnDeparture, returnArrival)
		d.Breakfast = g.venues.restaurant(ctx, dest, "breakfast", p.mealTier, i, 0)
		meals = append(meals, cost.Breakfast)
		if !dropLunch {
			d.Lunch = g.venues.restaurant(ctx, dest, "lunch", p.mealTier, i, 1)
			meals = append(meals, cost.Lunch)
		}
	default:
		d.Breakfast = g.venues.restaurant(ctx, dest, "breakfast", p.mealTier, i, 0)
		meals = append(meals, cost.Breakfast)
		if !dropLunch {
			d.Lunch = g.venues.restaurant(ctx, dest, "lunch", p.mealTier, i, 1)
			meals = append(meals, cost.Lunch)
		}
		d.Dinner = g.venues.restaurant(ctx, dest, "dinner", p.mealTier, i, 2)
		meals = append(meals, cost.Dinner)
	}

	if len(attractions) > 0 {
		d.Attraction = strings.Join(attractions, "; ")
	}

	accommodation := decimal.Zero
	if !last && i-1 < len(p.accommodations) {
		d.Accommodation = g.hotel(dest, p.hotelTier)
		accommodation = p.accommodations[i-1]
	}

	d.Cost = g.calc.Day(cost.DayInput{
		Style:         p.mealTier,
		Meals:         meals,
		Attractions:   len(attractions),
		TravelDay:     travel,
		Flights:       p.flights[i-1],
		Accommodation: accommodation,
	})
	return d
}

// selectAttractions picks each day's attractions without repeats across days.
func (g *Generator) selectAttractions(ctx context.Context, profile *model.TripProfile, n int) [][]string {
	interests := interestTerms(profile)
	used := make(map[string]bool)
	out := make([][]string, n)
	for i := 1; i <= n; i++ {
		limit := destinationAttractions
		switch {
		case i == 1:
			limit = arrivalAttractions
		case i == n:
			limit = departureAttractions
		}
		out[i-1] = g.venues.attractions(ctx, profile.Destination, profile.TravelStyle, interests, used, i, limit)
	}
	return out
}

// trim drops cut attractions from the end of every day.
func trim(days [][]string, cut int) [][]string {
	if cut <= 0 {
		return days
	}
	out := make([][]string, len(days))
	for i, d := range days {
		keep := len(d) - cut
		if keep < 0 {
			keep = 0
		}
		out[i] = d[:keep]
	}
	return out
}

func (g *Generator) hotel(city string, tier model.TravelStyle) string {
	if name, ok := g.catalog.Hotel(city, string(tier.Tier())); ok {
		return fmt.Sprintf("%s (Hotel), %s", name, city)
	}
	return "Hotel in " + city
}

func (g *Generator) airportCode(city string) string {
	if code, ok := g.catalog.Airport(city); ok {
		return code
	}
	letters := strings.ToUpper(strings.ReplaceAll(city, " ", ""))
	if len(letters) > 3 {
		letters = letters[:3]
	}
	return letters
}

func interestTerms(p *model.TripProfile) []string {
	terms := append([]string{}, p.Preferences...)
	terms = append(terms, p.ImplicitPreferences["activities"]...)
	for i := range terms {
		terms[i] = strings.ToLower(strings.TrimSpace(terms[i]))
	}
	return terms
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.NewFromInt(1)
	}
	r := num.Div(den)
	if r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return r
}

func scale(d, factor decimal.Decimal) decimal.Decimal {
	return d.Mul(factor).Round(2)
}
