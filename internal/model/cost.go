package model

import "github.com/shopspring/decimal"

// CostBreakdown is the baseline cost estimate for a whole trip.
// Total is always the sum of the components; build it with NewCostBreakdown.
type CostBreakdown struct {
	Flights        decimal.Decimal `json:"flights"`
	Hotels         decimal.Decimal `json:"hotels"`
	Meals          decimal.Decimal `json:"meals"`
	Attractions    decimal.Decimal `json:"attractions"`
	LocalTransport decimal.Decimal `json:"local_transport"`
	Total          decimal.Decimal `json:"total"`

	// Sources records where flights/hotels came from ("api", "cache", "fallback").
	Sources map[string]string `json:"sources,omitempty"`
}

// NewCostBreakdown builds a breakdown, clamping negatives to zero and
// deriving Total.
func NewCostBreakdown(flights, hotels, meals, attractions, local decimal.Decimal) CostBreakdown {
	b := CostBreakdown{
		Flights:        nonNegative(flights),
		Hotels:         nonNegative(hotels),
		Meals:          nonNegative(meals),
		Attractions:    nonNegative(attractions),
		LocalTransport: nonNegative(local),
	}
	b.Total = b.Flights.Add(b.Hotels).Add(b.Meals).Add(b.Attractions).Add(b.LocalTransport)
	return b
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}
