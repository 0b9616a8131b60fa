package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Placeholder fills a DayPlan slot that has nothing scheduled.
const Placeholder = "-"

// Category is a cost category the budget validator reasons about.
type Category string

const (
	CategoryAttractions   Category = "attractions"
	CategoryMeals         Category = "meals"
	CategoryAccommodation Category = "accommodation"
	CategoryTransport     Category = "transport"
)

// Categories lists every category in validator preference order.
var Categories = []Category{CategoryAttractions, CategoryMeals, CategoryAccommodation, CategoryTransport}

// DayCost is the per-category split of one day's cost.
type DayCost struct {
	Meals          decimal.Decimal `json:"meals"`
	Attractions    decimal.Decimal `json:"attractions"`
	Accommodation  decimal.Decimal `json:"accommodation"`
	Flights        decimal.Decimal `json:"flights"`
	LocalTransport decimal.Decimal `json:"local_transport"`

	// AttractionCount is the number of priced attractions.
	AttractionCount int `json:"attraction_count"`
}

// Total sums all categories.
func (c DayCost) Total() decimal.Decimal {
	return decimal.Sum(c.Meals, c.Attractions, c.Accommodation, c.Flights, c.LocalTransport)
}

// Category returns the subtotal for cat. Transport covers flights and local transport.
func (c DayCost) Category(cat Category) decimal.Decimal {
	switch cat {
	case CategoryAttractions:
		return c.Attractions
	case CategoryMeals:
		return c.Meals
	case CategoryAccommodation:
		return c.Accommodation
	case CategoryTransport:
		return c.Flights.Add(c.LocalTransport)
	default:
		return decimal.Zero
	}
}

// DayPlan is one day of an itinerary.
type DayPlan struct {
	Day            int             `json:"day"`
	CurrentCity    string          `json:"current_city"`
	Transportation string          `json:"transportation"`
	Breakfast      string          `json:"breakfast"`
	Attraction     string          `json:"attraction"`
	Lunch          string          `json:"lunch"`
	Dinner         string          `json:"dinner"`
	Accommodation  string          `json:"accommodation"`
	DailyCost      decimal.Decimal `json:"daily_cost"`
	Cost           DayCost         `json:"cost"`
}

// Itinerary is an ordered list of day plans with derived totals.
type Itinerary struct {
	Days               []DayPlan       `json:"days"`
	Style              TravelStyle     `json:"style"`
	TotalEstimatedCost decimal.Decimal `json:"total_estimated_cost"`
	RemainingBudget    decimal.Decimal `json:"remaining_budget"`
}

// NewItinerary builds an itinerary and derives its totals from the day costs.
func NewItinerary(days []DayPlan, style TravelStyle, budget decimal.Decimal) *Itinerary {
	it := &Itinerary{Days: days, Style: style}
	it.Recompute(budget)
	return it
}

// Recompute sets every DailyCost from its split, then the trip total and
// remaining budget from the day costs.
func (it *Itinerary) Recompute(budget decimal.Decimal) {
	total := decimal.Zero
	for i := range it.Days {
		it.Days[i].DailyCost = it.Days[i].Cost.Total()
		total = total.Add(it.Days[i].DailyCost)
	}
	it.TotalEstimatedCost = total
	it.RemainingBudget = budget.Sub(total)
}

// CategoryTotals sums each category across all days.
func (it *Itinerary) CategoryTotals() map[Category]decimal.Decimal {
	out := make(map[Category]decimal.Decimal, len(Categories))
	for _, cat := range Categories {
		sum := decimal.Zero
		for _, d := range it.Days {
			sum = sum.Add(d.Cost.Category(cat))
		}
		out[cat] = sum
	}
	return out
}

// AttractionCount returns the number of priced attractions across the trip.
func (it *Itinerary) AttractionCount() int {
	n := 0
	for _, d := range it.Days {
		n += d.Cost.AttractionCount
	}
	return n
}

// DayOutput is the externally visible shape of a DayPlan.
type DayOutput struct {
	Day            int     `json:"day"`
	CurrentCity    string  `json:"current_city"`
	Transportation string  `json:"transportation"`
	Breakfast      string  `json:"breakfast"`
	Attraction     string  `json:"attraction"`
	Lunch          string  `json:"lunch"`
	Dinner         string  `json:"dinner"`
	Accommodation  string  `json:"accommodation"`
	DailyCost      float64 `json:"daily_cost"`
}

// Payload is the final result of a request: either an itinerary or an error.
type Payload struct {
	Days            []DayOutput `json:"days,omitempty"`
	TotalCost       float64     `json:"total_cost,omitempty"`
	RemainingBudget float64     `json:"remaining_budget,omitempty"`
	Error           string      `json:"error,omitempty"`
	Status          string      `json:"status,omitempty"`
}

// SuccessPayload renders an itinerary for output.
func SuccessPayload(it *Itinerary) Payload {
	days := make([]DayOutput, 0, len(it.Days))
	for _, d := range it.Days {
		days = append(days, DayOutput{
			Day:            d.Day,
			CurrentCity:    d.CurrentCity,
			Transportation: d.Transportation,
			Breakfast:      d.Breakfast,
			Attraction:     d.Attraction,
			Lunch:          d.Lunch,
			Dinner:         d.Dinner,
			Accommodation:  d.Accommodation,
			DailyCost:      d.DailyCost.InexactFloat64(),
		})
	}
	return Payload{
		Days:            days,
		TotalCost:       it.TotalEstimatedCost.InexactFloat64(),
		RemainingBudget: it.RemainingBudget.InexactFloat64(),
	}
}

// ErrorPayload renders a terminal failure.
func ErrorPayload(msg string, status Status) Payload {
	return Payload{Error: msg, Status: string(status)}
}

// IsError reports whether the payload carries an error.
func (p Payload) IsError() bool { return p.Error != "" }

// MarshalJSON emits exactly one of the two payload shapes.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsError() {
		return json.Marshal(struct {
			Error  string `json:"error"`
			Status string `json:"status"`
		}{p.Error, p.Status})
	}
	days := p.Days
	if days == nil {
		days = []DayOutput{}
	}
	return json.Marshal(struct {
		Days            []DayOutput `json:"days"`
		TotalCost       float64     `json:"total_cost"`
		RemainingBudget float64     `json:"remaining_budget"`
	}{days, p.TotalCost, p.RemainingBudget})
}
