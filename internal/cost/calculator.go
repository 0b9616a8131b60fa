package cost

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/trip-cli/internal/model"
)

// Rates holds the trip pricing configuration.
type Rates struct {
	Meals            map[string]MealRate `yaml:"meals" mapstructure:"meals"`
	AttractionFee    float64             `yaml:"attraction_fee" mapstructure:"attraction_fee"`
	LocalTransport   float64             `yaml:"local_transport" mapstructure:"local_transport"`
	BaseFlight       float64             `yaml:"base_flight" mapstructure:"base_flight"`
	FlightMultiplier map[string]float64  `yaml:"flight_multiplier" mapstructure:"flight_multiplier"`
	HotelNightly     map[string]float64  `yaml:"hotel_nightly" mapstructure:"hotel_nightly"`
}

// MealRate holds per-meal prices for one pricing tier.
type MealRate struct {
	Breakfast float64 `yaml:"breakfast" mapstructure:"breakfast"`
	Lunch     float64 `yaml:"lunch" mapstructure:"lunch"`
	Dinner    float64 `yaml:"dinner" mapstructure:"dinner"`
}

// Meal identifies a meal slot.
type Meal int

const (
	Breakfast Meal = iota
	Lunch
	Dinner
)

// AllMeals is breakfast, lunch and dinner.
var AllMeals = []Meal{Breakfast, Lunch, Dinner}

// DayInput describes what a single day contains.
type DayInput struct {
	// Style selects the meal pricing tier.
	Style       model.TravelStyle
	Meals       []Meal
	Attractions int
	// TravelDay marks the first and last day; attractions and local
	// transport are not charged on travel days.
	TravelDay     bool
	Flights       decimal.Decimal
	Accommodation decimal.Decimal
}

// Calculator prices days and trips.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Missing tiers
// fall back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if len(rates.Meals) == 0 {
		rates.Meals = def.Meals
	}
	if len(rates.FlightMultiplier) == 0 {
		rates.FlightMultiplier = def.FlightMultiplier
	}
	if len(rates.HotelNightly) == 0 {
		rates.HotelNightly = def.HotelNightly
	}
	if rates.BaseFlight == 0 {
		rates.BaseFlight = def.BaseFlight
	}
	return &Calculator{rates: rates}
}

// Rates returns the calculator's rates.
func (c *Calculator) Rates() Rates { return c.rates }

func (c *Calculator) mealRate(style model.TravelStyle) MealRate {
	if r, ok := c.rates.Meals[string(style.Tier())]; ok {
		return r
	}
	return c.rates.Meals[string(model.StyleModerate)]
}

// MealPrice returns the price of one meal at the style's tier.
func (c *Calculator) MealPrice(style model.TravelStyle, m Meal) decimal.Decimal {
	r := c.mealRate(style)
	switch m {
	case Breakfast:
		return decimal.NewFromFloat(r.Breakfast)
	case Lunch:
		return decimal.NewFromFloat(r.Lunch)
	case Dinner:
		return decimal.NewFromFloat(r.Dinner)
	default:
		return decimal.Zero
	}
}

// DailyMeals returns the price of all three meals at the style's tier.
func (c *Calculator) DailyMeals(style model.TravelStyle) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range AllMeals {
		sum = sum.Add(c.MealPrice(style, m))
	}
	return sum
}

// AttractionFee returns the flat per-attraction price.
func (c *Calculator) AttractionFee() decimal.Decimal {
	return decimal.NewFromFloat(c.rates.AttractionFee)
}

// LocalTransport returns the daily local transport price on destination days.
func (c *Calculator) LocalTransport() decimal.Decimal {
	return decimal.NewFromFloat(c.rates.LocalTransport)
}

// DestinationDays is the number of days between the arrival and return
// travel days. Only those days carry attraction and local transport charges.
func DestinationDays(days int) int {
	return max(0, days-2)
}

// Day prices one day.
func (c *Calculator) Day(in DayInput) model.DayCost {
	dc := model.DayCost{
		Meals:         decimal.Zero,
		Attractions:   decimal.Zero,
		Accommodation: nonNegative(in.Accommodation),
		Flights:       nonNegative(in.Flights),
	}
	for _, m := range in.Meals {
		dc.Meals = dc.Meals.Add(c.MealPrice(in.Style, m))
	}
	if !in.TravelDay && in.Attractions > 0 {
		dc.AttractionCount = in.Attractions
		dc.Attractions = c.AttractionFee().Mul(decimal.NewFromInt(int64(in.Attractions)))
	}
	if !in.TravelDay {
		dc.LocalTransport = c.LocalTransport()
	} else {
		dc.LocalTransport = decimal.Zero
	}
	return dc
}

// FlightFallback is the heuristic round-trip flight price for a style.
func (c *Calculator) FlightFallback(style model.TravelStyle) decimal.Decimal {
	mul, ok := c.rates.FlightMultiplier[string(style.Tier())]
	if !ok {
		mul = 1.0
	}
	return decimal.NewFromFloat(c.rates.BaseFlight).Mul(decimal.NewFromFloat(mul)).Round(2)
}

// NightlyRate is the heuristic hotel price per night for a style.
func (c *Calculator) NightlyRate(style model.TravelStyle) decimal.Decimal {
	if r, ok := c.rates.HotelNightly[string(style.Tier())]; ok {
		return decimal.NewFromFloat(r)
	}
	return decimal.NewFromFloat(c.rates.HotelNightly[string(model.StyleModerate)])
}

// HotelFallback is the heuristic hotel price for a whole stay.
func (c *Calculator) HotelFallback(style model.TravelStyle, nights int) decimal.Decimal {
	if nights <= 0 {
		return decimal.Zero
	}
	return c.NightlyRate(style).Mul(decimal.NewFromInt(int64(nights)))
}

// SplitFlights spreads a round-trip flight price over the trip: half on the
// first day, the rest on the last day, nothing in between.
func SplitFlights(total decimal.Decimal, days int) []decimal.Decimal {
	out := zeros(days)
	if days == 0 {
		return out
	}
	total = nonNegative(total)
	if days == 1 {
		out[0] = total
		return out
	}
	out[0] = total.Div(decimal.NewFromInt(2)).RoundDown(2)
	out[days-1] = total.Sub(out[0])
	return out
}

// SplitNights spreads a hotel total evenly over nights, remainder cents on
// the last night.
func SplitNights(total decimal.Decimal, nights int) []decimal.Decimal {
	out := zeros(nights)
	if nights == 0 {
		return out
	}
	total = nonNegative(total)
	share := total.Div(decimal.NewFromInt(int64(nights))).RoundDown(2)
	allocated := decimal.Zero
	for i := 0; i < nights-1; i++ {
		out[i] = share
		allocated = allocated.Add(share)
	}
	out[nights-1] = total.Sub(allocated)
	return out
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Meals: map[string]MealRate{
			string(model.StyleBudget):   {Breakfast: 10, Lunch: 15, Dinner: 20},
			string(model.StyleModerate): {Breakfast: 15, Lunch: 25, Dinner: 40},
			string(model.StyleLuxury):   {Breakfast: 30, Lunch: 50, Dinner: 100},
		},
		AttractionFee:  25,
		LocalTransport: 30,
		BaseFlight:     300,
		FlightMultiplier: map[string]float64{
			string(model.StyleBudget):   0.8,
			string(model.StyleModerate): 1.0,
			string(model.StyleLuxury):   1.5,
		},
		HotelNightly: map[string]float64{
			string(model.StyleBudget):   80,
			string(model.StyleModerate): 150,
			string(model.StyleLuxury):   300,
		},
	}
}

func zeros(n int) []decimal.Decimal {
	if n < 0 {
		n = 0
	}
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
