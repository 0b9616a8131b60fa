// Package budget checks an itinerary against the traveler's budget and
// proposes a re-optimization hint when it does not fit.
package budget

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/trip-cli/internal/model"
)

// nearMax is the fraction of the largest category within which a category
// still counts as a reduction candidate.
var nearMax = decimal.NewFromFloat(0.95)

// Validation is the outcome of a budget check.
type Validation struct {
	Passed      bool                              `json:"passed"`
	Total       decimal.Decimal                   `json:"total"`
	Overage     decimal.Decimal                   `json:"overage"`
	Target      model.Category                    `json:"target,omitempty"`
	Subtotals   map[model.Category]decimal.Decimal `json:"subtotals,omitempty"`
	Constraints model.Constraints                 `json:"constraints,omitempty"`
}

// Validate compares the itinerary total against budget. Totals are always
// re-derived from the day plans.
func Validate(it *model.Itinerary, budget decimal.Decimal) Validation {
	total := decimal.Zero
	for _, d := range it.Days {
		total = total.Add(d.DailyCost)
	}

	v := Validation{
		Total:   total,
		Overage: decimal.Zero,
	}
	if total.LessThanOrEqual(budget) {
		v.Passed = true
		return v
	}

	v.Overage = total.Sub(budget)
	v.Subtotals = it.CategoryTotals()
	v.Target = pickCategory(v.Subtotals)
	if v.Target == model.CategoryTransport && !canDowngrade(it.Style) {
		// Transport only shrinks through the style tier. At the bottom tier
		// the next reducible category takes its place.
		if alt, ok := nextReducible(v.Subtotals); ok {
			v.Target = alt
		}
	}
	v.Constraints = hintsFor(v.Target, it.Style)
	return v
}

func canDowngrade(style model.TravelStyle) bool {
	return style.Tier() != model.StyleBudget
}

// nextReducible returns the first non-transport category, in preference
// order, that still has spend.
func nextReducible(subtotals map[model.Category]decimal.Decimal) (model.Category, bool) {
	for _, cat := range model.Categories {
		if cat != model.CategoryTransport && subtotals[cat].IsPositive() {
			return cat, true
		}
	}
	return "", false
}

// pickCategory returns the first category, in preference order, whose
// subtotal is within 5% of the largest.
func pickCategory(subtotals map[model.Category]decimal.Decimal) model.Category {
	largest := decimal.Zero
	for _, cat := range model.Categories {
		largest = decimal.Max(largest, subtotals[cat])
	}
	threshold := largest.Mul(nearMax)
	for _, cat := range model.Categories {
		if s := subtotals[cat]; s.IsPositive() && s.GreaterThanOrEqual(threshold) {
			return cat
		}
	}
	// Nothing priced: the only lever left is the style tier.
	return model.CategoryTransport
}

func hintsFor(cat model.Category, style model.TravelStyle) model.Constraints {
	c := model.Constraints{}
	switch cat {
	case model.CategoryAttractions:
		c[model.HintReduceAttractions] = 1
	case model.CategoryMeals:
		c[model.HintReduceMeals] = 1
	case model.CategoryAccommodation:
		c[model.HintReduceAccommodation] = 1
	default:
		c[model.HintDowngradeStyle] = 1
	}
	if style.Tier() == model.StyleLuxury && (cat == model.CategoryMeals || cat == model.CategoryAccommodation) {
		c[model.HintDowngradeStyle] = 1
	}
	return c
}
