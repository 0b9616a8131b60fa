package model

import "sort"

// Status is a position in the orchestration state machine.
type Status string

const (
	StatusInitialized          Status = "initialized"
	StatusExtractingPrefs      Status = "extracting_preferences"
	StatusPreferencesExtracted Status = "preferences_extracted"
	StatusDateInvalid          Status = "date_invalid"
	StatusFetchingCosts        Status = "fetching_costs"
	StatusCostsFetched         Status = "costs_fetched"
	StatusProposingItinerary   Status = "proposing_itinerary"
	StatusItineraryProposed    Status = "itinerary_proposed"
	StatusValidatingBudget     Status = "validating_budget"
	StatusBudgetValidated      Status = "budget_validated"
	StatusBudgetExceeded       Status = "budget_exceeded"
	StatusCompleted            Status = "completed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Hint names a re-optimization directive produced by the budget validator.
type Hint string

const (
	HintReduceAttractions   Hint = "reduce_attractions"
	HintReduceMeals         Hint = "reduce_meals"
	HintReduceAccommodation Hint = "reduce_accommodation"
	HintDowngradeStyle      Hint = "downgrade_style"
)

// Constraints maps a hint to its intensity level. Levels accumulate across
// re-optimization attempts.
type Constraints map[Hint]int

// Level returns the intensity for h (0 when absent).
func (c Constraints) Level(h Hint) int {
	if c == nil {
		return 0
	}
	return c[h]
}

// Merge returns a new Constraints with the levels of other added in.
func (c Constraints) Merge(other Constraints) Constraints {
	out := make(Constraints, len(c)+len(other))
	for h, l := range c {
		out[h] = l
	}
	for h, l := range other {
		out[h] += l
	}
	return out
}

// Hints returns the active hints in sorted order.
func (c Constraints) Hints() []Hint {
	out := make([]Hint, 0, len(c))
	for h, l := range c {
		if l > 0 {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// State is the per-request orchestration envelope.
type State struct {
	RunID               string         `json:"run_id,omitempty"`
	Request             string         `json:"request"`
	Profile             *TripProfile   `json:"profile,omitempty"`
	Costs               *CostBreakdown `json:"costs,omitempty"`
	Itinerary           *Itinerary     `json:"itinerary,omitempty"`
	ReoptimizationCount int            `json:"reoptimization_count"`
	Status              Status         `json:"status"`
	Error               string         `json:"error,omitempty"`
	Constraints         Constraints    `json:"constraints,omitempty"`
}
