package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/budget"
	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/preference"
)

// ErrNoItinerary is reported when the generator produces nothing usable.
var ErrNoItinerary = eris.New("no itinerary generated")

// step performs the work of the current status and returns the next one.
// The only back-edge is budget_exceeded → proposing_itinerary.
func (p *Pipeline) step(r *run) model.Status {
	st := r.state
	switch st.Status {
	case model.StatusInitialized:
		return model.StatusExtractingPrefs

	case model.StatusExtractingPrefs:
		return p.extract(r)

	case model.StatusDateInvalid:
		return model.StatusCompleted

	case model.StatusPreferencesExtracted:
		return model.StatusFetchingCosts

	case model.StatusFetchingCosts:
		p.estimate(r)
		return model.StatusCostsFetched

	case model.StatusCostsFetched:
		return model.StatusProposingItinerary

	case model.StatusProposingItinerary:
		return p.propose(r)

	case model.StatusItineraryProposed:
		return model.StatusValidatingBudget

	case model.StatusValidatingBudget:
		return p.validate(r)

	case model.StatusBudgetValidated:
		return model.StatusCompleted

	case model.StatusBudgetExceeded:
		return p.repair(r)

	default:
		st.Error = "unknown status " + string(st.Status)
		return model.StatusCompleted
	}
}

func (p *Pipeline) extract(r *run) model.Status {
	st := r.state
	next := model.StatusPreferencesExtracted

	r.trackPhase("extract_preferences", func() (*model.PhaseResult, error) {
		ex, err := p.extractor.Extract(r.ctx, st.Request)
		if err != nil {
			st.Error = err.Error()
			if errors.Is(err, preference.ErrDateInvalid) {
				next = model.StatusDateInvalid
			} else {
				next = model.StatusCompleted
			}
			return nil, err
		}
		st.Profile = ex.Profile
		r.matches = ex.Matches
		return &model.PhaseResult{Metadata: map[string]any{
			"fallback":    ex.Fallback,
			"origin":      ex.Profile.Origin,
			"destination": ex.Profile.Destination,
			"days":        ex.Profile.Days(),
			"budget":      ex.Profile.Budget.StringFixed(2),
			"style":       string(ex.Profile.TravelStyle),
			"matches":     len(ex.Matches),
		}}, nil
	})
	return next
}

func (p *Pipeline) estimate(r *run) {
	r.trackPhase("estimate_costs", func() (*model.PhaseResult, error) {
		costs := p.estimator.Estimate(r.ctx, r.state.Profile)
		r.state.Costs = &costs
		return &model.PhaseResult{Metadata: map[string]any{
			"flights":        costs.Flights.StringFixed(2),
			"hotels":         costs.Hotels.StringFixed(2),
			"total":          costs.Total.StringFixed(2),
			"flights_source": costs.Sources["flights"],
			"hotels_source":  costs.Sources["hotels"],
		}}, nil
	})
}

func (p *Pipeline) propose(r *run) model.Status {
	st := r.state
	next := model.StatusItineraryProposed

	r.trackPhase("propose_itinerary", func() (*model.PhaseResult, error) {
		it, err := p.generator.Generate(r.ctx, st.Profile, *st.Costs, st.Constraints)
		if err == nil && (it == nil || len(it.Days) == 0) {
			err = ErrNoItinerary
		}
		if err != nil {
			st.Error = ErrNoItinerary.Error()
			next = model.StatusCompleted
			return nil, eris.Wrap(err, "pipeline: propose itinerary")
		}

		r.proposals++
		st.Itinerary = it
		if r.best == nil || it.TotalEstimatedCost.LessThan(r.best.TotalEstimatedCost) {
			r.best = it
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"attempt":     r.proposals,
			"days":        len(it.Days),
			"total":       it.TotalEstimatedCost.StringFixed(2),
			"constraints": st.Constraints,
		}}, nil
	})
	return next
}

func (p *Pipeline) validate(r *run) model.Status {
	st := r.state
	next := model.StatusBudgetValidated

	r.trackPhase("validate_budget", func() (*model.PhaseResult, error) {
		v := budget.Validate(st.Itinerary, st.Profile.Budget)
		meta := map[string]any{
			"passed": v.Passed,
			"total":  v.Total.StringFixed(2),
			"budget": st.Profile.Budget.StringFixed(2),
		}
		if !v.Passed {
			next = model.StatusBudgetExceeded
			r.pending = v.Constraints
			meta["overage"] = v.Overage.StringFixed(2)
			meta["target"] = string(v.Target)
		}
		return &model.PhaseResult{Metadata: meta}, nil
	})
	return next
}

// repair counts the failed validation and loops back for another proposal
// while the count is under the cap. Once the count reaches the cap the
// cheapest proposal is accepted, so at most maxReoptimizations proposals run.
func (p *Pipeline) repair(r *run) model.Status {
	st := r.state
	if st.ReoptimizationCount < p.maxReoptimizations {
		st.ReoptimizationCount++
	}
	if st.ReoptimizationCount < p.maxReoptimizations {
		st.Constraints = st.Constraints.Merge(r.pending)
		r.log.Info("pipeline: re-optimizing",
			zap.Int("attempt", st.ReoptimizationCount),
			zap.Any("constraints", st.Constraints),
		)
		return model.StatusProposingItinerary
	}

	st.Itinerary = r.best
	st.Itinerary.Recompute(st.Profile.Budget)
	r.log.Warn("pipeline: re-optimization limit reached, accepting best itinerary",
		zap.Int("reoptimizations", st.ReoptimizationCount),
		zap.String("total", st.Itinerary.TotalEstimatedCost.StringFixed(2)),
		zap.String("remaining_budget", st.Itinerary.RemainingBudget.StringFixed(2)),
	)
	return model.StatusCompleted
}
