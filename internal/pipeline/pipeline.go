// Package pipeline orchestrates a planning request: preference extraction,
// baseline costing, itinerary proposal, budget validation and bounded
// re-optimization.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/preference"
	"github.com/sells-group/trip-cli/internal/store"
)

// DefaultMaxReoptimizations bounds the repair loop. Each failed validation
// counts once and no proposal is made after the count reaches the bound,
// so a request makes at most this many proposals.
const DefaultMaxReoptimizations = 3

// Extractor turns request text into a trip profile.
type Extractor interface {
	Extract(ctx context.Context, text string) (*preference.Extraction, error)
}

// Estimator produces baseline trip costs. It must not fail.
type Estimator interface {
	Estimate(ctx context.Context, profile *model.TripProfile) model.CostBreakdown
}

// Generator proposes an itinerary under the accumulated constraints.
type Generator interface {
	Generate(ctx context.Context, profile *model.TripProfile, costs model.CostBreakdown, constraints model.Constraints) (*model.Itinerary, error)
}

// TripLogger records the final payload of every request.
type TripLogger interface {
	Record(query string, out model.Payload) (string, error)
}

// Pipeline runs planning requests. It holds no per-request state and is
// safe for concurrent use.
type Pipeline struct {
	extractor Extractor
	estimator Estimator
	generator Generator

	store   store.Store
	tripLog TripLogger

	maxReoptimizations int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists runs and phases. Store failures are logged, never fatal.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithTripLog records each request's payload.
func WithTripLog(l TripLogger) Option {
	return func(p *Pipeline) { p.tripLog = l }
}

// WithMaxReoptimizations overrides the repair cap. Negative values are ignored.
func WithMaxReoptimizations(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxReoptimizations = n
		}
	}
}

// New creates a Pipeline.
func New(ext Extractor, est Estimator, gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:          ext,
		estimator:          est,
		generator:          gen,
		maxReoptimizations: DefaultMaxReoptimizations,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of one request.
type Result struct {
	RunID   string        `json:"run_id,omitempty"`
	Payload model.Payload `json:"payload"`
	State   *model.State  `json:"state"`
	// Proposals counts generated itineraries, the first included.
	Proposals int `json:"proposals"`
	// Transitions lists every status the request passed through, in order.
	Transitions []model.Status      `json:"transitions"`
	Phases      []model.PhaseResult `json:"phases"`
	Matches     []string            `json:"matches,omitempty"`
	LogPath     string              `json:"log_path,omitempty"`
}

// Process runs one request to completion. Every outcome, failures included,
// is reported through Result.Payload.
func (p *Pipeline) Process(ctx context.Context, text string) *Result {
	r := p.newRun(ctx, text)
	r.log.Info("pipeline: processing request")

	for !r.state.Status.Terminal() {
		r.setStatus(p.step(r))
	}

	return p.finalize(r)
}

// finalize builds the payload, persists the run and writes the trip log.
func (p *Pipeline) finalize(r *run) *Result {
	st := r.state

	var payload model.Payload
	if st.Error != "" {
		payload = model.ErrorPayload(st.Error, model.StatusCompleted)
	} else {
		payload = model.SuccessPayload(st.Itinerary)
	}

	res := &Result{
		RunID:       st.RunID,
		Payload:     payload,
		State:       st,
		Proposals:   r.proposals,
		Transitions: r.transitions,
		Phases:      r.phases,
	}
	for _, m := range r.matches {
		res.Matches = append(res.Matches, m.ID)
	}

	if p.store != nil && st.RunID != "" {
		if err := p.store.UpdateRunResult(r.ctx, st.RunID, &model.RunResult{
			Payload:             payload,
			Profile:             st.Profile,
			ReoptimizationCount: st.ReoptimizationCount,
			Phases:              r.phases,
			Error:               st.Error,
		}); err != nil {
			r.log.Warn("pipeline: failed to save run result", zap.Error(err))
		}
	}

	if p.tripLog != nil {
		path, err := p.tripLog.Record(st.Request, payload)
		if err != nil {
			r.log.Warn("pipeline: trip log write failed", zap.Error(err))
		}
		res.LogPath = path
	}

	fields := []zap.Field{
		zap.Int("proposals", r.proposals),
		zap.Int("reoptimizations", st.ReoptimizationCount),
		zap.Bool("error", payload.IsError()),
	}
	if !payload.IsError() {
		fields = append(fields,
			zap.Float64("total_cost", payload.TotalCost),
			zap.Float64("remaining_budget", payload.RemainingBudget),
		)
	}
	r.log.Info("pipeline: request complete", fields...)
	return res
}

// run carries one request's mutable state through the state machine.
type run struct {
	ctx   context.Context
	log   *zap.Logger
	store store.Store

	state       *model.State
	proposals   int
	best        *model.Itinerary
	pending     model.Constraints
	matches     []model.PreferenceVector
	transitions []model.Status
	phases      []model.PhaseResult
}

func (p *Pipeline) newRun(ctx context.Context, text string) *run {
	r := &run{
		ctx:   ctx,
		log:   zap.L().With(zap.String("component", "pipeline")),
		store: p.store,
		state: &model.State{Request: text, Status: model.StatusInitialized},
	}
	r.transitions = append(r.transitions, model.StatusInitialized)

	if p.store != nil {
		rec, err := p.store.CreateRun(ctx, text)
		if err != nil {
			r.log.Warn("pipeline: failed to create run", zap.Error(err))
		} else {
			r.state.RunID = rec.ID
			r.log = r.log.With(zap.String("run_id", rec.ID))
		}
	}
	return r
}

// setStatus records a transition. The terminal status is persisted by
// UpdateRunResult.
func (r *run) setStatus(s model.Status) {
	r.state.Status = s
	r.transitions = append(r.transitions, s)
	r.log.Debug("pipeline: transition", zap.String("status", string(s)))

	if r.store == nil || r.state.RunID == "" || s.Terminal() {
		return
	}
	if err := r.store.UpdateRunStatus(r.ctx, r.state.RunID, s); err != nil {
		r.log.Warn("pipeline: failed to update status", zap.Error(err))
	}
}

// trackPhase times fn and records it as a run phase.
func (r *run) trackPhase(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
	var phase *model.RunPhase
	if r.store != nil && r.state.RunID != "" {
		var err error
		phase, err = r.store.CreatePhase(r.ctx, r.state.RunID, name)
		if err != nil {
			r.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		}
	}

	start := time.Now()
	pr, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = duration

	if fnErr != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = fnErr.Error()
		r.log.Warn("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		r.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	if phase != nil {
		if err := r.store.CompletePhase(r.ctx, phase.ID, pr); err != nil {
			r.log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	r.phases = append(r.phases, *pr)
	return pr
}
