package model

import "time"

// Run is a persisted record of one planning request.
type Run struct {
	ID        string     `json:"id"`
	Request   string     `json:"request"`
	Status    Status     `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Payload             Payload       `json:"payload"`
	Profile             *TripProfile  `json:"profile,omitempty"`
	ReoptimizationCount int           `json:"reoptimization_count"`
	Phases              []PhaseResult `json:"phases"`
	Error               string        `json:"error,omitempty"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PriceQuote is a cached flight or hotel price lookup.
type PriceQuote struct {
	Key       string    `json:"key"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PreferenceVector is a stored traveler profile used for similarity enrichment.
type PreferenceVector struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Preferences []string  `json:"preferences"`
	Activities  []string  `json:"activities"`
	Embedding   []float32 `json:"-"`
	Score       float64   `json:"score,omitempty"`
}
