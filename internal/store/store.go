package store

import (
	"context"
	"time"

	"github.com/sells-group/trip-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the planning pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, request string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.Status) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Price quote cache
	GetCachedQuote(ctx context.Context, key string) (*model.PriceQuote, error)
	SetCachedQuote(ctx context.Context, key string, amount float64, ttl time.Duration) error
	DeleteExpiredQuotes(ctx context.Context) (int, error)

	// Preference vectors
	UpsertPreferenceVectors(ctx context.Context, vectors []model.PreferenceVector) (int, error)
	ListPreferenceVectors(ctx context.Context) ([]model.PreferenceVector, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
