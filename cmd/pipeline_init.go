package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/catalog"
	"github.com/sells-group/trip-cli/internal/config"
	"github.com/sells-group/trip-cli/internal/cost"
	"github.com/sells-group/trip-cli/internal/estimate"
	"github.com/sells-group/trip-cli/internal/itinerary"
	"github.com/sells-group/trip-cli/internal/pipeline"
	"github.com/sells-group/trip-cli/internal/preference"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/internal/store"
	"github.com/sells-group/trip-cli/internal/triplog"
	anthropicpkg "github.com/sells-group/trip-cli/pkg/anthropic"
	"github.com/sells-group/trip-cli/pkg/booking"
	"github.com/sells-group/trip-cli/pkg/embed"
)

// pipelineEnv holds the store and the pipeline used by the plan, batch and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	TripLog  *triplog.Logger // nil when disabled
	Breakers *resilience.Breakers
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "trip.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if n, err := st.DeleteExpiredQuotes(ctx); err != nil {
		zap.L().Warn("prune expired quotes failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("pruned expired quotes", zap.Int("count", n))
	}
	return st, nil
}

// initPipeline validates config for mode, opens the store, builds every
// collaborator and the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	br := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	p, tl := buildPipeline(cfg, cat, st, br)
	return &pipelineEnv{Store: st, Pipeline: p, TripLog: tl, Breakers: br}, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, eris.Wrapf(err, "load catalog %s", path)
	}
	zap.L().Info("venue catalog loaded", zap.String("path", path), zap.Int("cities", len(cat.Cities())))
	return cat, nil
}

// buildPipeline wires the collaborators from c. External clients are only
// created when their key is set; without them the pipeline runs on the
// pattern parser, the venue catalog and heuristic prices. br may be nil.
func buildPipeline(c *config.Config, cat *catalog.Catalog, st store.Store, br *resilience.Breakers) (*pipeline.Pipeline, *triplog.Logger) {
	calc := cost.NewCalculator(pricingRates(c.Pricing))
	stageTimeout := time.Duration(c.Pipeline.StageTimeoutSecs) * time.Second

	extOpts := []preference.Option{preference.WithTimeout(stageTimeout)}
	var genOpts []itinerary.Option
	if c.Anthropic.Key != "" {
		llm := anthropicpkg.NewClient(c.Anthropic.Key)
		extOpts = append(extOpts, preference.WithLLM(llm, c.Anthropic.Model, c.Anthropic.MaxTokens))
		genOpts = append(genOpts, itinerary.WithLLM(llm, c.Anthropic.Model, stageTimeout))
	} else {
		zap.L().Warn("TRIP_ANTHROPIC_KEY not set, using pattern-based extraction and catalog venues only")
	}
	if c.OpenAI.Key != "" && st != nil {
		embedder := embed.NewClient(c.OpenAI.Key,
			embed.WithBaseURL(c.OpenAI.BaseURL),
			embed.WithModel(c.OpenAI.EmbeddingModel),
		)
		extOpts = append(extOpts, preference.WithEnrichment(embedder, st, c.OpenAI.TopK))
		zap.L().Info("preference enrichment enabled", zap.Int("top_k", c.OpenAI.TopK))
	}

	estOpts := []estimate.Option{estimate.WithTimeout(stageTimeout)}
	if c.Booking.Key != "" {
		estOpts = append(estOpts, estimate.WithPrices(booking.NewClient(c.Booking.Key,
			booking.WithBaseURL(c.Booking.BaseURL),
			booking.WithHost(c.Booking.Host),
			booking.WithCurrency(c.Booking.Currency),
			booking.WithRateLimit(c.Booking.RateLimit),
		)))
	} else {
		zap.L().Debug("TRIP_BOOKING_KEY not set, flight and hotel prices are heuristic")
	}
	if br != nil {
		estOpts = append(estOpts, estimate.WithBreakers(br))
	}
	if st != nil {
		estOpts = append(estOpts, estimate.WithCache(st, time.Duration(c.Booking.CacheTTLMins)*time.Minute))
	}

	opts := []pipeline.Option{pipeline.WithMaxReoptimizations(c.Pipeline.MaxReoptimizations)}
	if st != nil {
		opts = append(opts, pipeline.WithStore(st))
	}
	var tl *triplog.Logger
	if c.TripLog.Enabled && c.TripLog.Dir != "" {
		tl = triplog.New(c.TripLog.Dir)
		opts = append(opts, pipeline.WithTripLog(tl))
	}

	p := pipeline.New(
		preference.NewExtractor(extOpts...),
		estimate.New(cat, calc, estOpts...),
		itinerary.New(cat, calc, genOpts...),
		opts...,
	)
	return p, tl
}

// pricingRates converts the configured pricing into cost model rates. Unset
// values keep the defaults.
func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	if p.AttractionFee > 0 {
		rates.AttractionFee = p.AttractionFee
	}
	if p.LocalTransport > 0 {
		rates.LocalTransport = p.LocalTransport
	}
	if p.BaseFlight > 0 {
		rates.BaseFlight = p.BaseFlight
	}
	for style, mul := range p.FlightMul {
		if mul > 0 {
			rates.FlightMultiplier[style] = mul
		}
	}
	for style, nightly := range p.HotelNightly {
		if nightly > 0 {
			rates.HotelNightly[style] = nightly
		}
	}
	for style, m := range p.Meals {
		rates.Meals[style] = overlayMeals(rates.Meals[style], m)
	}
	return rates
}

// overlayMeals replaces each meal price of base that m sets above zero.
func overlayMeals(base cost.MealRate, m config.MealPricing) cost.MealRate {
	if m.Breakfast > 0 {
		base.Breakfast = m.Breakfast
	}
	if m.Lunch > 0 {
		base.Lunch = m.Lunch
	}
	if m.Dinner > 0 {
		base.Dinner = m.Dinner
	}
	return base
}
