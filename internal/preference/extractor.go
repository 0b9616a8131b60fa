// Package preference turns a free-form travel request into a TripProfile.
package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/pkg/anthropic"
	"github.com/sells-group/trip-cli/pkg/embed"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrDateInvalid      = eris.New("date invalid")
	ErrExtractionFailed = eris.New("extraction failed")
)

// DateError explains why the requested dates were rejected.
type DateError struct {
	Reason string
}

func (e *DateError) Error() string { return e.Reason }

// Is makes errors.Is(err, ErrDateInvalid) true.
func (e *DateError) Is(target error) bool { return target == ErrDateInvalid }

// ExtractionError explains why no usable profile could be built.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string { return e.Reason }

// Is makes errors.Is(err, ErrExtractionFailed) true.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailed }

const (
	defaultTimeout = 10 * time.Second
	defaultTopK    = 3

	extractionSystem = "You are an expert at extracting travel preferences from natural language. Return only valid JSON."
)

// VectorSource lists stored preference vectors for enrichment.
type VectorSource interface {
	ListPreferenceVectors(ctx context.Context) ([]model.PreferenceVector, error)
}

// Extraction is the outcome of Extract.
type Extraction struct {
	Profile *model.TripProfile
	// Fallback is true when the pattern-based parser produced the profile.
	Fallback bool
	// Matches are the similar stored profiles merged into Profile.
	Matches []model.PreferenceVector
}

// Extractor builds trip profiles from request text.
type Extractor struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration

	embedder embed.Client
	vectors  VectorSource
	topK     int

	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLLM enables model-based extraction.
func WithLLM(client anthropic.Client, model string, maxTokens int64) Option {
	return func(e *Extractor) {
		e.llm = client
		e.model = model
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// WithTimeout bounds each external call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEnrichment merges the topK most similar stored profiles into every
// extracted profile.
func WithEnrichment(embedder embed.Client, vectors VectorSource, topK int) Option {
	return func(e *Extractor) {
		e.embedder = embedder
		e.vectors = vectors
		if topK > 0 {
			e.topK = topK
		}
	}
}

// WithClock overrides the time source used for date validation.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates an Extractor. Without WithLLM only the pattern
// parser runs.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxTokens: 1024,
		timeout:   defaultTimeout,
		topK:      defaultTopK,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses text into a validated TripProfile. Date problems return a
// *DateError and are never retried; a model failure falls back to the
// pattern parser before giving up with an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	log := zap.L().With(zap.String("component", "preference"))

	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{Reason: "request is empty"}
	}

	var parsed *draft
	if e.llm != nil {
		d, err := resilience.WithTimeout(ctx, e.timeout, func(ctx context.Context) (*draft, error) {
			return e.extractLLM(ctx, text)
		})
		if err != nil {
			log.Warn("preference: model extraction failed, using pattern parser", zap.Error(err))
		} else {
			parsed = d
		}
	}

	if parsed != nil {
		profile, err := e.build(parsed)
		switch {
		case err == nil:
			return e.finish(ctx, &Extraction{Profile: profile}, text), nil
		case errors.Is(err, ErrDateInvalid):
			return nil, err
		default:
			log.Warn("preference: model output incomplete, using pattern parser", zap.Error(err))
		}
	}

	profile, err := e.build(parseFallback(text))
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, &Extraction{Profile: profile, Fallback: true}, text), nil
}

func (e *Extractor) finish(ctx context.Context, ex *Extraction, text string) *Extraction {
	ex.Matches = e.enrich(ctx, ex.Profile, text)
	zap.L().Info("preference: extracted",
		zap.String("origin", ex.Profile.Origin),
		zap.String("destination", ex.Profile.Destination),
		zap.String("start", ex.Profile.StartDate.Format(model.DateLayout)),
		zap.String("end", ex.Profile.EndDate.Format(model.DateLayout)),
		zap.String("style", string(ex.Profile.TravelStyle)),
		zap.Bool("fallback", ex.Fallback),
		zap.Int("matches", len(ex.Matches)),
	)
	return ex
}

// draft is a profile before validation; dates are still raw text.
type draft struct {
	Origin      string
	Destination string
	StartDate   string
	EndDate     string
	Budget      decimal.Decimal
	Style       string
	Preferences []string
	Constraints map[string]any
	Implicit    map[string][]string
}

// build validates a draft: dates first, then the remaining fields.
func (e *Extractor) build(d *draft) (*model.TripProfile, error) {
	start, end, err := e.validateDates(d.StartDate, d.EndDate)
	if err != nil {
		return nil, err
	}

	var missing []string
	if strings.TrimSpace(d.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(d.Destination) == "" {
		missing = append(missing, "destination")
	}
	if !d.Budget.IsPositive() {
		missing = append(missing, "a positive budget")
	}
	if len(missing) > 0 {
		return nil, &ExtractionError{Reason: "could not determine " + strings.Join(missing, ", ") + " from the request"}
	}

	style, _ := model.ParseTravelStyle(d.Style)
	p := &model.TripProfile{
		Origin:      strings.TrimSpace(d.Origin),
		Destination: strings.TrimSpace(d.Destination),
		StartDate:   start,
		EndDate:     end,
		Budget:      d.Budget,
		TravelStyle: style,
		Preferences: dedupe(d.Preferences),
		Constraints: d.Constraints,
	}
	for k, v := range d.Implicit {
		p.MergeImplicit(k, v...)
	}
	return p, nil
}

// validateDates requires start ≥ tomorrow and end > start.
func (e *Extractor) validateDates(rawStart, rawEnd string) (time.Time, time.Time, error) {
	if strings.TrimSpace(rawStart) == "" {
		return time.Time{}, time.Time{}, &DateError{Reason: "Start date is required. Please provide a valid start date for your trip in the future."}
	}
	start, ok := parseDate(rawStart)
	if !ok {
		return time.Time{}, time.Time{}, &DateError{Reason: fmt.Sprintf(
			"Invalid start date format: %s. Please use a future date like 'May 28, 2027' or '2027-05-28'.", rawStart)}
	}

	tomorrow := model.DateOnly(e.now()).AddDate(0, 0, 1)
	if start.Before(tomorrow) {
		return time.Time{}, time.Time{}, &DateError{Reason: fmt.Sprintf(
			"Travel dates must be in the future. The start date (%s) is in the past or today. Please provide dates starting from %s or later.",
			rawStart, tomorrow.Format("January 2, 2006"))}
	}

	if strings.TrimSpace(rawEnd) == "" {
		return time.Time{}, time.Time{}, &DateError{Reason: "End date is required. Please provide the last day of your trip."}
	}
	end, ok := parseDate(rawEnd)
	if !ok {
		return time.Time{}, time.Time{}, &DateError{Reason: fmt.Sprintf(
			"Invalid end date format: %s. Please use a date like 'May 30, 2027' or '2027-05-30'.", rawEnd)}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, &DateError{Reason: fmt.Sprintf(
			"End date (%s) must be after start date (%s). Please provide valid travel dates.", rawEnd, rawStart)}
	}
	return start, end, nil
}

func (e *Extractor) extractLLM(ctx context.Context, text string) (*draft, error) {
	temp := 0.0
	prompt := fmt.Sprintf(`Today is %s. Extract the following information from this travel request:
%s

Return a JSON object with these fields:
- "origin": origin city
- "destination": destination city
- "start_date": YYYY-MM-DD
- "end_date": YYYY-MM-DD
- "budget": total budget as a number
- "travel_style": one of luxury, budget, moderate, adventure, relaxed
- "preferences": list of explicit preferences
- "explicit_constraints": object of stated constraints
- "implicit_preferences": object mapping a category to a list of inferred preferences`,
		model.DateOnly(e.now()).Format(model.DateLayout), text)

	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      extractionSystem,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(e.model, "extract_preferences")

	raw, err := anthropic.ExtractJSON(resp.Text())
	if err != nil {
		return nil, err
	}
	return parseLLMJSON([]byte(raw))
}

// parseLLMJSON reads the model's JSON, tolerating the field-name and type
// variations it produces.
func parseLLMJSON(data []byte) (*draft, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "preference: parse model JSON")
	}

	d := &draft{
		Origin:      firstString(m, "origin", "origin_city"),
		Destination: firstString(m, "destination", "destination_city"),
		StartDate:   firstString(m, "start_date"),
		EndDate:     firstString(m, "end_date"),
		Style:       firstString(m, "travel_style", "style"),
		Preferences: stringList(m["preferences"]),
		Implicit:    map[string][]string{},
	}
	if len(d.Preferences) == 0 {
		d.Preferences = stringList(m["explicit_preferences"])
	}

	for _, key := range []string{"budget", "budget_amount"} {
		if b, ok := toDecimal(m[key]); ok {
			d.Budget = b
			break
		}
	}

	for _, key := range []string{"explicit_constraints", "constraints"} {
		if c, ok := m[key].(map[string]any); ok {
			d.Constraints = c
			break
		}
	}

	if imp, ok := m["implicit_preferences"].(map[string]any); ok {
		for k, v := range imp {
			if list := stringList(v); len(list) > 0 {
				d.Implicit[k] = list
			}
		}
	}
	return d, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.TrimSpace(t)}
	default:
		return nil
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return decimal.NewFromFloat(f), true
		}
	}
	return decimal.Zero, false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
