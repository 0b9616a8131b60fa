package preference

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/pkg/embed"
)

// enrich merges the preferences and activities of the most similar stored
// profiles into p. Any failure leaves p untouched.
func (e *Extractor) enrich(ctx context.Context, p *model.TripProfile, text string) []model.PreferenceVector {
	if e.embedder == nil || e.vectors == nil {
		return nil
	}
	log := zap.L().With(zap.String("component", "preference.enrich"))

	stored, err := e.vectors.ListPreferenceVectors(ctx)
	if err != nil {
		log.Warn("preference: list vectors failed", zap.Error(err))
		return nil
	}
	if len(stored) == 0 {
		return nil
	}

	vecs, err := resilience.WithTimeout(ctx, e.timeout, func(ctx context.Context) ([][]float32, error) {
		return e.embedder.Embed(ctx, []string{text})
	})
	if err != nil || len(vecs) == 0 {
		log.Warn("preference: embed request failed", zap.Error(err))
		return nil
	}

	matches := TopMatches(vecs[0], stored, e.topK)
	for _, m := range matches {
		p.Preferences = dedupe(append(p.Preferences, m.Preferences...))
		p.MergeImplicit("activities", m.Activities...)
	}
	log.Debug("preference: enriched", zap.Int("matches", len(matches)))
	return matches
}

// TopMatches ranks stored vectors by cosine similarity to query and returns
// the best k with Score set.
func TopMatches(query []float32, stored []model.PreferenceVector, k int) []model.PreferenceVector {
	scored := make([]model.PreferenceVector, 0, len(stored))
	for _, v := range stored {
		if len(v.Embedding) != len(query) {
			continue
		}
		v.Score = embed.Cosine(query, v.Embedding)
		scored = append(scored, v)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
