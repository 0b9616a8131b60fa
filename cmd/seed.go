package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/preference"
	"github.com/sells-group/trip-cli/pkg/embed"
)

// seedBatchSize is the number of texts embedded per API call.
const seedBatchSize = 10

var seedVerifyQuery string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample traveler profiles used for preference enrichment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		embedder := embed.NewClient(cfg.OpenAI.Key,
			embed.WithBaseURL(cfg.OpenAI.BaseURL),
			embed.WithModel(cfg.OpenAI.EmbeddingModel),
		)

		n, err := seedVectors(ctx, embedder, st, sampleProfiles())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Seeded %d preference profiles.\n", n)

		if seedVerifyQuery == "" {
			return nil
		}
		matches, err := verifySeed(ctx, embedder, st, seedVerifyQuery, cfg.OpenAI.TopK)
		if err != nil {
			return err
		}
		formatMatches(os.Stdout, seedVerifyQuery, matches)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedVerifyQuery, "verify", "luxury beach vacation", "query the seeded profiles with this text (empty to skip)")
	rootCmd.AddCommand(seedCmd)
}

// vectorStore persists preference vectors.
type vectorStore interface {
	UpsertPreferenceVectors(ctx context.Context, vectors []model.PreferenceVector) (int, error)
	ListPreferenceVectors(ctx context.Context) ([]model.PreferenceVector, error)
}

// seedVectors embeds each profile's text and upserts the profiles.
func seedVectors(ctx context.Context, embedder embed.Client, st vectorStore, profiles []model.PreferenceVector) (int, error) {
	for start := 0; start < len(profiles); start += seedBatchSize {
		end := min(start+seedBatchSize, len(profiles))
		batch := profiles[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return 0, eris.Wrapf(err, "seed: embed batch %d", start/seedBatchSize+1)
		}
		if len(vecs) != len(batch) {
			return 0, eris.Errorf("seed: got %d embeddings for %d texts", len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		zap.L().Debug("seed: embedded batch", zap.Int("from", start), zap.Int("to", end))
	}

	n, err := st.UpsertPreferenceVectors(ctx, profiles)
	if err != nil {
		return 0, eris.Wrap(err, "seed: upsert vectors")
	}
	zap.L().Info("seed: preference vectors stored", zap.Int("count", n))
	return n, nil
}

// verifySeed returns the stored profiles closest to query.
func verifySeed(ctx context.Context, embedder embed.Client, st vectorStore, query string, topK int) ([]model.PreferenceVector, error) {
	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, eris.Wrap(err, "seed: embed verify query")
	}
	if len(vecs) == 0 {
		return nil, eris.New("seed: empty embedding for verify query")
	}
	stored, err := st.ListPreferenceVectors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "seed: list vectors")
	}
	if topK <= 0 {
		topK = 3
	}
	return preference.TopMatches(vecs[0], stored, topK), nil
}

func formatMatches(out io.Writer, query string, matches []model.PreferenceVector) {
	_, _ = fmt.Fprintf(out, "Top %d matches for %q:\n", len(matches), query)
	for i, m := range matches {
		_, _ = fmt.Fprintf(out, "  %d. %s (score %.4f)\n     %s\n     preferences: %v\n", i+1, m.ID, m.Score, m.Text, m.Preferences)
	}
}

// sampleProfiles returns the built-in traveler profiles.
func sampleProfiles() []model.PreferenceVector {
	return []model.PreferenceVector{
		{
			ID:          "pref_001",
			Text:        "I want a luxury beach vacation in the Caribbean with fine dining and spa services",
			Preferences: []string{"luxury", "beach", "spa", "fine dining", "relaxation"},
			Activities:  []string{"spa", "fine dining", "water sports"},
		},
		{
			ID:          "pref_002",
			Text:        "Budget-friendly city trip to explore museums, art galleries, and local street food",
			Preferences: []string{"budget", "museums", "art", "street food", "culture"},
			Activities:  []string{"museums", "art galleries", "street food", "walking tours"},
		},
		{
			ID:          "pref_003",
			Text:        "Adventure trip with hiking, mountain climbing, and outdoor activities",
			Preferences: []string{"adventure", "hiking", "mountains", "outdoor", "active"},
			Activities:  []string{"hiking", "climbing", "camping", "nature"},
		},
		{
			ID:          "pref_004",
			Text:        "Romantic getaway with wine tasting, sunset views, and intimate restaurants",
			Preferences: []string{"romantic", "wine", "sunset", "intimate dining", "couples"},
			Activities:  []string{"wine tasting", "sunset viewing", "fine dining", "couples activities"},
		},
		{
			ID:          "pref_005",
			Text:        "Family-friendly vacation with theme parks, kid activities, and comfortable hotels",
			Preferences: []string{"family", "theme parks", "kids", "comfortable", "entertainment"},
			Activities:  []string{"theme parks", "family activities", "kid-friendly attractions"},
		},
		{
			ID:          "pref_006",
			Text:        "Business trip with convenient location, good WiFi, and meeting facilities",
			Preferences: []string{"business", "convenient", "WiFi", "meetings", "efficient"},
			Activities:  []string{"business meetings", "networking", "work"},
		},
		{
			ID:          "pref_007",
			Text:        "Cultural immersion trip to experience local traditions, festivals, and authentic cuisine",
			Preferences: []string{"culture", "traditions", "festivals", "local food", "authentic"},
			Activities:  []string{"cultural sites", "festivals", "local experiences", "cooking classes"},
		},
		{
			ID:          "pref_008",
			Text:        "Solo backpacking trip with hostels, budget food, and meeting other travelers",
			Preferences: []string{"solo", "backpacking", "hostels", "budget", "social"},
			Activities:  []string{"hostels", "budget travel", "meeting travelers", "exploration"},
		},
		{
			ID:          "pref_009",
			Text:        "Luxury safari experience with wildlife viewing, luxury lodges, and guided tours",
			Preferences: []string{"luxury", "safari", "wildlife", "nature", "guided tours"},
			Activities:  []string{"wildlife viewing", "safari", "nature photography", "luxury lodges"},
		},
		{
			ID:          "pref_010",
			Text:        "Relaxing spa retreat with yoga, meditation, healthy food, and wellness activities",
			Preferences: []string{"relaxation", "spa", "yoga", "meditation", "wellness", "healthy"},
			Activities:  []string{"spa", "yoga", "meditation", "wellness", "healthy dining"},
		},
		{
			ID:          "pref_011",
			Text:        "Foodie tour focusing on Michelin-starred restaurants, local markets, and cooking classes",
			Preferences: []string{"food", "fine dining", "Michelin", "markets", "cooking"},
			Activities:  []string{"fine dining", "food markets", "cooking classes", "food tours"},
		},
		{
			ID:          "pref_012",
			Text:        "Weekend city break with shopping, nightlife, trendy restaurants, and modern hotels",
			Preferences: []string{"shopping", "nightlife", "trendy", "modern", "urban"},
			Activities:  []string{"shopping", "nightlife", "trendy restaurants", "urban exploration"},
		},
	}
}
