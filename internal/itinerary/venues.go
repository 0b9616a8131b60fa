package itinerary

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/trip-cli/internal/catalog"
	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/pkg/anthropic"
)

const defaultSuggestionTimeout = 10 * time.Second

const suggestionSystem = "You are a travel guide expert. Return only venue names in the requested format."

// Static names used when neither the catalog nor the model has anything.
var staticAttractions = map[model.TravelStyle][]string{
	model.StyleBudget:   {"City Park", "Local Market", "Free Museum"},
	model.StyleModerate: {"Museum", "Historic Site", "City Center"},
	model.StyleLuxury:   {"Premium Museum", "Exclusive Tour", "VIP Experience"},
}

var titleCase = cases.Title(language.English)

// venueSource picks restaurants and attractions. Selection is seeded by
// city, slot and day so repeated proposals for the same trip agree.
type venueSource struct {
	catalog *catalog.Catalog
	llm     anthropic.Client
	model   string
	timeout time.Duration

	mu          sync.Mutex
	suggestions map[string][]string
}

func newVenueSource(cat *catalog.Catalog) *venueSource {
	return &venueSource{
		catalog:     cat,
		timeout:     defaultSuggestionTimeout,
		suggestions: make(map[string][]string),
	}
}

func seeded(parts ...any) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprint(h, parts...)
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum>>1|1))
}

// restaurant returns "Name, Location" for one meal slot.
func (v *venueSource) restaurant(ctx context.Context, city, meal string, tier model.TravelStyle, day, slot int) string {
	tier = tier.Tier()
	all := v.catalog.Restaurants(city, meal)
	if len(all) > 0 {
		candidates := filterByTier(all, tier)
		r := candidates[seeded(city, meal, tier, day, slot).IntN(len(candidates))]
		return r.Name + ", " + r.Location
	}

	key := fmt.Sprintf("restaurant|%s|%s|%s|%d", strings.ToLower(city), meal, tier, day)
	names := v.suggest(ctx, key, 1, fmt.Sprintf(
		"Recommend a %s restaurant in %s for a %s traveler. This is for day %d of the trip, so provide variety if possible. "+
			"Return only the restaurant name and city in the format: \"Restaurant Name, %s\".",
		meal, city, tier, day, city), city)
	if len(names) > 0 {
		return names[0]
	}
	return fmt.Sprintf("%s %s Restaurant, %s", titleCase.String(string(tier)), titleCase.String(meal), city)
}

// filterByTier keeps restaurants matching the tier: budget and luxury take
// their own range, moderate takes anything but luxury. Falls back to all.
func filterByTier(rs []catalog.Restaurant, tier model.TravelStyle) []catalog.Restaurant {
	var out []catalog.Restaurant
	for _, r := range rs {
		switch tier {
		case model.StyleModerate:
			if r.PriceRange != string(model.StyleLuxury) {
				out = append(out, r)
			}
		default:
			if r.PriceRange == string(tier) {
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		return rs
	}
	return out
}

// attractions picks up to limit unused attractions for one day, favoring
// ones matching the traveler's interests, and marks them used.
func (v *venueSource) attractions(ctx context.Context, city string, style model.TravelStyle, interests []string, used map[string]bool, day, limit int) []string {
	if limit <= 0 {
		return nil
	}

	var available []catalog.Attraction
	for _, a := range v.catalog.Attractions(city) {
		if !used[a.Name] {
			available = append(available, a)
		}
	}

	if len(available) > 0 {
		seeded(city, day, len(available), limit).Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		sort.SliceStable(available, func(i, j int) bool {
			return interestScore(available[i], interests) > interestScore(available[j], interests)
		})
		if len(available) > limit {
			available = available[:limit]
		}
		out := make([]string, 0, len(available))
		for _, a := range available {
			used[a.Name] = true
			out = append(out, a.Name+", "+a.Location)
		}
		return out
	}

	tier := style.Tier()
	key := fmt.Sprintf("attractions|%s|%s|%d|%d", strings.ToLower(city), tier, day, limit)
	names := v.suggest(ctx, key, limit, fmt.Sprintf(
		"Recommend %d popular tourist attractions or points of interest in %s suitable for a %s travel style on day %d of a trip. "+
			"Return them in the format: \"Attraction 1, %s; Attraction 2, %s\". Be specific with actual attraction names.",
		limit, city, tier, day, city, city), city)

	var out []string
	for _, n := range names {
		if !used[n] {
			used[n] = true
			out = append(out, n)
		}
	}
	if len(out) > 0 || len(names) > 0 {
		return out
	}

	for _, name := range staticAttractions[tier] {
		if len(out) == limit {
			break
		}
		out = append(out, name+", "+city)
	}
	return out
}

func interestScore(a catalog.Attraction, interests []string) int {
	score := 0
	name, typ := strings.ToLower(a.Name), strings.ToLower(a.Type)
	for _, term := range interests {
		if term == "" {
			continue
		}
		if (typ != "" && (strings.Contains(typ, term) || strings.Contains(term, typ))) || strings.Contains(name, term) {
			score++
		}
	}
	return score
}

// suggest asks the model for up to limit "Name, City" entries. Results are
// cached per key; failures return nil.
func (v *venueSource) suggest(ctx context.Context, key string, limit int, prompt, city string) []string {
	if v.llm == nil {
		return nil
	}

	v.mu.Lock()
	cached, ok := v.suggestions[key]
	v.mu.Unlock()
	if ok {
		return cached
	}

	text, fellBack := resilience.Fallback(ctx, v.timeout, func(ctx context.Context) (string, error) {
		resp, err := v.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.model,
			MaxTokens: 150,
			System:    suggestionSystem,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", err
		}
		resp.Usage.LogCost(v.model, "venue_suggestion")
		return resp.Text(), nil
	}, func(err error) string {
		zap.L().Warn("itinerary: venue suggestion failed", zap.String("key", key), zap.Error(err))
		return ""
	})
	if fellBack {
		return nil
	}

	names := parseSuggestions(text, city, limit)
	v.mu.Lock()
	v.suggestions[key] = names
	v.mu.Unlock()
	return names
}

// parseSuggestions splits "A, City; B, City" (or one per line) into entries,
// appending the city where the model left it out.
func parseSuggestions(text, city string, limit int) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' }) {
		part = strings.Trim(part, " -•*\t\r\"")
		if part == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(part), strings.ToLower(city)) {
			part = part + ", " + city
		}
		out = append(out, part)
		if len(out) == limit {
			break
		}
	}
	return out
}
