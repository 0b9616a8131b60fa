package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in payloads and storage.
const DateLayout = "2006-01-02"

// TravelStyle is the traveler's spending posture.
type TravelStyle string

const (
	StyleBudget    TravelStyle = "budget"
	StyleModerate  TravelStyle = "moderate"
	StyleLuxury    TravelStyle = "luxury"
	StyleAdventure TravelStyle = "adventure"
	StyleRelaxed   TravelStyle = "relaxed"
)

// ParseTravelStyle normalizes s into a TravelStyle. Unknown or empty input
// yields StyleModerate and false.
func ParseTravelStyle(s string) (TravelStyle, bool) {
	switch st := TravelStyle(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleBudget, StyleModerate, StyleLuxury, StyleAdventure, StyleRelaxed:
		return st, true
	default:
		return StyleModerate, false
	}
}

// Tier maps the style onto one of the three pricing tiers. Adventure and
// relaxed trips are priced as moderate.
func (s TravelStyle) Tier() TravelStyle {
	switch s {
	case StyleBudget, StyleLuxury:
		return s
	default:
		return StyleModerate
	}
}

// Downgrade steps the pricing tier down by levels (luxury → moderate → budget).
func (s TravelStyle) Downgrade(levels int) TravelStyle {
	t := s.Tier()
	for i := 0; i < levels; i++ {
		switch t {
		case StyleLuxury:
			t = StyleModerate
		case StyleModerate:
			t = StyleBudget
		default:
			return StyleBudget
		}
	}
	return t
}

// TripProfile is the structured form of a travel request.
type TripProfile struct {
	Origin              string              `json:"origin"`
	Destination         string              `json:"destination"`
	StartDate           time.Time           `json:"start_date"`
	EndDate             time.Time           `json:"end_date"`
	Budget              decimal.Decimal     `json:"budget"`
	TravelStyle         TravelStyle         `json:"travel_style"`
	Preferences         []string            `json:"preferences,omitempty"`
	Constraints         map[string]any      `json:"constraints,omitempty"`
	ImplicitPreferences map[string][]string `json:"implicit_preferences,omitempty"`
}

// Days returns the trip length in days, counting both endpoints.
func (p *TripProfile) Days() int {
	return int(DateOnly(p.EndDate).Sub(DateOnly(p.StartDate)).Hours()/24) + 1
}

// Nights returns the number of hotel nights: every day but the last.
func (p *TripProfile) Nights() int {
	n := p.Days() - 1
	if n < 0 {
		return 0
	}
	return n
}

// MergeImplicit adds values under key, skipping duplicates.
func (p *TripProfile) MergeImplicit(key string, values ...string) {
	if p.ImplicitPreferences == nil {
		p.ImplicitPreferences = make(map[string][]string)
	}
	seen := make(map[string]bool, len(p.ImplicitPreferences[key]))
	for _, v := range p.ImplicitPreferences[key] {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		p.ImplicitPreferences[key] = append(p.ImplicitPreferences[key], v)
	}
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
