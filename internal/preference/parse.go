package preference

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const months = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	ordinalRe = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)\b`)

	// "May 28, 2027", "May 28th 2027", "2027-05-28", "05/28/2027"
	dateRe = regexp.MustCompile(`(?i)\b([a-z]{3,9}\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`)

	// "Jan 10-12 2027", "May 28th – 30th, 2027"
	rangeRe = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*(?:-|–|—|to|through)\s*(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	daysRe = regexp.MustCompile(`(?i)\b(\d{1,2})[\s-]*days?\b`)

	routeRe = regexp.MustCompile(`(?i)\bfrom\s+([a-z][a-z.' ]*?)\s+to\s+([a-z][a-z.' ]*?)(?:\s*[,.;:(!?]|\s+(?:(?:for|on|in|with|between|during|from|starting|leaving|departing|and|budget|`+months+`)\b|\d)|\s*$)`)
	fromRe  = regexp.MustCompile(`(?i)\bfrom\s+([a-z][a-z.']*)`)
	toRe    = regexp.MustCompile(`(?i)\bto\s+([a-z][a-z.']*)`)

	dollarRe    = regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`)
	budgetRe    = regexp.MustCompile(`(?i)\bbudget\s*(?:is|of|:|=|around|about|under)?\s*(\d[\d,]*(?:\.\d+)?)`)
	currencyRe  = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(?:dollars|usd)\b`)
	styleWordRe = regexp.MustCompile(`(?i)\b(budget|moderate|luxury|luxurious|adventure|adventurous|relaxed|relaxing)[\s-]+(?:style|trip|travel|traveler|vacation|getaway|holiday)\b`)
	styleKeyRe  = regexp.MustCompile(`(?i)\bstyle\s*(?:is|:|of|=)?\s*(budget|moderate|luxury|adventure|relaxed)\b`)
	styleBareRe = regexp.MustCompile(`(?i)\b(luxury|luxurious|adventure|adventurous|relaxed|relaxing|moderate)\b`)
)

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"01/02/2006",
	"1/2/2006",
}

var titleCase = cases.Title(language.English)

// Interest keywords recognized by the pattern parser.
var interestRe = regexp.MustCompile(`(?i)\b(museums?|art|beach(?:es)?|food|nightlife|shopping|hiking|history|parks?|spa|theater|architecture|wine|family|nature)\b`)

// parseDate reads a calendar date in any supported layout.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(ordinalRe.ReplaceAllString(s, "$1"))
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ".", "")), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(layout, titleCase.String(strings.ToLower(s))); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseFallback extracts a draft profile with regular expressions.
func parseFallback(text string) *draft {
	d := &draft{Style: "moderate"}

	if m := routeRe.FindStringSubmatch(text); m != nil {
		d.Origin = city(m[1])
		d.Destination = city(m[2])
	} else {
		if m := fromRe.FindStringSubmatch(text); m != nil {
			d.Origin = city(m[1])
		}
		if m := toRe.FindStringSubmatch(text); m != nil {
			d.Destination = city(m[1])
		}
	}

	d.StartDate, d.EndDate = fallbackDates(text)
	d.Budget = fallbackBudget(text)
	d.Style = fallbackStyle(text)

	for _, kw := range interestRe.FindAllString(text, -1) {
		d.Preferences = append(d.Preferences, strings.ToLower(kw))
	}
	d.Preferences = dedupe(d.Preferences)
	return d
}

func city(s string) string {
	return titleCase.String(strings.ToLower(strings.TrimSpace(s)))
}

func fallbackDates(text string) (string, string) {
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		return m[1] + " " + m[2] + " " + m[4], m[1] + " " + m[3] + " " + m[4]
	}

	dates := dateRe.FindAllString(text, -1)
	switch {
	case len(dates) >= 2:
		return dates[0], dates[1]
	case len(dates) == 1:
		// A single date plus "N days" gives the end date.
		if m := daysRe.FindStringSubmatch(text); m != nil {
			n, _ := strconv.Atoi(m[1])
			if start, ok := parseDate(dates[0]); ok && n > 1 {
				return dates[0], start.AddDate(0, 0, n-1).Format("2006-01-02")
			}
		}
		return dates[0], ""
	default:
		return "", ""
	}
}

func fallbackBudget(text string) decimal.Decimal {
	for _, re := range []*regexp.Regexp{dollarRe, currencyRe, budgetRe} {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		raw := strings.ReplaceAll(matches[len(matches)-1][1], ",", "")
		if v, err := decimal.NewFromString(raw); err == nil && v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}

func fallbackStyle(text string) string {
	for _, re := range []*regexp.Regexp{styleWordRe, styleKeyRe, styleBareRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return normalizeStyle(m[1])
		}
	}
	return "moderate"
}

func normalizeStyle(s string) string {
	switch strings.ToLower(s) {
	case "luxurious":
		return "luxury"
	case "adventurous":
		return "adventure"
	case "relaxing":
		return "relaxed"
	default:
		return strings.ToLower(s)
	}
}
