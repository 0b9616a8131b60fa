// Package catalog holds the venue data (attractions, restaurants, hotels and
// airports) the itinerary generator draws from.
package catalog

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Attraction is a point of interest.
type Attraction struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Location      string `yaml:"location"`
	VisitDuration int    `yaml:"visit_duration"` // minutes
}

// Restaurant is a place to eat for one meal slot.
type Restaurant struct {
	Name       string `yaml:"name"`
	Meal       string `yaml:"meal"` // breakfast, lunch, dinner
	Location   string `yaml:"location"`
	PriceRange string `yaml:"price_range"` // budget, moderate, luxury
}

// City groups the venues of one city.
type City struct {
	Name        string            `yaml:"name"`
	Attractions []Attraction      `yaml:"attractions"`
	Restaurants []Restaurant      `yaml:"restaurants"`
	Hotels      map[string]string `yaml:"hotels"` // pricing tier → hotel name
}

// Catalog is a read-only, case-insensitive venue lookup.
type Catalog struct {
	airports map[string]string
	cities   map[string]*City
}

type file struct {
	Catalog struct {
		Airports map[string]string `yaml:"airports"`
		Cities   map[string]*City  `yaml:"cities"`
	} `yaml:"catalog"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(eris.Wrap(err, "catalog: embedded catalog"))
	}
	return c
}

// Load reads a catalog file. An empty path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	c := &Catalog{
		airports: make(map[string]string, len(f.Catalog.Airports)),
		cities:   make(map[string]*City, len(f.Catalog.Cities)),
	}
	for k, code := range f.Catalog.Airports {
		c.airports[normalize(k)] = strings.ToUpper(strings.TrimSpace(code))
	}
	for k, city := range f.Catalog.Cities {
		if city == nil {
			continue
		}
		if city.Name == "" {
			return nil, eris.Errorf("catalog: city %q has no name", k)
		}
		// Locations default to the city itself.
		for i := range city.Attractions {
			if city.Attractions[i].Location == "" {
				city.Attractions[i].Location = city.Name
			}
		}
		for i := range city.Restaurants {
			if city.Restaurants[i].Location == "" {
				city.Restaurants[i].Location = city.Name
			}
		}
		c.cities[normalize(k)] = city
	}
	return c, nil
}

// City finds a city by name. "New York City" and "new york, ny" both match
// the "new york" entry.
func (c *Catalog) City(name string) (*City, bool) {
	key, ok := match(name, c.cities)
	if !ok {
		return nil, false
	}
	return c.cities[key], true
}

// Airport returns the IATA code for a city.
func (c *Catalog) Airport(name string) (string, bool) {
	key, ok := match(name, c.airports)
	if !ok {
		return "", false
	}
	return c.airports[key], true
}

// Cities returns the display names of all catalog cities, sorted.
func (c *Catalog) Cities() []string {
	out := make([]string, 0, len(c.cities))
	for _, city := range c.cities {
		out = append(out, city.Name)
	}
	sort.Strings(out)
	return out
}

// Attractions returns the attractions of a city, or nil if unknown.
func (c *Catalog) Attractions(name string) []Attraction {
	city, ok := c.City(name)
	if !ok {
		return nil
	}
	return city.Attractions
}

// Restaurants returns the restaurants of a city serving meal.
func (c *Catalog) Restaurants(name, meal string) []Restaurant {
	city, ok := c.City(name)
	if !ok {
		return nil
	}
	var out []Restaurant
	for _, r := range city.Restaurants {
		if strings.EqualFold(r.Meal, meal) {
			out = append(out, r)
		}
	}
	return out
}

// Hotel returns the hotel for a city at a pricing tier, falling back to the
// moderate hotel.
func (c *Catalog) Hotel(name, tier string) (string, bool) {
	city, ok := c.City(name)
	if !ok || len(city.Hotels) == 0 {
		return "", false
	}
	if h, ok := city.Hotels[tier]; ok {
		return h, true
	}
	h, ok := city.Hotels["moderate"]
	return h, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// match returns the longest key contained in name, so "new york" wins over
// a hypothetical "york".
func match[V any](name string, m map[string]V) (string, bool) {
	n := normalize(name)
	if n == "" {
		return "", false
	}
	if _, ok := m[n]; ok {
		return n, true
	}
	best := ""
	for k := range m {
		if strings.Contains(n, k) && len(k) > len(best) {
			best = k
		}
	}
	return best, best != ""
}
