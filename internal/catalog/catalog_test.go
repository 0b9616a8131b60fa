package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Cities(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"Chicago", "Miami", "New York", "Orlando", "Paris", "Sarasota"}, c.Cities())
}

func TestCity_Matching(t *testing.T) {
	c := Default()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Chicago", "Chicago", true},
		{"  chicago ", "Chicago", true},
		{"New York City", "New York", true},
		{"new  york, NY", "New York", true},
		{"Paris, France", "Paris", true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			city, ok := c.City(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, city.Name)
			}
		})
	}
}

func TestAirport(t *testing.T) {
	c := Default()

	code, ok := c.Airport("Los Angeles")
	require.True(t, ok)
	assert.Equal(t, "LAX", code)

	code, ok = c.Airport("orlando")
	require.True(t, ok)
	assert.Equal(t, "MCO", code)

	_, ok = c.Airport("Springfield")
	assert.False(t, ok)
}

func TestRestaurants_FilterByMeal(t *testing.T) {
	c := Default()

	lunches := c.Restaurants("Chicago", "lunch")
	require.Len(t, lunches, 4)
	for _, r := range lunches {
		assert.Equal(t, "lunch", r.Meal)
		assert.Equal(t, "Chicago", r.Location)
	}
	assert.Empty(t, c.Restaurants("Atlantis", "lunch"))
}

func TestAttractions_LocationDefaults(t *testing.T) {
	c := Default()

	var boat Attraction
	for _, a := range c.Attractions("chicago") {
		if a.Name == "Chicago Architecture Boat Tour" {
			boat = a
		}
		assert.NotEmpty(t, a.Location)
	}
	assert.Equal(t, "Chicago River", boat.Location)
}

func TestHotel(t *testing.T) {
	c := Default()

	h, ok := c.Hotel("Chicago", "luxury")
	require.True(t, ok)
	assert.Equal(t, "The Langham Chicago", h)

	h, ok = c.Hotel("Chicago", "adventure")
	require.True(t, ok)
	assert.Equal(t, "Hyatt Centric Chicago Magnificent Mile", h)

	_, ok = c.Hotel("Atlantis", "budget")
	assert.False(t, ok)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  airports:
    reykjavik: kef
  cities:
    reykjavik:
      name: Reykjavik
      attractions:
        - {name: Hallgrímskirkja, type: landmark}
      hotels:
        moderate: Hotel Borg
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	code, ok := c.Airport("Reykjavik")
	require.True(t, ok)
	assert.Equal(t, "KEF", code)
	require.Len(t, c.Attractions("Reykjavik"), 1)
	assert.Equal(t, "Reykjavik", c.Attractions("Reykjavik")[0].Location)
	_, ok = c.City("Chicago")
	assert.False(t, ok)
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	_, ok := c.City("Paris")
	assert.True(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: read")

	_, err = Parse([]byte("catalog: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: parse")

	_, err = Parse([]byte("catalog:\n  cities:\n    x:\n      attractions: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no name")
}
