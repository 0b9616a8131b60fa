package estimate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trip-cli/internal/catalog"
	"github.com/sells-group/trip-cli/internal/cost"
	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/pkg/booking"
)

type mockPrices struct{ mock.Mock }

func (m *mockPrices) FlightMinPrice(ctx context.Context, q booking.FlightQuery) (float64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockPrices) HotelMinPrice(ctx context.Context, q booking.HotelQuery) (float64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(float64), args.Error(1)
}

type memCache struct {
	mu     sync.Mutex
	quotes map[string]float64
	getErr error
}

func newMemCache() *memCache { return &memCache{quotes: map[string]float64{}} }

func (c *memCache) GetCachedQuote(_ context.Context, key string) (*model.PriceQuote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.quotes[key]
	if !ok {
		return nil, nil
	}
	return &model.PriceQuote{Key: key, Amount: v}, nil
}

func (c *memCache) SetCachedQuote(_ context.Context, key string, amount float64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = amount
	return nil
}

func profile(origin, dest string, style model.TravelStyle) *model.TripProfile {
	return &model.TripProfile{
		Origin:      origin,
		Destination: dest,
		StartDate:   time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2027, 5, 3, 0, 0, 0, 0, time.UTC),
		TravelStyle: style,
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func newEstimator(opts ...Option) *Estimator {
	return New(catalog.Default(), cost.NewCalculator(cost.DefaultRates()), append([]Option{WithRetry(fastRetry())}, opts...)...)
}

const (
	flightKey = "flight:ORD.AIRPORT:CDG.AIRPORT:2027-05-01:2027-05-03:ECONOMY"
	hotelKey  = "hotel:paris:2027-05-01:2027-05-03"
)

func TestEstimate_HeuristicOnly(t *testing.T) {
	b := newEstimator().Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))

	assert.Equal(t, "300", b.Flights.String())
	assert.Equal(t, "300", b.Hotels.String())
	assert.Equal(t, "240", b.Meals.String())
	// Three days: only the middle day is spent at the destination.
	assert.Equal(t, "25", b.Attractions.String())
	assert.Equal(t, "30", b.LocalTransport.String())
	assert.Equal(t, "895", b.Total.String())
	assert.Equal(t, map[string]string{"flights": SourceFallback, "hotels": SourceFallback}, b.Sources)
}

func TestEstimate_TravelDaysCarryNoDestinationCharges(t *testing.T) {
	tests := []struct {
		name        string
		days        int
		attractions string
		local       string
	}{
		{"day trip", 1, "0", "0"},
		{"weekend", 2, "0", "0"},
		{"five days", 5, "75", "90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile("Chicago", "Paris", model.StyleBudget)
			p.EndDate = p.StartDate.AddDate(0, 0, tt.days-1)

			b := newEstimator().Estimate(context.Background(), p)
			assert.Equal(t, tt.attractions, b.Attractions.String())
			assert.Equal(t, tt.local, b.LocalTransport.String())
		})
	}
}

func TestEstimate_HeuristicByStyle(t *testing.T) {
	tests := []struct {
		style           model.TravelStyle
		flights, hotels string
	}{
		{model.StyleBudget, "240", "160"},
		{model.StyleModerate, "300", "300"},
		{model.StyleLuxury, "450", "600"},
		{model.StyleAdventure, "300", "300"},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			b := newEstimator().Estimate(context.Background(), profile("Chicago", "Paris", tt.style))
			assert.Equal(t, tt.flights, b.Flights.String())
			assert.Equal(t, tt.hotels, b.Hotels.String())
			assert.True(t, b.Total.Equal(b.Flights.Add(b.Hotels).Add(b.Meals).Add(b.Attractions).Add(b.LocalTransport)))
		})
	}
}

func TestEstimate_APIThenCache(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, booking.FlightQuery{
		FromID: "ORD.AIRPORT", ToID: "CDG.AIRPORT",
		DepartDate: "2027-05-01", ReturnDate: "2027-05-03", CabinClass: "ECONOMY",
	}).Return(612.4, nil).Once()
	prices.On("HotelMinPrice", mock.Anything, booking.HotelQuery{
		Location: "Paris", CheckIn: "2027-05-01", CheckOut: "2027-05-03", Adults: 1,
	}).Return(410.0, nil).Once()

	cache := newMemCache()
	e := newEstimator(WithPrices(prices), WithCache(cache, time.Hour))

	b := e.Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))
	assert.Equal(t, "612.4", b.Flights.String())
	assert.Equal(t, "410", b.Hotels.String())
	assert.Equal(t, SourceAPI, b.Sources["flights"])
	assert.Equal(t, SourceAPI, b.Sources["hotels"])
	assert.InDelta(t, 612.4, cache.quotes[flightKey], 0.001)
	assert.InDelta(t, 410, cache.quotes[hotelKey], 0.001)

	again := e.Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))
	assert.True(t, again.Total.Equal(b.Total))
	assert.Equal(t, SourceCache, again.Sources["flights"])
	assert.Equal(t, SourceCache, again.Sources["hotels"])
	prices.AssertExpectations(t)
}

func TestEstimate_CacheReadErrorStillQueries(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).Return(500.0, nil)
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(200.0, nil)

	cache := newMemCache()
	cache.getErr = errors.New("disk full")
	b := newEstimator(WithPrices(prices), WithCache(cache, 0)).
		Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))

	assert.Equal(t, SourceAPI, b.Sources["flights"])
	assert.Equal(t, "500", b.Flights.String())
}

func TestEstimate_UnknownAirportSkipsFlightLookup(t *testing.T) {
	prices := &mockPrices{}
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(350.0, nil)

	b := newEstimator(WithPrices(prices)).
		Estimate(context.Background(), profile("Eldoria", "Paris", model.StyleBudget))

	assert.Equal(t, "240", b.Flights.String())
	assert.Equal(t, SourceFallback, b.Sources["flights"])
	assert.Equal(t, "350", b.Hotels.String())
	prices.AssertNotCalled(t, "FlightMinPrice", mock.Anything, mock.Anything)
}

func TestEstimate_RetriesTransientFailure(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).
		Return(0.0, resilience.NewTransientError(errors.New("rate limited"), 429)).Once()
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).Return(480.0, nil).Once()
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(260.0, nil)

	b := newEstimator(WithPrices(prices)).
		Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))

	assert.Equal(t, "480", b.Flights.String())
	assert.Equal(t, SourceAPI, b.Sources["flights"])
	prices.AssertNumberOfCalls(t, "FlightMinPrice", 2)
}

func TestEstimate_PermanentFailureFallsBack(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).Return(0.0, booking.ErrNoPrice)
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(0.0, errors.New("forbidden"))

	cache := newMemCache()
	b := newEstimator(WithPrices(prices), WithCache(cache, time.Hour)).
		Estimate(context.Background(), profile("Chicago", "Paris", model.StyleLuxury))

	assert.Equal(t, "450", b.Flights.String())
	assert.Equal(t, "600", b.Hotels.String())
	assert.Equal(t, SourceFallback, b.Sources["flights"])
	assert.Equal(t, SourceFallback, b.Sources["hotels"])
	assert.Empty(t, cache.quotes)
	prices.AssertNumberOfCalls(t, "FlightMinPrice", 1)
}

func TestEstimate_OpenCircuitSkipsLookups(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).Return(0.0, booking.ErrNoPrice)
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(0.0, booking.ErrNoPrice)

	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	e := newEstimator(WithPrices(prices), WithBreakers(breakers))

	e.Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))
	assert.Equal(t, resilience.CircuitOpen, breakers.Get(serviceFlights).State())

	b := e.Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))
	assert.Equal(t, SourceFallback, b.Sources["flights"])
	prices.AssertNumberOfCalls(t, "FlightMinPrice", 1)
	prices.AssertNumberOfCalls(t, "HotelMinPrice", 1)
}

func TestEstimate_TimeoutFallsBack(t *testing.T) {
	prices := &mockPrices{}
	prices.On("FlightMinPrice", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(0.0, context.DeadlineExceeded)
	prices.On("HotelMinPrice", mock.Anything, mock.Anything).Return(300.0, nil)

	start := time.Now()
	b := newEstimator(WithPrices(prices), WithTimeout(20*time.Millisecond)).
		Estimate(context.Background(), profile("Chicago", "Paris", model.StyleModerate))

	require.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, SourceFallback, b.Sources["flights"])
	assert.Equal(t, SourceAPI, b.Sources["hotels"])
}
