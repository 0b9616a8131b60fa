// Package estimate produces baseline trip costs from live price lookups,
// falling back to heuristics when a lookup is unavailable.
package estimate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/catalog"
	"github.com/sells-group/trip-cli/internal/cost"
	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/pkg/booking"
)

// Price sources recorded in CostBreakdown.Sources.
const (
	SourceAPI      = "api"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Hour

	serviceFlights = "booking.flights"
	serviceHotels  = "booking.hotels"
)

// QuoteCache stores price lookups between requests.
type QuoteCache interface {
	GetCachedQuote(ctx context.Context, key string) (*model.PriceQuote, error)
	SetCachedQuote(ctx context.Context, key string, amount float64, ttl time.Duration) error
}

// Estimator builds CostBreakdowns.
type Estimator struct {
	catalog *catalog.Catalog
	calc    *cost.Calculator

	prices   booking.Client
	cache    QuoteCache
	ttl      time.Duration
	breakers *resilience.Breakers
	retry    resilience.RetryConfig
	timeout  time.Duration
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithPrices enables live price lookups.
func WithPrices(client booking.Client) Option {
	return func(e *Estimator) { e.prices = client }
}

// WithCache caches successful lookups for ttl.
func WithCache(cache QuoteCache, ttl time.Duration) Option {
	return func(e *Estimator) {
		e.cache = cache
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithBreakers shares a circuit breaker registry across estimators.
func WithBreakers(b *resilience.Breakers) Option {
	return func(e *Estimator) { e.breakers = b }
}

// WithRetry overrides the retry policy for lookups.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Estimator) { e.retry = cfg }
}

// WithTimeout bounds each lookup, retries included.
func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an Estimator. Without WithPrices every estimate is heuristic.
func New(cat *catalog.Catalog, calc *cost.Calculator, opts ...Option) *Estimator {
	e := &Estimator{
		catalog:  cat,
		calc:     calc,
		ttl:      defaultCacheTTL,
		breakers: resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:    resilience.DefaultRetryConfig(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the baseline costs for profile. It never fails: any
// lookup problem is logged and replaced by the heuristic price.
func (e *Estimator) Estimate(ctx context.Context, profile *model.TripProfile) model.CostBreakdown {
	log := zap.L().With(
		zap.String("component", "estimate"),
		zap.String("origin", profile.Origin),
		zap.String("destination", profile.Destination),
	)
	style := profile.TravelStyle
	days := profile.Days()
	nights := profile.Nights()

	flights, flightSrc := e.flights(ctx, profile)
	hotels, hotelSrc := e.hotels(ctx, profile)

	n := decimal.NewFromInt(int64(days))
	dest := decimal.NewFromInt(int64(cost.DestinationDays(days)))
	b := model.NewCostBreakdown(
		flights,
		hotels,
		e.calc.DailyMeals(style).Mul(n),
		e.calc.AttractionFee().Mul(dest),
		e.calc.LocalTransport().Mul(dest),
	)
	b.Sources = map[string]string{"flights": flightSrc, "hotels": hotelSrc}

	log.Info("estimate: baseline costs",
		zap.Int("days", days),
		zap.Int("nights", nights),
		zap.String("flights", b.Flights.StringFixed(2)),
		zap.String("flights_source", flightSrc),
		zap.String("hotels", b.Hotels.StringFixed(2)),
		zap.String("hotels_source", hotelSrc),
		zap.String("total", b.Total.StringFixed(2)),
	)
	return b
}

func (e *Estimator) flights(ctx context.Context, p *model.TripProfile) (decimal.Decimal, string) {
	fallback := e.calc.FlightFallback(p.TravelStyle)

	from, okFrom := e.airport(p.Origin)
	to, okTo := e.airport(p.Destination)
	if e.prices == nil || !okFrom || !okTo {
		return fallback, SourceFallback
	}

	q := booking.FlightQuery{
		FromID:     from,
		ToID:       to,
		DepartDate: p.StartDate.Format(model.DateLayout),
		ReturnDate: p.EndDate.Format(model.DateLayout),
		CabinClass: "ECONOMY",
	}
	key := fmt.Sprintf("flight:%s:%s:%s:%s:%s", from, to, q.DepartDate, q.ReturnDate, q.CabinClass)
	return e.lookup(ctx, serviceFlights, key, fallback, func(ctx context.Context) (float64, error) {
		return e.prices.FlightMinPrice(ctx, q)
	})
}

func (e *Estimator) hotels(ctx context.Context, p *model.TripProfile) (decimal.Decimal, string) {
	nights := p.Nights()
	fallback := e.calc.HotelFallback(p.TravelStyle, nights)
	if nights == 0 {
		return decimal.Zero, SourceFallback
	}
	if e.prices == nil {
		return fallback, SourceFallback
	}

	q := booking.HotelQuery{
		Location: p.Destination,
		CheckIn:  p.StartDate.Format(model.DateLayout),
		CheckOut: p.EndDate.Format(model.DateLayout),
		Adults:   1,
	}
	key := fmt.Sprintf("hotel:%s:%s:%s", strings.ToLower(q.Location), q.CheckIn, q.CheckOut)
	return e.lookup(ctx, serviceHotels, key, fallback, func(ctx context.Context) (float64, error) {
		return e.prices.HotelMinPrice(ctx, q)
	})
}

// lookup resolves a price from the cache, then the API, then fallback.
func (e *Estimator) lookup(ctx context.Context, service, key string, fallback decimal.Decimal, fn func(ctx context.Context) (float64, error)) (decimal.Decimal, string) {
	log := zap.L().With(zap.String("component", "estimate"), zap.String("key", key))

	if e.cache != nil {
		q, err := e.cache.GetCachedQuote(ctx, key)
		if err != nil {
			log.Warn("estimate: quote cache read failed", zap.Error(err))
		} else if q != nil && q.Amount > 0 {
			return decimal.NewFromFloat(q.Amount).Round(2), SourceCache
		}
	}

	retry := e.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(service, key)
	}
	cb := e.breakers.Get(service)

	amount, err := resilience.WithTimeout(ctx, e.timeout, func(ctx context.Context) (float64, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (float64, error) {
			return resilience.DoVal(ctx, retry, fn)
		})
	})
	if err != nil || amount <= 0 {
		log.Warn("estimate: price lookup failed, using heuristic",
			zap.String("service", service),
			zap.String("fallback", fallback.StringFixed(2)),
			zap.Error(err),
		)
		return fallback, SourceFallback
	}

	if e.cache != nil {
		if err := e.cache.SetCachedQuote(ctx, key, amount, e.ttl); err != nil {
			log.Warn("estimate: quote cache write failed", zap.Error(err))
		}
	}
	return decimal.NewFromFloat(amount).Round(2), SourceAPI
}

// airport maps a city to the booking API's airport id.
func (e *Estimator) airport(city string) (string, bool) {
	if e.catalog == nil {
		return "", false
	}
	code, ok := e.catalog.Airport(city)
	if !ok {
		return "", false
	}
	return code + ".AIRPORT", true
}
