// Package booking provides a client for the booking-com15 RapidAPI flight
// and hotel price endpoints.
package booking

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/trip-cli/internal/resilience"
)

const (
	defaultHost    = "booking-com15.p.rapidapi.com"
	defaultTimeout = 10 * time.Second
)

// ErrNoPrice is returned when the API answered but listed no usable price.
var ErrNoPrice = eris.New("booking: no price in response")

// Client defines the price lookup operations.
type Client interface {
	// FlightMinPrice returns the cheapest round-trip fare.
	FlightMinPrice(ctx context.Context, q FlightQuery) (float64, error)
	// HotelMinPrice returns the cheapest hotel price for the whole stay.
	HotelMinPrice(ctx context.Context, q HotelQuery) (float64, error)
}

// FlightQuery identifies a round trip between two airports.
type FlightQuery struct {
	FromID     string // e.g. "ORD.AIRPORT"
	ToID       string
	DepartDate string // YYYY-MM-DD
	ReturnDate string
	CabinClass string
}

// HotelQuery identifies a hotel stay.
type HotelQuery struct {
	Location string
	CheckIn  string // YYYY-MM-DD
	CheckOut string
	Adults   int
}

// Option configures the booking client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHost sets the x-rapidapi-host header value.
func WithHost(host string) Option {
	return func(c *httpClient) {
		if host != "" {
			c.host = host
		}
	}
}

// WithCurrency sets the currency code for returned prices.
func WithCurrency(code string) Option {
	return func(c *httpClient) {
		if code != "" {
			c.currency = code
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey   string
	host     string
	baseURL  string
	currency string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a new booking price client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		host:     defaultHost,
		currency: "USD",
		limiter:  rate.NewLimiter(2, 1),
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = "https://" + c.host
	}
	return c
}

type flightResponse struct {
	Status bool `json:"status"`
	Data   []struct {
		DepartureDate string `json:"departureDate"`
		Price         money  `json:"price"`
	} `json:"data"`
}

type money struct {
	CurrencyCode string  `json:"currencyCode"`
	Units        float64 `json:"units"`
	Nanos        float64 `json:"nanos"`
}

func (m money) value() float64 {
	return m.Units + m.Nanos/1e9
}

func (c *httpClient) FlightMinPrice(ctx context.Context, q FlightQuery) (float64, error) {
	params := url.Values{}
	params.Set("fromId", q.FromID)
	params.Set("toId", q.ToID)
	params.Set("departDate", q.DepartDate)
	if q.ReturnDate != "" {
		params.Set("returnDate", q.ReturnDate)
	}
	cabin := q.CabinClass
	if cabin == "" {
		cabin = "ECONOMY"
	}
	params.Set("cabinClass", cabin)
	params.Set("currency_code", c.currency)

	body, err := c.get(ctx, "/api/v1/flights/getMinPrice", params)
	if err != nil {
		return 0, eris.Wrap(err, "booking: flight min price")
	}

	var resp flightResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, eris.Wrap(err, "booking: unmarshal flight response")
	}

	best := math.Inf(1)
	for _, d := range resp.Data {
		if v := d.Price.value(); v > 0 && v < best {
			best = v
		}
	}
	if math.IsInf(best, 1) {
		return 0, ErrNoPrice
	}
	return best, nil
}

type hotelResponse struct {
	// Flat shape: {"hotels":[{"price":{"amount":...}}]}
	Hotels []struct {
		Price *struct {
			Amount float64 `json:"amount"`
		} `json:"price"`
	} `json:"hotels"`
	// RapidAPI shape: {"data":{"hotels":[{"property":{"priceBreakdown":{"grossPrice":{"value":...}}}}]}}
	Data struct {
		Hotels []struct {
			Property struct {
				PriceBreakdown struct {
					GrossPrice struct {
						Value float64 `json:"value"`
					} `json:"grossPrice"`
				} `json:"priceBreakdown"`
			} `json:"property"`
		} `json:"hotels"`
	} `json:"data"`
}

func (c *httpClient) HotelMinPrice(ctx context.Context, q HotelQuery) (float64, error) {
	adults := q.Adults
	if adults <= 0 {
		adults = 2
	}
	params := url.Values{}
	params.Set("location", q.Location)
	params.Set("checkin_date", q.CheckIn)
	params.Set("checkout_date", q.CheckOut)
	params.Set("adults", strconv.Itoa(adults))
	params.Set("currency_code", c.currency)

	body, err := c.get(ctx, "/api/v1/hotels/searchHotels", params)
	if err != nil {
		return 0, eris.Wrap(err, "booking: hotel min price")
	}

	var resp hotelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, eris.Wrap(err, "booking: unmarshal hotel response")
	}

	best := math.Inf(1)
	for _, h := range resp.Hotels {
		if h.Price != nil && h.Price.Amount > 0 && h.Price.Amount < best {
			best = h.Price.Amount
		}
	}
	for _, h := range resp.Data.Hotels {
		if v := h.Property.PriceBreakdown.GrossPrice.Value; v > 0 && v < best {
			best = v
		}
	}
	if math.IsInf(best, 1) {
		return 0, ErrNoPrice
	}
	return best, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}
