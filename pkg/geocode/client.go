// Package geocode resolves free-text place names to coordinates via
// Nominatim (primary) and Google (fallback), and carries the address
// normalization and manual override table used before and after lookup.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// DefaultUserAgent identifies the pipeline to Nominatim, which rejects
// requests without one.
const DefaultUserAgent = "lfr_deployment"

// Client geocodes free-text queries.
type Client interface {
	// Geocode resolves a single query. A query nobody could place is a
	// Result with Matched false, not an error.
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output for a query.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Source      string // "nominatim" or "google"
	Matched     bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Nominatim and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by every lookup.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent sent to Nominatim.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithCountryCodes restricts Nominatim results to a comma-separated list of
// ISO 3166-1 alpha-2 codes.
func WithCountryCodes(codes string) Option {
	return func(g *geocoder) {
		g.countryCodes = codes
	}
}

// WithBreaker disables a provider for cooldown after threshold consecutive
// request errors. A threshold of zero or less turns the breaker off.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(g *geocoder) {
		g.nominatimBreaker = newBreaker("nominatim", threshold, cooldown)
		g.googleBreaker = newBreaker("google", threshold, cooldown)
	}
}

type geocoder struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	googleKey    string
	limiter      *rate.Limiter

	nominatimBreaker *breaker
	googleBreaker    *breaker
}

// NewClient creates a new geocoding Client with the given options. Without
// WithRateLimit it issues at most one request per second, the Nominatim
// usage policy limit. A provider failing five times in a row is skipped for
// a minute unless WithBreaker says otherwise.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultNominatimURL,
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(1, 1),
	}
	WithBreaker(5, time.Minute)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a single query, trying Nominatim first, then Google if
// configured. The Nominatim error is returned only when no provider matched.
func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Matched: false}, nil
	}

	result, nominatimErr := call(ctx, g.nominatimBreaker, query, g.geocodeNominatim)
	if nominatimErr == nil && result.Matched {
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := call(ctx, g.googleBreaker, query, g.geocodeGoogle)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
	}

	if nominatimErr != nil {
		return nil, nominatimErr
	}
	return &Result{Matched: false}, nil
}

// call runs one provider lookup through its breaker. Cancellation is not
// counted against the provider.
func call(ctx context.Context, b *breaker, query string, fn func(context.Context, string) (*Result, error)) (*Result, error) {
	if !b.allow() {
		return nil, ErrProviderUnavailable
	}
	res, err := fn(ctx, query)
	if ctx.Err() == nil {
		b.record(err)
	}
	return res, err
}
