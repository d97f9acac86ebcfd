package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oxfordCircusJSON = `[{
	"lat": "51.5152",
	"lon": "-0.1418",
	"display_name": "Oxford Circus, Westminster, London, W1B 3AG, United Kingdom",
	"category": "highway",
	"type": "junction",
	"importance": 0.52
}]`

func TestNominatimGeocode_Match(t *testing.T) {
	var gotUA string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, oxfordCircusJSON)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient:   srv.Client(),
		baseURL:      srv.URL,
		userAgent:    "lfr_deployment",
		countryCodes: "gb",
		limiter:      newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "Oxford Circus, London, UK")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 51.5152, result.Latitude, 1e-9)
	assert.InDelta(t, -0.1418, result.Longitude, 1e-9)
	assert.Equal(t, "nominatim", result.Source)

	assert.Equal(t, "lfr_deployment", gotUA)
	assert.Equal(t, []string{"Oxford Circus, London, UK"}, gotQuery["q"])
	assert.Equal(t, []string{"jsonv2"}, gotQuery["format"])
	assert.Equal(t, []string{"1"}, gotQuery["limit"])
	assert.Equal(t, []string{"gb"}, gotQuery["countrycodes"])
}

func TestNominatimGeocode_NoCountryCodes(t *testing.T) {
	var hasCountry bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasCountry = r.URL.Query()["countrycodes"]
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: srv.Client(), baseURL: srv.URL, userAgent: "ua", limiter: newTestLimiter()}
	result, err := g.Geocode(context.Background(), "Somewhere")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.False(t, hasCountry)
}

func TestNominatimGeocode_BadCoordinate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "north", "lon": "-0.1"}]`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: srv.Client(), baseURL: srv.URL, userAgent: "ua", limiter: newTestLimiter()}
	_, err := g.geocodeNominatim(context.Background(), "Somewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestNominatimGeocode_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: srv.Client(), baseURL: srv.URL, userAgent: "ua", limiter: newTestLimiter()}
	_, err := g.Geocode(context.Background(), "Oxford Circus, London, UK")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestGeocode_EmptyQuerySkipsLookup(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, oxfordCircusJSON)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: srv.Client(), baseURL: srv.URL, userAgent: "ua", limiter: newTestLimiter()}
	result, err := g.Geocode(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompositeClient_NominatimSucceeds_NoGoogleCall(t *testing.T) {
	var googleCalled atomic.Int32

	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, oxfordCircusJSON)
	}))
	defer nominatimSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		googleCalled.Add(1)
		_, _ = io.WriteString(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":51.5,"lng":-0.1},"location_type":"ROOFTOP"}}]}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(googleSrv.URL, googleGeocodeURL),
		baseURL:    nominatimSrv.URL,
		userAgent:  "ua",
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "Oxford Circus, London, UK")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "nominatim", result.Source)
	assert.Equal(t, int32(0), googleCalled.Load(), "Google should not be called when Nominatim succeeds")
}

func TestCompositeClient_NominatimFails_GoogleFallback(t *testing.T) {
	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer nominatimSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 51.5416, "lng": -0.0034},
					"location_type": "GEOMETRIC_CENTER"
				}
			}]
		}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(googleSrv.URL, googleGeocodeURL),
		baseURL:    nominatimSrv.URL,
		userAgent:  "ua",
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "Stratford Station, London, UK")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.InDelta(t, 51.5416, result.Latitude, 1e-9)
}

func TestCompositeClient_BothFail_NoMatch(t *testing.T) {
	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer nominatimSrv.Close()

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer googleSrv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(googleSrv.URL, googleGeocodeURL),
		baseURL:    nominatimSrv.URL,
		userAgent:  "ua",
		googleKey:  "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "Nowhere Junction, London, UK")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCompositeClient_NoGoogleKey_ErrorSurfaces(t *testing.T) {
	nominatimSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer nominatimSrv.Close()

	g := &geocoder{
		httpClient: nominatimSrv.Client(),
		baseURL:    nominatimSrv.URL,
		userAgent:  "ua",
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), "Oxford Circus, London, UK")
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	g := NewClient().(*geocoder)
	assert.Equal(t, DefaultNominatimURL, g.baseURL)
	assert.Equal(t, DefaultUserAgent, g.userAgent)
	assert.InDelta(t, 1.0, float64(g.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, g.limiter.Burst())
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: 5 * time.Second}
	g := NewClient(
		WithHTTPClient(hc),
		WithBaseURL("http://localhost:8080/"),
		WithUserAgent("tester"),
		WithCountryCodes("gb"),
		WithGoogleAPIKey("k"),
		WithRateLimit(0.5),
	).(*geocoder)

	assert.Same(t, hc, g.httpClient)
	assert.Equal(t, "http://localhost:8080", g.baseURL)
	assert.Equal(t, "tester", g.userAgent)
	assert.Equal(t, "gb", g.countryCodes)
	assert.Equal(t, "k", g.googleKey)
	assert.InDelta(t, 0.5, float64(g.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, g.limiter.Burst())
}

func TestNewClient_EmptyOptionsKeepDefaults(t *testing.T) {
	g := NewClient(WithBaseURL(""), WithUserAgent("")).(*geocoder)
	assert.Equal(t, DefaultNominatimURL, g.baseURL)
	assert.Equal(t, DefaultUserAgent, g.userAgent)
}
