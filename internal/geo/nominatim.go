package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultNominatimURL is the public OpenStreetMap instance.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies the application, as the usage policy requires.
	DefaultUserAgent = "litter-report/1.0"

	defaultSearchLimit = 5
	reverseZoom        = 18
)

// Nominatim is a Provider backed by the OpenStreetMap Nominatim API. Requests
// are throttled to one per second and searches are restricted to the region.
type Nominatim struct {
	baseURL    string
	userAgent  string
	region     *Region
	limit      int
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

var _ Provider = (*Nominatim)(nil)

// NominatimOption configures a Nominatim client.
type NominatimOption func(*Nominatim)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) NominatimOption {
	return func(n *Nominatim) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) { n.userAgent = ua }
}

// WithLimiter replaces the one request per second limiter.
func WithLimiter(l *rate.Limiter) NominatimOption {
	return func(n *Nominatim) { n.limiter = l }
}

// WithSearchLimit caps the number of search candidates.
func WithSearchLimit(limit int) NominatimOption {
	return func(n *Nominatim) { n.limit = limit }
}

// WithNominatimRetries sets how many times a 429/5xx or transport failure is retried.
func WithNominatimRetries(retries uint64, newBackOff func() backoff.BackOff) NominatimOption {
	return func(n *Nominatim) {
		n.maxRetries = retries
		if newBackOff != nil {
			n.newBackOff = newBackOff
		}
	}
}

// NewNominatim creates a client. region may be nil, in which case searches
// are not bounded.
func NewNominatim(region *Region, opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    DefaultNominatimURL,
		userAgent:  DefaultUserAgent,
		region:     region,
		limit:      defaultSearchLimit,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		maxRetries: 2,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Importance  float64          `json:"importance"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error,omitempty"`
}

type nominatimAddress struct {
	Road        string `json:"road"`
	HouseNumber string `json:"house_number"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
}

// Search queries /search, bounded to the region's box and country.
func (n *Nominatim) Search(ctx context.Context, query string) ([]Candidate, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {strconv.Itoa(n.limit)},
	}
	if n.region != nil {
		b := n.region.BBox
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", b.MinLon, b.MaxLat, b.MaxLon, b.MinLat))
		params.Set("bounded", "1")
		if n.region.CountryCode != "" {
			params.Set("countrycodes", n.region.CountryCode)
		}
	}

	var places []nominatimPlace
	if err := n.get(ctx, "search", "/search", params, &places); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	out := make([]Candidate, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			log.Debug().Str("lat", p.Lat).Str("lon", p.Lon).Msg("Skipping search result with bad coordinates")
			continue
		}
		addr := p.Address.format()
		if addr == "" {
			addr = p.DisplayName
		}
		out = append(out, Candidate{Address: addr, Latitude: lat, Longitude: lon, Importance: p.Importance})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// Reverse queries /reverse and formats "road number, postcode city".
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":         {"jsonv2"},
		"zoom":           {strconv.Itoa(reverseZoom)},
		"addressdetails": {"1"},
	}

	var place nominatimPlace
	if err := n.get(ctx, "reverse", "/reverse", params, &place); err != nil {
		return "", fmt.Errorf("reverse %f,%f: %w", lat, lon, err)
	}
	if place.Error != "" {
		return "", fmt.Errorf("reverse %f,%f: %s", lat, lon, place.Error)
	}
	if addr := place.Address.format(); addr != "" {
		return addr, nil
	}
	if place.DisplayName == "" {
		return "", fmt.Errorf("reverse %f,%f: empty result", lat, lon)
	}
	return place.DisplayName, nil
}

func (a nominatimAddress) format() string {
	street := strings.TrimSpace(a.Road + " " + a.HouseNumber)
	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}
	place := strings.TrimSpace(a.Postcode + " " + city)

	switch {
	case street != "" && place != "":
		return street + ", " + place
	case street != "":
		return street
	default:
		return ""
	}
}

func (n *Nominatim) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	u := n.baseURL + path + "?" + params.Encode()
	start := time.Now()

	call := func() error {
		if err := n.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", n.userAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", "nl,en")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("nominatim returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, msg))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode nominatim response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(n.newBackOff(), n.maxRetries), ctx)
	err := backoff.RetryNotify(call, b, func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("op", op).Dur("wait", wait).Msg("Retrying geocoder request")
	})

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "geocode").
		Dimension("Call", op).
		Latency("GeocodeLatencyMs", start).
		Count("GeocodeCalls")
	if err != nil {
		m.Count("GeocodeErrors")
	}
	m.Flush()
	return err
}
