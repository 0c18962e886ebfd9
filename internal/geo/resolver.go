package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPositionTimeout bounds ResolveCurrentPosition.
	DefaultPositionTimeout = 10 * time.Second

	// MinQueryLength is the shortest accepted search query, after trimming.
	MinQueryLength = 4
)

// Resolver turns position fixes, search results and map picks into the
// draft's location. Every coordinate passes the region gate before it is
// written; a rejected coordinate leaves the draft untouched.
type Resolver struct {
	region          *Region
	provider        Provider
	source          PositionSource
	drafts          *draft.Store
	positionTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPositionSource sets the device position source.
func WithPositionSource(s PositionSource) ResolverOption {
	return func(r *Resolver) { r.source = s }
}

// WithPositionTimeout overrides DefaultPositionTimeout.
func WithPositionTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.positionTimeout = d }
}

// NewResolver creates a Resolver. A nil region rejects every coordinate.
func NewResolver(region *Region, provider Provider, drafts *draft.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		region:          region,
		provider:        provider,
		drafts:          drafts,
		positionTimeout: DefaultPositionTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Region returns the configured region.
func (r *Resolver) Region() *Region { return r.region }

// IsWithinAllowedRegion is the region gate.
func (r *Resolver) IsWithinAllowedRegion(lat, lon float64) bool {
	return r.region.Contains(lat, lon)
}

// ResolveCurrentPosition takes one fix from the position source, reverse
// geocodes it and stores it as the draft location.
func (r *Resolver) ResolveCurrentPosition(ctx context.Context) (report.Location, error) {
	if r.source == nil {
		return report.Location{}, report.NewError(report.ErrPositionUnavailable, report.CauseUnavailable, "no position source", nil)
	}

	start := time.Now()
	fixCtx, cancel := context.WithTimeout(ctx, r.positionTimeout)
	pos, err := r.source.CurrentPosition(fixCtx)
	cancel()

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "position").
		Latency("PositionLatencyMs", start).
		Count("PositionCalls")
	if err != nil {
		cause := positionCause(err)
		m.Count("PositionErrors").Property("cause", string(cause)).Flush()
		log.Debug().Err(err).Str("cause", string(cause)).Msg("Device position unavailable")
		return report.Location{}, report.NewError(report.ErrPositionUnavailable, cause, "could not determine your position", err)
	}
	m.Flush()

	return r.commit(ctx, pos.Latitude, pos.Longitude, "", report.LocationFromDevice)
}

func positionCause(err error) report.Cause {
	switch {
	case errors.Is(err, ErrPositionDenied):
		return report.CausePermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return report.CauseTimeout
	default:
		return report.CauseUnavailable
	}
}

// ReverseResolve returns a display address for the coordinates. Provider
// failures degrade to report.DegradedAddress instead of failing.
func (r *Resolver) ReverseResolve(ctx context.Context, lat, lon float64) string {
	if r.provider == nil {
		return report.DegradedAddress
	}
	addr, err := r.provider.Reverse(ctx, lat, lon)
	if err != nil || strings.TrimSpace(addr) == "" {
		log.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("Reverse geocoding failed, using degraded address")
		return report.DegradedAddress
	}
	return addr
}

// SearchAddress returns ranked candidates for query. It does not touch the
// draft; the caller picks one with SelectCandidate.
func (r *Resolver) SearchAddress(ctx context.Context, query string) ([]Candidate, error) {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < MinQueryLength {
		return nil, report.NewError(report.ErrInvalidInput, "",
			fmt.Sprintf("search query must be at least %d characters", MinQueryLength), nil)
	}
	if r.provider == nil {
		return nil, report.NewError(report.ErrPositionUnavailable, report.CauseUnavailable, "address search is not configured", nil)
	}
	cands, err := r.provider.Search(ctx, q)
	if err != nil {
		return nil, report.NewError(report.ErrPositionUnavailable, report.CauseNetwork, "address search failed", err)
	}
	log.Debug().Str("query", q).Int("results", len(cands)).Msg("Address search complete")
	return cands, nil
}

// SelectCandidate stores a search result as the draft location.
func (r *Resolver) SelectCandidate(ctx context.Context, c Candidate) (report.Location, error) {
	return r.commit(ctx, c.Latitude, c.Longitude, c.Address, report.LocationFromSearch)
}

// PickOnMap stores a coordinate chosen directly on the map.
func (r *Resolver) PickOnMap(ctx context.Context, lat, lon float64) (report.Location, error) {
	return r.commit(ctx, lat, lon, "", report.LocationFromMap)
}

// UsePhotoPosition stores the GPS position embedded in the draft's photo.
func (r *Resolver) UsePhotoPosition(ctx context.Context) (report.Location, error) {
	d := r.drafts.Current()
	if d.Photo == nil || d.Photo.Position == nil {
		return report.Location{}, report.NewError(report.ErrPositionUnavailable, report.CauseUnavailable, "photo has no GPS position", nil)
	}
	return r.commit(ctx, d.Photo.Position.Latitude, d.Photo.Position.Longitude, "", report.LocationFromPhoto)
}

// commit gates the coordinates, fills in the address when empty and writes
// the draft. The gate runs before any geocoding so rejected picks cost no
// provider call.
func (r *Resolver) commit(ctx context.Context, lat, lon float64, address, source string) (report.Location, error) {
	if !validCoordinate(lat, lon) {
		return report.Location{}, report.NewError(report.ErrInvalidInput, "", "coordinates out of range", nil)
	}
	if !r.IsWithinAllowedRegion(lat, lon) {
		name := "the allowed region"
		if r.region != nil {
			name = r.region.Name
		}
		log.Info().Float64("lat", lat).Float64("lon", lon).Str("source", source).Msg("Location outside allowed region")
		return report.Location{}, report.NewError(report.ErrRegionViolation, "",
			fmt.Sprintf("this location is outside %s", name), nil)
	}
	if address == "" {
		address = r.ReverseResolve(ctx, lat, lon)
	}

	loc := report.Location{
		Latitude:            lat,
		Longitude:           lon,
		Address:             address,
		WithinAllowedRegion: true,
		Source:              source,
	}
	if _, err := r.drafts.Save(ctx, draft.WithLocation(loc)); err != nil {
		log.Warn().Err(err).Msg("Location kept in memory, draft not persisted")
	}
	log.Debug().Str("source", source).Str("address", address).Msg("Location set")
	return loc, nil
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
