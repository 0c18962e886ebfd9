// Package geo resolves report locations: device position, address search,
// reverse geocoding, and the allowed-region gate every coordinate passes.
package geo

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed regions/groningen.yaml
var defaultRegionYAML []byte

// BBox is an axis-aligned latitude/longitude box, inclusive on all edges.
type BBox struct {
	MinLat float64 `yaml:"minLat" json:"minLat"`
	MinLon float64 `yaml:"minLon" json:"minLon"`
	MaxLat float64 `yaml:"maxLat" json:"maxLat"`
	MaxLon float64 `yaml:"maxLon" json:"maxLon"`
}

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Region is the area reports may be filed for. When Polygon is set a point
// must be inside both the box and the polygon.
type Region struct {
	Name        string       `yaml:"name" json:"name"`
	CountryCode string       `yaml:"countryCode" json:"countryCode"`
	BBox        BBox         `yaml:"bbox" json:"bbox"`
	Polygon     [][2]float64 `yaml:"polygon,omitempty" json:"polygon,omitempty"`
}

// DefaultRegion returns the built-in Groningen region.
func DefaultRegion() *Region {
	r, err := ParseRegion(defaultRegionYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded region is invalid: %v", err))
	}
	return r
}

// LoadRegion reads a YAML region file.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file %s: %w", path, err)
	}
	r, err := ParseRegion(data)
	if err != nil {
		return nil, fmt.Errorf("region file %s: %w", path, err)
	}
	return r, nil
}

// ParseRegion decodes and validates a YAML region.
func ParseRegion(data []byte) (*Region, error) {
	var r Region
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode region: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that the region describes a usable area.
func (r *Region) Validate() error {
	if r.Name == "" {
		return errors.New("region name is required")
	}
	b := r.BBox
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("region %s: bbox min must be below max", r.Name)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("region %s: bbox outside WGS84 range", r.Name)
	}
	if len(r.Polygon) > 0 && len(r.Polygon) < 3 {
		return fmt.Errorf("region %s: polygon needs at least 3 points, got %d", r.Name, len(r.Polygon))
	}
	return nil
}

// Contains reports whether (lat, lon) is inside the region. A nil region
// contains nothing.
func (r *Region) Contains(lat, lon float64) bool {
	if r == nil || !r.BBox.Contains(lat, lon) {
		return false
	}
	if len(r.Polygon) == 0 {
		return true
	}
	return pointInPolygon(lat, lon, r.Polygon)
}

// pointInPolygon is the even-odd ray casting test. Vertices are [lat, lon].
func pointInPolygon(lat, lon float64, poly [][2]float64) bool {
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		yi, xi := poly[i][0], poly[i][1]
		yj, xj := poly[j][0], poly[j][1]
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
