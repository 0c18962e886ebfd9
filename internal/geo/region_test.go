package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegion(t *testing.T) {
	r := DefaultRegion()
	assert.Equal(t, "Groningen", r.Name)
	assert.Equal(t, "nl", r.CountryCode)
	require.Len(t, r.Polygon, 6)

	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"Grote Markt", 53.2194, 6.5665, true},
		{"Haren", 53.17, 6.60, true},
		{"Vinkhuizen", 53.25, 6.50, true},
		{"box corner outside polygon", 53.32, 6.43, false},
		{"Amsterdam", 52.3728, 4.8936, false},
		{"just east of box", 53.20, 6.77, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.lat, tt.lon))
		})
	}
}

func TestBBoxOnlyRegion(t *testing.T) {
	r := &Region{Name: "box", BBox: BBox{MinLat: 10, MinLon: 20, MaxLat: 11, MaxLon: 21}}
	require.NoError(t, r.Validate())
	assert.True(t, r.Contains(10, 20), "edges are inclusive")
	assert.True(t, r.Contains(11, 21))
	assert.True(t, r.Contains(10.5, 20.5))
	assert.False(t, r.Contains(9.99, 20.5))
}

func TestNilRegionContainsNothing(t *testing.T) {
	var r *Region
	assert.False(t, r.Contains(53.2, 6.5))
}

func TestParseRegionErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "bbox: {minLat: 1, minLon: 1, maxLat: 2, maxLon: 2}"},
		{"inverted box", "name: x\nbbox: {minLat: 2, minLon: 1, maxLat: 1, maxLon: 2}"},
		{"out of range", "name: x\nbbox: {minLat: 1, minLon: 1, maxLat: 95, maxLon: 2}"},
		{"short polygon", "name: x\nbbox: {minLat: 1, minLon: 1, maxLat: 2, maxLon: 2}\npolygon: [[1, 1], [2, 2]]"},
		{"not yaml", "name: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegion([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Test
countryCode: de
bbox:
  minLat: 50
  minLon: 7
  maxLat: 51
  maxLon: 8
`), 0o600))

	r, err := LoadRegion(path)
	require.NoError(t, err)
	assert.Equal(t, "de", r.CountryCode)
	assert.True(t, r.Contains(50.5, 7.5))

	_, err = LoadRegion(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
