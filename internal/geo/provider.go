package geo

import "context"

// Candidate is one address search result.
type Candidate struct {
	Address    string  `json:"address"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Importance float64 `json:"importance,omitempty"`
}

// Provider is an external geocoding service.
type Provider interface {
	// Search returns candidates for a free-text query, best match first.
	Search(ctx context.Context, query string) ([]Candidate, error)
	// Reverse returns a display address for a coordinate pair.
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}
