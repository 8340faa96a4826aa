package maps

import (
	"context"
	"errors"
)

// ErrNoResults is returned when the provider knows no address for a point.
var ErrNoResults = errors.New("maps: no geocoding results")

// Geocoder resolves coordinates to a human readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResult, error)
}

type GeocodeResult struct {
	PlaceID string   `json:"place_id"`
	Address string   `json:"formatted_address"`
	Types   []string `json:"types"`
}
