package geocoding

import (
	"context"
	"fmt"
)

// Client resolves coordinates to a human-readable address.
type Client interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Placeholder is used when no address could be resolved.
func Placeholder(lat, lon float64) string {
	return fmt.Sprintf("Unknown location (%.4f, %.4f)", lat, lon)
}
