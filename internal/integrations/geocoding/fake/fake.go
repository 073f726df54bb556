package fake

import (
	"context"
	"fmt"
	"hash/fnv"
)

var streets = []string{"Harbor Road", "Mill Lane", "Station Street", "Depot Avenue", "Canal Way"}

// Client returns a deterministic address for each rounded coordinate pair,
// so local runs need no geocoding service.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%.3f|%.3f", lat, lon)
	v := h.Sum32()
	return fmt.Sprintf("%d %s, Sector %d", v%200+1, streets[v%uint32(len(streets))], v%50+1), nil
}
