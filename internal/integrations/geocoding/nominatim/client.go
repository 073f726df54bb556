package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/LiveTrace/internal/integrations/geocoding"
	"github.com/pkg/errors"
)

var _ geocoding.Client = (*Client)(nil)

// Client calls a Nominatim-compatible /reverse endpoint.
type Client struct {
	baseURL   string
	userAgent string
	httpc     *http.Client
}

func New(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "livetrace/1.0"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpc:     &http.Client{Timeout: timeout},
	}
}

type respBody struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = "/reverse"
	q := u.Query()
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("geocoder rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("geocoder http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return "", errors.Wrap(err, "decode")
	}
	if rb.Error != "" {
		return "", errors.Errorf("geocoder: %s", rb.Error)
	}
	if rb.DisplayName == "" {
		return "", errors.New("geocoder: empty address")
	}
	return rb.DisplayName, nil
}
