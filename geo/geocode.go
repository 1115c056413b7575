package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Geocoder converts coordinates into a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p Point) (string, error)
}

// HTTPGeocoder calls an external reverse-geocoding service keyed by an API
// credential. Failures are reported as ErrGeocodeFailure so callers can
// degrade gracefully.
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGeocoder(baseURL, apiKey string) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type geocodeResponse struct {
	DisplayName string `json:"display_name"`
}

// ReverseGeocode resolves the formatted address for a coordinate pair.
func (g *HTTPGeocoder) ReverseGeocode(ctx context.Context, p Point) (string, error) {
	if g.baseURL == "" {
		return "", fmt.Errorf("%w: no geocoder configured", ErrGeocodeFailure)
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.Latitude))
	q.Set("lon", fmt.Sprintf("%f", p.Longitude))
	q.Set("format", "json")
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGeocodeFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeocodeFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrGeocodeFailure, resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeocodeFailure, err)
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("%w: empty address", ErrGeocodeFailure)
	}

	return body.DisplayName, nil
}
