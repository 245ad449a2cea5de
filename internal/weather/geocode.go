package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Geocoder resolves place names through a maps.co style search endpoint.
type Geocoder struct {
	*Client
	BaseURL string
	APIKey  string
}

func NewGeocoder(c *Client, baseURL, apiKey string) *Geocoder {
	return &Geocoder{Client: c, BaseURL: baseURL, APIKey: apiKey}
}

// coordinate accepts a JSON number or a numeric string; geocode.maps.co
// sends strings.
type coordinate float64

func (c *coordinate) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*c = coordinate(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", t, err)
		}
		*c = coordinate(f)
	default:
		return fmt.Errorf("coordinate: unexpected JSON %s", b)
	}
	return nil
}

type geocodeResult struct {
	Lat         *coordinate `json:"lat"`
	Lon         *coordinate `json:"lon"`
	DisplayName string      `json:"display_name"`
}

// Resolve looks up placeName. An unknown place yields an empty slice and a
// nil error; callers must tell that apart from a failure.
func (g *Geocoder) Resolve(ctx context.Context, placeName string) ([]Place, error) {
	u := fmt.Sprintf("%s?q=%s&api_key=%s",
		g.BaseURL, url.QueryEscape(placeName), url.QueryEscape(g.APIKey),
	)

	var results []geocodeResult
	if err := g.getJSON(ctx, "geocode", u, &results); err != nil {
		return nil, err
	}
	// an empty match is [], so a nil slice means the body was null
	if results == nil {
		return nil, &ParseError{Upstream: "geocode", Err: errors.New("expected a JSON array, got null")}
	}

	places := make([]Place, len(results))
	for i, r := range results {
		if r.Lat == nil || r.Lon == nil {
			return nil, &ParseError{Upstream: "geocode", Err: fmt.Errorf("result %d has no coordinates", i)}
		}
		places[i] = Place{Lat: float64(*r.Lat), Lon: float64(*r.Lon), DisplayName: r.DisplayName}
	}
	return places, nil
}
