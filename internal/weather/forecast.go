package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// sampleTimeLayout is the layout of dt_txt in OpenWeatherMap forecasts.
const sampleTimeLayout = "2006-01-02 15:04:05"

// ForecastClient fetches 5 day / 3 hour forecasts from OpenWeatherMap.
type ForecastClient struct {
	*Client
	BaseURL string
	APIKey  string
}

func NewForecastClient(c *Client, baseURL, apiKey string) *ForecastClient {
	return &ForecastClient{Client: c, BaseURL: baseURL, APIKey: apiKey}
}

type forecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		DtTxt string `json:"dt_txt"`
	} `json:"list"`
}

// Resolve fetches the forecast for a coordinate. The request always asks for
// imperial units; display conversion happens later.
func (f *ForecastClient) Resolve(ctx context.Context, lat, lon float64) (*ForecastPayload, error) {
	u := fmt.Sprintf("%s?lat=%s&lon=%s&units=imperial&appid=%s",
		f.BaseURL,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		url.QueryEscape(f.APIKey),
	)

	var resp forecastResponse
	if err := f.getJSON(ctx, "forecast", u, &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, &ParseError{Upstream: "forecast", Err: errors.New("no samples in list")}
	}

	payload := &ForecastPayload{
		City:    resp.City.Name,
		Samples: make([]Sample, 0, len(resp.List)),
	}
	for _, item := range resp.List {
		s := Sample{
			Time:      sampleTime(item.DtTxt, item.Dt),
			TimeText:  item.DtTxt,
			TempF:     item.Main.Temp,
			Humidity:  int(math.Round(item.Main.Humidity)),
			WindSpeed: item.Wind.Speed,
		}
		if len(item.Weather) > 0 {
			w := item.Weather[0]
			s.ConditionID = w.ID
			s.Condition = w.Main
			s.Description = w.Description
			s.Icon = w.Icon
		}
		payload.Samples = append(payload.Samples, s)
	}
	return payload, nil
}

func sampleTime(text string, unix int64) time.Time {
	if text != "" {
		if t, err := time.Parse(sampleTimeLayout, text); err == nil {
			return t
		}
	}
	if unix != 0 {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}
