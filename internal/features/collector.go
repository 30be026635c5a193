package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/airwatch/aqicast/internal/dataset"
)

var (
	errFeedStatus   = errors.New("feed returned non-ok status")
	errServerError  = errors.New("feed server error")
	errRateLimited  = errors.New("feed rate limited")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("feed circuit breaker open")
	errMissingIndex = errors.New("feed observation has no index value")
)

// CollectorConfig bundles feed endpoint and resilience settings.
type CollectorConfig struct {
	BaseURL  string
	Token    string
	Station  string
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	RateRPS  float64
}

// Collector polls the pollution feed for the latest observation and fans it
// out to the durable feature table and the online store. Feed calls run
// behind a circuit breaker with exponential backoff and a client-side rate
// limit so a flapping upstream cannot take the collector down with it.
type Collector struct {
	cfg     CollectorConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	writer  RowWriter
	online  *OnlineStore
}

// NewCollector creates a collector. online may be nil when no Redis is
// configured.
func NewCollector(cfg CollectorConfig, writer RowWriter, online *OnlineStore) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 1
	}
	return &Collector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "pollution-feed",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), 1),
		writer:  writer,
		online:  online,
	}
}

// feedResponse mirrors the relevant parts of the feed's JSON payload.
type feedResponse struct {
	Status string `json:"status"`
	Data   struct {
		AQI  float64 `json:"aqi"`
		IAQI struct {
			Temp     feedValue `json:"t"`
			Humidity feedValue `json:"h"`
			Pressure feedValue `json:"p"`
			Wind     feedValue `json:"w"`
			Dew      feedValue `json:"dew"`
			PM25     feedValue `json:"pm25"`
		} `json:"iaqi"`
		Time struct {
			ISO string `json:"iso"`
		} `json:"time"`
	} `json:"data"`
}

type feedValue struct {
	V float64 `json:"v"`
}

// Collect fetches the latest observation, truncates it to the hour, and
// stores it durably and (when configured) in the online cache.
func (c *Collector) Collect(ctx context.Context) error {
	row, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	if err := c.writer.InsertRow(ctx, row); err != nil {
		return fmt.Errorf("failed to store observation: %w", err)
	}
	if c.online != nil {
		if err := c.online.SetLatest(ctx, row); err != nil {
			// Serving falls back to slightly stale features; collection succeeded.
			log.Warn().Err(err).Str("station", row.Station).Msg("failed to refresh online store")
		}
	}

	log.Info().
		Str("station", row.Station).
		Time("ts", row.Timestamp).
		Float64("aqi", row.AQI).
		Msg("observation collected")
	return nil
}

func (c *Collector) fetch(ctx context.Context) (dataset.Row, error) {
	url := fmt.Sprintf("%s/feed/%s/?token=%s", c.cfg.BaseURL, c.cfg.Station, c.cfg.Token)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return dataset.Row{}, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, url)
		})
		if err == nil {
			return c.parse(result.(*feedResponse))
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return dataset.Row{}, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= c.cfg.Retries {
			return dataset.Row{}, lastErr
		}

		delay := c.cfg.Backoff * time.Duration(math.Pow(2, float64(attempt)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return dataset.Row{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Collector) doRequest(ctx context.Context, url string) (*feedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		return nil, errServerError
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
	}

	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode feed payload: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("%w: %s", errFeedStatus, payload.Status)
	}
	return &payload, nil
}

func (c *Collector) parse(payload *feedResponse) (dataset.Row, error) {
	if payload.Data.AQI == 0 && payload.Data.Time.ISO == "" {
		return dataset.Row{}, errMissingIndex
	}

	ts := time.Now().UTC()
	if payload.Data.Time.ISO != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Data.Time.ISO); err == nil {
			ts = parsed.UTC()
		}
	}

	return dataset.Row{
		Timestamp: ts.Truncate(time.Hour),
		Station:   c.cfg.Station,
		Temp:      payload.Data.IAQI.Temp.V,
		Humidity:  payload.Data.IAQI.Humidity.V,
		Pressure:  payload.Data.IAQI.Pressure.V,
		WindSpeed: payload.Data.IAQI.Wind.V,
		Dew:       payload.Data.IAQI.Dew.V,
		PM25:      payload.Data.IAQI.PM25.V,
		AQI:       payload.Data.AQI,
	}, nil
}
