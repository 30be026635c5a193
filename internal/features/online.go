package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/registry"
)

// ErrNoLatest is returned when the online store has no observation for a
// station yet.
var ErrNoLatest = errors.New("features: no latest observation")

const (
	latestKeyPrefix   = "aqicast:latest:"
	deploymentChannel = "aqicast:deployments"
)

// OnlineStore is the Redis-backed serving-side feature cache: the freshest
// observation per station, plus a pub/sub channel carrying promotion events
// so serving replicas know to reload their active models.
type OnlineStore struct {
	client *redis.Client
}

// NewOnlineStore wraps an existing Redis client.
func NewOnlineStore(client *redis.Client) *OnlineStore {
	return &OnlineStore{client: client}
}

// SetLatest caches the newest observation for the row's station.
func (s *OnlineStore) SetLatest(ctx context.Context, row dataset.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode observation: %w", err)
	}
	if err := s.client.Set(ctx, latestKeyPrefix+row.Station, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache observation: %w", err)
	}
	return nil
}

// GetLatest returns the freshest cached observation for a station.
func (s *OnlineStore) GetLatest(ctx context.Context, station string) (dataset.Row, error) {
	data, err := s.client.Get(ctx, latestKeyPrefix+station).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dataset.Row{}, ErrNoLatest
		}
		return dataset.Row{}, fmt.Errorf("failed to read online store: %w", err)
	}

	var row dataset.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return dataset.Row{}, fmt.Errorf("failed to decode cached observation: %w", err)
	}
	return row, nil
}

// PublishPromotion broadcasts a deployment record to serving-side listeners.
// Implements the promotion gate's EventPublisher.
func (s *OnlineStore) PublishPromotion(ctx context.Context, rec registry.DeploymentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode deployment event: %w", err)
	}
	if err := s.client.Publish(ctx, deploymentChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish deployment event: %w", err)
	}
	return nil
}
