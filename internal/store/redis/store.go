// Package redis publishes the latest cluster views of every endpoint to Redis.
// Only the current state is kept: entries expire after their TTL and clusters
// dropped from the live model are deleted.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

// DefaultClusterTTL bounds how long a cluster view survives without a refresh.
const DefaultClusterTTL = 10 * time.Minute

type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStore creates a store. ttl <= 0 uses DefaultClusterTTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultClusterTTL
	}
	return &Store{client: client, ttl: ttl}
}

// SaveClusters writes every cluster of endpoint in one pipeline.
func (s *Store) SaveClusters(ctx context.Context, endpoint string, clusters []domain.ClusterView) error {
	if len(clusters) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	names := make([]interface{}, 0, len(clusters))
	for _, c := range clusters {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal cluster %s: %w", c.Name, err)
		}
		pipe.Set(ctx, ClusterKey(endpoint, c.Name), data, s.ttl)
		names = append(names, c.Name)
	}
	pipe.SAdd(ctx, ClusterSetKey(endpoint), names...)
	pipe.Expire(ctx, ClusterSetKey(endpoint), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save clusters: %w", err)
	}
	return nil
}

// DeleteClusters removes clusters of endpoint.
func (s *Store) DeleteClusters(ctx context.Context, endpoint string, names ...string) error {
	if len(names) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	members := make([]interface{}, 0, len(names))
	for _, n := range names {
		pipe.Del(ctx, ClusterKey(endpoint, n))
		members = append(members, n)
	}
	pipe.SRem(ctx, ClusterSetKey(endpoint), members...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete clusters: %w", err)
	}
	return nil
}

// Publish mirrors one poll: current clusters are saved, collected ones deleted.
func (s *Store) Publish(ctx context.Context, endpoint string, view domain.View, res reconcile.Result) error {
	if err := s.DeleteClusters(ctx, endpoint, res.RemovedClusters...); err != nil {
		return err
	}
	return s.SaveClusters(ctx, endpoint, view.Clusters)
}

// GetCluster reads one published cluster.
func (s *Store) GetCluster(ctx context.Context, endpoint, name string) (*domain.ClusterView, error) {
	data, err := s.client.Get(ctx, ClusterKey(endpoint, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.NotFoundError{Kind: "cluster", Name: name}
		}
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}

	var c domain.ClusterView
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cluster: %w", err)
	}
	return &c, nil
}

// GetClusters reads every published cluster of endpoint, sorted by name.
// Expired entries still listed in the set are skipped.
func (s *Store) GetClusters(ctx context.Context, endpoint string) ([]domain.ClusterView, error) {
	names, err := s.client.SMembers(ctx, ClusterSetKey(endpoint)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	sort.Strings(names)

	clusters := make([]domain.ClusterView, 0, len(names))
	for _, n := range names {
		c, err := s.GetCluster(ctx, endpoint, n)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	return clusters, nil
}
