package deps

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/index"
	"github.com/MrSnakeDoc/balmgr/internal/logger"
	"github.com/MrSnakeDoc/balmgr/internal/scheduler"
)

// SnapshotReader reads cluster views published by an earlier run.
// *redisstore.Store satisfies it.
type SnapshotReader interface {
	GetCluster(ctx context.Context, endpoint, name string) (*domain.ClusterView, error)
	GetClusters(ctx context.Context, endpoint string) ([]domain.ClusterView, error)
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time    // for testing, defaults to time.Now
	AllowedCIDRS []string            // IPs allowed to call mutating and infra endpoints
	TrustProxy   bool                // true if running behind a trusted reverse proxy
	Fleet        *scheduler.Fleet    // one poller per balancer-manager endpoint
	Gatherer     prometheus.Gatherer // served on /metrics, nil => default registry
	RedisClient  *redis.Client       // nil when publishing is disabled
	Index        *index.MemoryIndex  // change journal, nil disables /changes
	Snapshots    SnapshotReader      // served until an endpoint's first poll, nil when Redis is off
}
