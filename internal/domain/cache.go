package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by CacheRepository.Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository defines the interface for caching operations.
// Values are stored as JSON.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PatternCache is a CacheRepository that can also drop every key matching a glob
type PatternCache interface {
	CacheRepository
	DeleteByPattern(ctx context.Context, pattern string) error
}

const dashboardStatsKeyPrefix = "dashboard:stats:"

// DashboardStatsTTL bounds how stale cached dashboard figures may get
const DashboardStatsTTL = 5 * time.Minute

// DashboardStatsPattern matches every cached dashboard range
const DashboardStatsPattern = dashboardStatsKeyPrefix + "*"

// DashboardStatsKey is the cache key of the dashboard figures for a created-within range in days.
// Range 0 means all time.
func DashboardStatsKey(rangeDays int) string {
	return fmt.Sprintf("%s%d", dashboardStatsKeyPrefix, rangeDays)
}
