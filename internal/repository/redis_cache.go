package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scanBatch is the SCAN COUNT hint and the size of each UNLINK batch
const scanBatch = 100

// RedisCacheRepository implements domain.PatternCache with JSON values in Redis
type RedisCacheRepository struct {
	client redis.UniversalClient
	tracer trace.Tracer
}

// NewRedisCacheRepository creates a new Redis cache repository
func NewRedisCacheRepository(client redis.UniversalClient) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
		tracer: otel.Tracer("backoffice-cache"),
	}
}

func (r *RedisCacheRepository) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("db.system", "redis"))...),
	)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get decodes the cached value of key into dest, or returns domain.ErrCacheMiss
func (r *RedisCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	ctx, span := r.span(ctx, "get", attribute.String("cache.key", key))
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return domain.ErrCacheMiss
	}
	if err != nil {
		return fail(span, fmt.Errorf("redis get %s: %w", key, err))
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	if err := json.Unmarshal(data, dest); err != nil {
		// a payload of an older shape is as good as absent
		_ = fail(span, err)
		return domain.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON under key for ttl
func (r *RedisCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := r.span(ctx, "set",
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_seconds", int64(ttl.Seconds())),
	)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		return fail(span, fmt.Errorf("marshal %s: %w", key, err))
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fail(span, fmt.Errorf("redis set %s: %w", key, err))
	}
	return nil
}

// DeleteByPattern unlinks every key matching the glob, one SCAN page at a time
func (r *RedisCacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	ctx, span := r.span(ctx, "delete_pattern", attribute.String("cache.pattern", pattern))
	defer span.End()

	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fail(span, fmt.Errorf("redis scan %s: %w", pattern, err))
		}
		if len(keys) > 0 {
			n, err := r.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return fail(span, fmt.Errorf("redis unlink: %w", err))
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	span.SetAttributes(attribute.Int64("cache.removed_keys", removed))
	return nil
}
