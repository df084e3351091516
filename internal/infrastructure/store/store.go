// Package store opens the MongoDB and Redis connections shared by the server and the jobs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const connectTimeout = 10 * time.Second

// Mongo is a connected client and the configured database
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Close disconnects the client
func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// ConnectMongo connects and pings MongoDB. Commands are traced when traced is set.
func ConnectMongo(ctx context.Context, cfg config.MongoDBConfig, traced bool) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI).SetAppName("brothers-gym-backoffice")
	if traced {
		opts.SetMonitor(otelmongo.NewMonitor())
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return &Mongo{Client: client, DB: client.Database(cfg.Database)}, nil
}

// ConnectRedis returns a client that answered PING. The client is closed on failure.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
