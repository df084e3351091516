package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/infrastructure/email"
	"github.com/brothersgym/backoffice/internal/infrastructure/store"
	"github.com/brothersgym/backoffice/internal/repository"
	"github.com/brothersgym/backoffice/internal/server"
	"github.com/brothersgym/backoffice/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Printf("Starting Brothers Gym back office (%s calendar, %s)...", cfg.Membership.Calendar, cfg.Membership.Timezone)

	otelProvider, err := telemetry.Initialize(ctx, cfg.OTEL)
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down OpenTelemetry: %v", err)
		}
	}()

	mongoStore, err := store.ConnectMongo(ctx, cfg.MongoDB, otelProvider != nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	log.Printf("✓ MongoDB connected (%s)", cfg.MongoDB.Database)

	if err := repository.NewMongoPlanRepository(mongoStore.DB).SeedDefaultPlans(ctx); err != nil {
		log.Printf("Warning: Failed to seed default plans: %v", err)
	}

	redisClient, err := store.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// Avatar storage is optional; uploads fail without it
	var avatars domain.AvatarStore
	if s3Store, err := repository.NewS3AvatarStore(ctx, cfg.S3); err != nil {
		log.Printf("Warning: Failed to initialize avatar storage: %v", err)
	} else {
		avatars = s3Store
		log.Printf("✓ Avatar storage ready (bucket %s)", cfg.S3.Bucket)
	}

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return fmt.Errorf("configure email: %w", err)
	}
	log.Printf("✓ Email provider: %s", cfg.Email.Provider)

	app, err := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     mongoStore.DB,
		RedisClient: redisClient,
		EmailSender: sender,
		Avatars:     avatars,
	})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
