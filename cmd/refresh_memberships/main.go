package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/infrastructure/store"
	"github.com/brothersgym/backoffice/internal/repository"
	"github.com/brothersgym/backoffice/internal/service"
)

// refresh_memberships re-derives the stored duration and status of every member
// from their start and end dates, fixing records that drifted since they were written.
func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be done without making changes")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cal, err := cfg.Membership.Converter()
	if err != nil {
		log.Fatalf("Invalid membership calendar: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	mongoStore, err := store.ConnectMongo(ctx, cfg.MongoDB, false)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer mongoStore.Close(context.Background())

	// The dashboard cache is dropped after corrections when Redis is reachable
	var cache domain.PatternCache
	if redisClient, err := store.ConnectRedis(ctx, cfg.Redis); err != nil {
		log.Printf("Warning: dashboard cache will expire on its own: %v", err)
	} else {
		defer redisClient.Close()
		cache = repository.NewRedisCacheRepository(redisClient)
	}

	members := service.NewMemberService(
		repository.NewMongoMemberRepository(mongoStore.DB),
		nil,
		domain.NewMembershipEngine(cal),
		nil,
		cache,
		nil,
		nil,
	)

	fmt.Printf("🔍 Refreshing memberships (%s calendar)\n\n", cfg.Membership.Calendar)

	report, err := members.RefreshAll(ctx, *dryRun, func(before, after *domain.Member) {
		fmt.Printf("📋 %s %s\n", before.MemberCode, before.FullName)
		if before.Membership != nil && after.Membership != nil {
			fmt.Printf("   duration %d → %d, status %s → %s\n",
				before.Membership.DurationMonths, after.Membership.DurationMonths,
				before.Membership.Status, after.Membership.Status)
		}
		if before.IsActive != after.IsActive {
			fmt.Printf("   active %t → %t\n", before.IsActive, after.IsActive)
		}
	})
	if err != nil {
		log.Fatalf("Refresh failed after %d members: %v", report.Scanned, err)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✅ Summary:\n")
	fmt.Printf("   Members scanned: %d\n", report.Scanned)
	fmt.Printf("   Drifted: %d\n", report.Drifted)
	fmt.Printf("   Corrected: %d\n", report.Corrected)
	fmt.Printf("   Skipped: %d\n", report.Skipped)

	if *dryRun {
		fmt.Println("\n⚠️  This was a dry run. No changes were made.")
		fmt.Println("   Run without -dry-run to apply changes.")
	}
}
