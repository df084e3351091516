package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/infrastructure/store"
	"github.com/brothersgym/backoffice/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// seed/admin creates a back-office admin directly in the database, for bootstrapping
// a deployment where signup is closed, and seeds the default plans.
func main() {
	email := flag.String("email", "", "Admin email (required)")
	name := flag.String("name", "Gym Admin", "Admin full name")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"),
		fmt.Sprintf("Admin password, at least %d characters (or SEED_ADMIN_PASSWORD)", domain.MinPasswordLength))
	flag.Parse()

	address := strings.ToLower(strings.TrimSpace(*email))
	if address == "" || len(*password) < domain.MinPasswordLength {
		fmt.Println("Usage: seed/admin -email <EMAIL> -password <PASSWORD> [-name <NAME>]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoStore, err := store.ConnectMongo(ctx, cfg.MongoDB, false)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer mongoStore.Close(context.Background())
	db := mongoStore.DB

	if err := repository.NewMongoPlanRepository(db).SeedDefaultPlans(ctx); err != nil {
		log.Fatalf("Failed to seed plans: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	now := time.Now()
	admin := &domain.Admin{
		FullName:     strings.TrimSpace(*name),
		Email:        address,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = repository.NewMongoAdminRepository(db).Create(ctx, admin)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		log.Printf("[Seed] Admin %s already exists, skipped", address)
		return
	}
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	log.Printf("[Seed] Created admin %s (%s)", admin.Email, admin.ID)
}
