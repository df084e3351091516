package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPlanRepository implements domain.PlanRepository
type MongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a new plan repository
func NewMongoPlanRepository(db *mongo.Database) *MongoPlanRepository {
	coll := db.Collection("plans")
	return &MongoPlanRepository{
		collection: coll,
	}
}

func (r *MongoPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	doc := bson.M{
		"_id":             plan.ID, // readable string ID, e.g. "plan_monthly_1"
		"name":            plan.Name,
		"description":     plan.Description,
		"price":           plan.Price,
		"duration_months": plan.DurationMonths,
		"is_active":       plan.IsActive,
		"created_at":      plan.CreatedAt,
		"updated_at":      plan.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("plan %s: %w", plan.ID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *MongoPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return mapBsonToPlan(raw), nil
}

func (r *MongoPlanRepository) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "duration_months", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer cursor.Close(ctx)

	plans := []*domain.Plan{}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		plans = append(plans, mapBsonToPlan(raw))
	}
	return plans, nil
}

func (r *MongoPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	plan.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":            plan.Name,
			"description":     plan.Description,
			"price":           plan.Price,
			"duration_months": plan.DurationMonths,
			"is_active":       plan.IsActive,
			"updated_at":      plan.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": plan.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SeedDefaultPlans creates the standard front-desk plans that don't exist yet.
// Idempotency: checks by _id (not by name) to prevent duplicates
func (r *MongoPlanRepository) SeedDefaultPlans(ctx context.Context) error {
	defaults := []domain.Plan{
		{ID: "plan_monthly_1", Name: "Monthly", DurationMonths: 1, Price: 1500},
		{ID: "plan_quarterly_3", Name: "Quarterly", DurationMonths: 3, Price: 4000},
		{ID: "plan_half_year_6", Name: "Half year", DurationMonths: 6, Price: 7500},
		{ID: "plan_annual_12", Name: "Annual", DurationMonths: 12, Price: 14000},
	}

	for i := range defaults {
		plan := defaults[i]
		plan.IsActive = true

		_, err := r.GetByID(ctx, plan.ID)
		if err == nil {
			log.Printf("[Seed] Plan %s already exists, skipping", plan.ID)
			continue
		}
		if err != domain.ErrNotFound {
			return fmt.Errorf("failed to check plan existence: %w", err)
		}

		if err := r.Create(ctx, &plan); err != nil {
			return fmt.Errorf("failed to seed plan: %w", err)
		}
		log.Printf("[Seed] Created plan: %s (%s) - Price: %.2f, Duration: %d months",
			plan.ID, plan.Name, plan.Price, plan.DurationMonths)
	}

	return nil
}

func mapBsonToPlan(raw bson.M) *domain.Plan {
	plan := &domain.Plan{}

	if id, ok := raw["_id"].(string); ok {
		plan.ID = id
	}
	if name, ok := raw["name"].(string); ok {
		plan.Name = name
	}
	if desc, ok := raw["description"].(string); ok {
		plan.Description = desc
	}
	switch price := raw["price"].(type) {
	case float64:
		plan.Price = price
	case int64:
		plan.Price = float64(price)
	case int32:
		plan.Price = float64(price)
	}
	if duration, ok := raw["duration_months"].(int32); ok {
		plan.DurationMonths = int(duration)
	} else if duration, ok := raw["duration_months"].(int64); ok {
		plan.DurationMonths = int(duration)
	}
	if isActive, ok := raw["is_active"].(bool); ok {
		plan.IsActive = isActive
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		plan.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		plan.UpdatedAt = updated.Time()
	}

	return plan
}
