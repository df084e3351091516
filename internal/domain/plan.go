package domain

import (
	"context"
	"time"
)

// Plan is a preset membership offering the front desk can pick when renewing
type Plan struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	Name           string    `bson:"name" json:"name"`
	Description    string    `bson:"description,omitempty" json:"description"`
	Price          float64   `bson:"price" json:"price"`
	DurationMonths int       `bson:"duration_months" json:"duration_months"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// PlanRepository defines operations for managing plans
type PlanRepository interface {
	Create(ctx context.Context, plan *Plan) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	GetActivePlans(ctx context.Context) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
}
