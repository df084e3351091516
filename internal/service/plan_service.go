package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/oklog/ulid/v2"
)

// PlanService manages the preset plans offered at the front desk
type PlanService struct {
	repo domain.PlanRepository
}

func NewPlanService(repo domain.PlanRepository) *PlanService {
	return &PlanService{repo: repo}
}

// PlanInput creates or replaces a plan
type PlanInput struct {
	Name           string
	Description    string
	Price          float64
	DurationMonths int
	IsActive       *bool
}

func (in PlanInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: plan name is required", domain.ErrInvalidInput)
	}
	if in.DurationMonths <= 0 {
		return fmt.Errorf("%w: duration must be a positive number of months", domain.ErrInvalidInput)
	}
	if in.Price < 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return fmt.Errorf("%w: price must be a non-negative number", domain.ErrInvalidInput)
	}
	return nil
}

// ListActive returns the plans currently on offer, shortest first
func (s *PlanService) ListActive(ctx context.Context) ([]*domain.Plan, error) {
	return s.repo.GetActivePlans(ctx)
}

func (s *PlanService) Get(ctx context.Context, id string) (*domain.Plan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PlanService) Create(ctx context.Context, in PlanInput) (*domain.Plan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plan := &domain.Plan{
		ID:             "plan_" + strings.ToLower(ulid.Make().String()),
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Price:          in.Price,
		DurationMonths: in.DurationMonths,
		IsActive:       in.IsActive == nil || *in.IsActive,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Update replaces the plan's fields. Retiring a plan (IsActive false) keeps past renewals intact.
func (s *PlanService) Update(ctx context.Context, id string, in PlanInput) (*domain.Plan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Name = strings.TrimSpace(in.Name)
	plan.Description = strings.TrimSpace(in.Description)
	plan.Price = in.Price
	plan.DurationMonths = in.DurationMonths
	if in.IsActive != nil {
		plan.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
