package handler

import (
	"github.com/brothersgym/backoffice/internal/service"
	"github.com/gofiber/fiber/v2"
)

// PlanHandler serves the membership plan catalogue
type PlanHandler struct {
	plans *service.PlanService
}

func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

type planRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	DurationMonths int     `json:"duration_months"`
	IsActive       *bool   `json:"is_active"`
}

func (r planRequest) input() service.PlanInput {
	return service.PlanInput{
		Name:           r.Name,
		Description:    r.Description,
		Price:          r.Price,
		DurationMonths: r.DurationMonths,
		IsActive:       r.IsActive,
	}
}

// ListPlans handles GET /api/v1/plans
func (h *PlanHandler) ListPlans(c *fiber.Ctx) error {
	plans, err := h.plans.ListActive(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": plans})
}

// CreatePlan handles POST /api/v1/plans
func (h *PlanHandler) CreatePlan(c *fiber.Ctx) error {
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	plan, err := h.plans.Create(c.UserContext(), req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": plan})
}

// UpdatePlan handles PUT /api/v1/plans/:planId
func (h *PlanHandler) UpdatePlan(c *fiber.Ctx) error {
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	plan, err := h.plans.Update(c.UserContext(), c.Params("planId"), req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": plan})
}
