package handler

import (
	"io"
	"strings"

	"github.com/brothersgym/backoffice/internal/service"
	"github.com/gofiber/fiber/v2"
)

// MemberHandler serves the member endpoints of the back office
type MemberHandler struct {
	members   *service.MemberService
	dashboard *service.DashboardService
}

// NewMemberHandler creates a new MemberHandler
func NewMemberHandler(members *service.MemberService, dashboard *service.DashboardService) *MemberHandler {
	return &MemberHandler{
		members:   members,
		dashboard: dashboard,
	}
}

type createMemberRequest struct {
	FullName       string   `json:"full_name"`
	Phone          string   `json:"phone"`
	Gender         string   `json:"gender"`
	Avatar         string   `json:"avatar"`
	DurationMonths int      `json:"duration_months"`
	Amount         *float64 `json:"amount"`
	Method         string   `json:"method"`
	PlanID         string   `json:"plan_id"`
}

// CreateMember handles POST /api/v1/members
func (h *MemberHandler) CreateMember(c *fiber.Ctx) error {
	var req createMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	member, err := h.members.Create(c.UserContext(), service.CreateMemberInput{
		FullName:       req.FullName,
		Phone:          req.Phone,
		Gender:         req.Gender,
		Avatar:         req.Avatar,
		DurationMonths: req.DurationMonths,
		Amount:         req.Amount,
		Method:         req.Method,
		PlanID:         req.PlanID,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Member created successfully",
		"data":    member,
	})
}

// ListMembers handles GET /api/v1/members?q=&status=&range=&page=
func (h *MemberHandler) ListMembers(c *fiber.Ctx) error {
	search := c.Query("q")
	if search == "" {
		search = c.Query("search")
	}

	page, err := h.members.List(c.UserContext(), service.ListMembersInput{
		Search:    search,
		Status:    c.Query("status"),
		RangeDays: c.QueryInt("range", 0),
		Page:      c.QueryInt("page", 1),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"total":   page.TotalPages,
		"page":    page.Page,
		"matches": page.Matches,
		"data":    page.Members,
	})
}

// GetMember handles GET /api/v1/members/:memberId
func (h *MemberHandler) GetMember(c *fiber.Ctx) error {
	member, err := h.members.Get(c.UserContext(), c.Params("memberId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": member})
}

type updateMemberRequest struct {
	FullName       *string  `json:"full_name"`
	Phone          *string  `json:"phone"`
	Gender         *string  `json:"gender"`
	Avatar         *string  `json:"avatar"`
	DurationMonths *int     `json:"duration_months"`
	Amount         *float64 `json:"amount"`
	Method         *string  `json:"method"`
}

// UpdateMember handles PATCH /api/v1/members/:memberId
func (h *MemberHandler) UpdateMember(c *fiber.Ctx) error {
	var req updateMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	member, err := h.members.Update(c.UserContext(), c.Params("memberId"), service.UpdateMemberInput{
		FullName:       req.FullName,
		Phone:          req.Phone,
		Gender:         req.Gender,
		Avatar:         req.Avatar,
		DurationMonths: req.DurationMonths,
		Amount:         req.Amount,
		Method:         req.Method,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Member updated successfully",
		"data":    member,
	})
}

type renewRequest struct {
	Months int      `json:"months"`
	Amount *float64 `json:"amount"`
	Method string   `json:"method"`
	PlanID string   `json:"plan_id"`
}

// RenewMembership handles POST /api/v1/members/:memberId/renew
func (h *MemberHandler) RenewMembership(c *fiber.Ctx) error {
	var req renewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.members.Renew(c.UserContext(), c.Params("memberId"), service.RenewInput{
		Months: req.Months,
		Amount: req.Amount,
		Method: req.Method,
		PlanID: req.PlanID,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Membership renewed",
		"data":    result.Member,
		"renewal": result.Notice,
	})
}

// DeleteMember handles DELETE /api/v1/members/:memberId
func (h *MemberHandler) DeleteMember(c *fiber.Ctx) error {
	if err := h.members.Delete(c.UserContext(), c.Params("memberId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadAvatar handles POST /api/v1/members/:memberId/avatar (multipart field "avatar")
func (h *MemberHandler) UploadAvatar(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return badRequest(c, "Missing avatar file")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return badRequest(c, "Only image uploads are allowed")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return respondError(c, err)
	}

	member, err := h.members.UploadAvatar(c.UserContext(), c.Params("memberId"), data, contentType)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": member})
}

// GetStats handles GET /api/v1/members/stats?range=
func (h *MemberHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.dashboard.GetStats(c.UserContext(), c.QueryInt("range", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": stats})
}

// VerifyMember handles GET /api/v1/verify/:code. It is public and always answers 200.
func (h *MemberHandler) VerifyMember(c *fiber.Ctx) error {
	result, err := h.members.Verify(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
