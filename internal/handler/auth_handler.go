package handler

import (
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/middleware"
	"github.com/brothersgym/backoffice/internal/service"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles admin authentication and profile endpoints
type AuthHandler struct {
	authService *service.AuthService
	jwtConfig   config.JWTConfig
	secure      bool
}

// NewAuthHandler creates a new auth handler. secure marks cookies Secure and SameSite=None.
func NewAuthHandler(authService *service.AuthService, jwtConfig config.JWTConfig, secure bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtConfig:   jwtConfig,
		secure:      secure,
	}
}

func clientMeta(c *fiber.Ctx) service.ClientMeta {
	return service.ClientMeta{UserAgent: c.Get("User-Agent"), IPAddress: c.IP()}
}

func (h *AuthHandler) cookie(name, value string, expires time.Time) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if h.secure {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: sameSite,
		Path:     "/",
	}
}

// sendSession sets both session cookies and answers with the admin
func (h *AuthHandler) sendSession(c *fiber.Ctx, status int, message string, result *service.AuthResult) error {
	now := time.Now()
	c.Cookie(h.cookie(middleware.AccessTokenCookie, result.Tokens.AccessToken, now.Add(h.jwtConfig.AccessTokenExpiry)))
	c.Cookie(h.cookie(middleware.RefreshTokenCookie, result.Tokens.RefreshToken, now.Add(h.jwtConfig.RefreshTokenExpiry)))

	return c.Status(status).JSON(fiber.Map{
		"message":    message,
		"token":      result.Tokens.AccessToken,
		"expires_in": result.Tokens.ExpiresIn,
		"data":       result.Admin,
	})
}

func (h *AuthHandler) clearSession(c *fiber.Ctx) {
	expired := time.Unix(0, 0)
	c.Cookie(h.cookie(middleware.AccessTokenCookie, "", expired))
	c.Cookie(h.cookie(middleware.RefreshTokenCookie, "", expired))
}

type signupRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Signup handles POST /api/v1/admins/signup
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.authService.Signup(c.UserContext(), service.SignupInput{
		FullName:        req.FullName,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	}, clientMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, fiber.StatusCreated, "Account created successfully!", result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/admins/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.authService.Login(c.UserContext(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, fiber.StatusOK, "Logged in successfully!", result)
}

// Logout handles POST /api/v1/admins/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.authService.Logout(c.UserContext(), c.Cookies(middleware.RefreshTokenCookie)); err != nil {
		return respondError(c, err)
	}
	h.clearSession(c)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Refresh handles POST /api/v1/admins/refresh. The refresh token comes from its cookie
// or the refresh_token body field.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(middleware.RefreshTokenCookie)
	if refreshToken == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = c.BodyParser(&body)
		refreshToken = body.RefreshToken
	}

	result, err := h.authService.Refresh(c.UserContext(), refreshToken, clientMeta(c))
	if err != nil {
		h.clearSession(c)
		return respondError(c, err)
	}
	return h.sendSession(c, fiber.StatusOK, "Session refreshed", result)
}

// Me handles GET /api/v1/admins/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": middleware.CurrentAdmin(c)})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /api/v1/admins/forgot-password
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return badRequest(c, "Email is required")
	}

	if err := h.authService.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "If the account exists, a reset link has been sent to its email."})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// ResetPassword handles PATCH /api/v1/admins/reset-password/:token
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.authService.ResetPassword(c.UserContext(), c.Params("token"), req.Password, req.PasswordConfirm, clientMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, fiber.StatusOK, "Password reset successfully", result)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdatePassword handles PATCH /api/v1/admins/update-password
func (h *AuthHandler) UpdatePassword(c *fiber.Ctx) error {
	var req updatePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	adminID, _ := c.Locals(middleware.AdminIDKey).(string)
	result, err := h.authService.UpdatePassword(c.UserContext(), adminID, service.UpdatePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}, clientMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, fiber.StatusOK, "Password updated successfully", result)
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Avatar   *string `json:"avatar"`
	Email    *string `json:"email"`
}

// UpdateProfile handles PATCH /api/v1/admins/update-profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	adminID, _ := c.Locals(middleware.AdminIDKey).(string)
	admin, confirmationSent, err := h.authService.UpdateProfile(c.UserContext(), adminID, service.UpdateProfileInput{
		FullName: req.FullName,
		Avatar:   req.Avatar,
		Email:    req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}

	message := "Profile updated successfully"
	if confirmationSent {
		message = "A confirmation email has been sent to your new address. Confirm it to complete the change."
	}
	return c.JSON(fiber.Map{"message": message, "data": admin})
}

// ConfirmEmail handles GET /api/v1/admins/confirm-email/:token
func (h *AuthHandler) ConfirmEmail(c *fiber.Ctx) error {
	admin, err := h.authService.ConfirmEmail(c.UserContext(), c.Params("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Email successfully updated!", "data": admin})
}
