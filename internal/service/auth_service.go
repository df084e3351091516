package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	// PasswordResetTTL is how long a mailed reset link stays valid
	PasswordResetTTL = 10 * time.Minute
	// EmailChangeTTL is how long a mailed email-change confirmation stays valid
	EmailChangeTTL = time.Hour

	// passwordChangeSkew backdates passwordChangedAt so the token issued right
	// after a change (iat is whole seconds) is not taken as stale
	passwordChangeSkew = time.Second
)

// AdminNotifier is the part of Notifier the auth workflows use
type AdminNotifier interface {
	Welcome(ctx context.Context, admin *domain.Admin)
	PasswordReset(ctx context.Context, admin *domain.Admin, link string, validFor time.Duration)
	PasswordChanged(ctx context.Context, admin *domain.Admin, at time.Time)
	ConfirmEmailChange(ctx context.Context, admin *domain.Admin, newEmail, link string, validFor time.Duration)
}

// ClientMeta identifies the device a session is opened from
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// AuthResult is a signed-in admin with a fresh token pair
type AuthResult struct {
	Admin  *domain.Admin
	Tokens *TokenPair
}

// AuthService handles admin accounts, sessions and password recovery
type AuthService struct {
	admins        domain.AdminRepository
	tokens        *TokenService
	notifier      AdminNotifier
	allowedEmails []string
	clientURL     string
	bcryptCost    int
	now           func() time.Time
}

// NewAuthService creates a new auth service. allowedEmails may sign up once the first admin exists.
func NewAuthService(
	admins domain.AdminRepository,
	tokens *TokenService,
	notifier AdminNotifier,
	allowedEmails []string,
	clientURL string,
) *AuthService {
	return &AuthService{
		admins:        admins,
		tokens:        tokens,
		notifier:      notifier,
		allowedEmails: allowedEmails,
		clientURL:     strings.TrimRight(clientURL, "/"),
		bcryptCost:    bcrypt.DefaultCost,
		now:           time.Now,
	}
}

// SignupInput is a new admin account
type SignupInput struct {
	FullName        string
	Email           string
	Password        string
	PasswordConfirm string
}

// Signup creates an admin. The very first account is always accepted; later ones
// only for allow-listed emails.
func (s *AuthService) Signup(ctx context.Context, in SignupInput, meta ClientMeta) (*AuthResult, error) {
	fullName := strings.TrimSpace(in.FullName)
	email, err := parseEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", domain.ErrInvalidInput)
	}
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	count, err := s.admins.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 && !slices.Contains(s.allowedEmails, email) {
		return nil, fmt.Errorf("%w: %s may not create an admin account", domain.ErrForbidden, email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &domain.Admin{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Avatar:       domain.DefaultAdminAvatar,
		Role:         domain.RoleAdmin,
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}
	log.Printf("[Auth] admin %s created", admin.Email)

	if s.notifier != nil {
		s.notifier.Welcome(ctx, admin)
	}
	return s.issue(ctx, admin, meta)
}

// Login checks email and password. Unknown emails and wrong passwords fail alike.
func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !admin.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", domain.ErrForbidden)
	}
	return s.issue(ctx, admin, meta)
}

// Logout revokes the session's refresh token, if any
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.RevokeRefreshToken(ctx, refreshToken)
}

// Refresh rotates a refresh token into a new token pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, domain.ErrTokenInvalid
	}
	admin, pair, err := s.tokens.RefreshAccessToken(ctx, refreshToken, meta.UserAgent, meta.IPAddress)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Admin: admin, Tokens: pair}, nil
}

// Authenticate resolves an access token to its admin. Tokens of disabled admins and
// tokens issued before the last password change are rejected.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.Admin, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByID(ctx, claims.AdminID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: admin no longer exists", domain.ErrTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	if !admin.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", domain.ErrForbidden)
	}
	if claims.IssuedAt == nil || admin.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: password changed, sign in again", domain.ErrTokenInvalid)
	}
	return admin, nil
}

// Me returns the signed-in admin
func (s *AuthService) Me(ctx context.Context, adminID string) (*domain.Admin, error) {
	return s.admins.GetByID(ctx, adminID)
}

// ForgotPassword mails a reset link. It reports success for unknown emails too.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	admin, err := s.admins.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[Auth] password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	raw, err := randomToken()
	if err != nil {
		return err
	}
	if err := s.admins.SetResetToken(ctx, admin.ID, hashToken(raw), s.now().Add(PasswordResetTTL)); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.PasswordReset(ctx, admin, s.clientURL+"/resetpassword/"+raw, PasswordResetTTL)
	}
	return nil
}

// ResetPassword sets a new password with a mailed reset token and signs the admin in
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string, meta ClientMeta) (*AuthResult, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}
	if err := checkNewPassword(password, confirm); err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByResetToken(ctx, hashToken(token), s.now())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	if err := s.changePassword(ctx, admin, password); err != nil {
		return nil, err
	}
	return s.issue(ctx, admin, meta)
}

// UpdatePasswordInput changes the password of a signed-in admin
type UpdatePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// UpdatePassword verifies the current password, replaces it and ends every other session
func (s *AuthService) UpdatePassword(ctx context.Context, adminID string, in UpdatePasswordInput, meta ClientMeta) (*AuthResult, error) {
	if in.CurrentPassword == "" {
		return nil, fmt.Errorf("%w: all password fields are required", domain.ErrInvalidInput)
	}
	if err := checkNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return nil, fmt.Errorf("%w: current password is incorrect", domain.ErrInvalidCredentials)
	}

	if err := s.changePassword(ctx, admin, in.NewPassword); err != nil {
		return nil, err
	}
	return s.issue(ctx, admin, meta)
}

func (s *AuthService) changePassword(ctx context.Context, admin *domain.Admin, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	changedAt := now.Add(-passwordChangeSkew)
	if err := s.admins.UpdatePassword(ctx, admin.ID, string(hash), changedAt); err != nil {
		return err
	}
	admin.PasswordHash = string(hash)
	admin.PasswordChangedAt = &changedAt

	if err := s.tokens.RevokeAllAdminTokens(ctx, admin.ID); err != nil {
		log.Printf("[Auth] failed to revoke sessions of %s: %v", admin.ID, err)
	}
	if s.notifier != nil {
		s.notifier.PasswordChanged(ctx, admin, now)
	}
	return nil
}

// UpdateProfileInput edits the signed-in admin. A new Email only takes effect once confirmed.
type UpdateProfileInput struct {
	FullName *string
	Avatar   *string
	Email    *string
}

// UpdateProfile saves name and avatar and starts an email change when the email differs.
// The returned bool reports whether a confirmation was sent.
func (s *AuthService) UpdateProfile(ctx context.Context, adminID string, in UpdateProfileInput) (*domain.Admin, bool, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, false, err
	}

	fullName, avatar := admin.FullName, admin.Avatar
	if in.FullName != nil && strings.TrimSpace(*in.FullName) != "" {
		fullName = strings.TrimSpace(*in.FullName)
	}
	if in.Avatar != nil && strings.TrimSpace(*in.Avatar) != "" {
		avatar = strings.TrimSpace(*in.Avatar)
	}
	if fullName != admin.FullName || avatar != admin.Avatar {
		if err := s.admins.UpdateProfile(ctx, admin.ID, fullName, avatar); err != nil {
			return nil, false, err
		}
		admin.FullName, admin.Avatar = fullName, avatar
	}

	if in.Email == nil {
		return admin, false, nil
	}
	email, err := parseEmail(*in.Email)
	if err != nil {
		return nil, false, err
	}
	if email == admin.Email {
		return admin, false, nil
	}
	if _, err := s.admins.GetByEmail(ctx, email); err == nil {
		return nil, false, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	raw, err := randomToken()
	if err != nil {
		return nil, false, err
	}
	if err := s.admins.SetEmailChange(ctx, admin.ID, email, hashToken(raw), s.now().Add(EmailChangeTTL)); err != nil {
		return nil, false, err
	}
	admin.PendingEmail = email

	if s.notifier != nil {
		s.notifier.ConfirmEmailChange(ctx, admin, email, s.clientURL+"/confirm_email/"+raw, EmailChangeTTL)
	}
	return admin, true, nil
}

// ConfirmEmail completes a pending email change
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*domain.Admin, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}
	admin, err := s.admins.ConfirmEmailChange(ctx, hashToken(token), s.now())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTokenInvalid
	}
	return admin, err
}

func (s *AuthService) issue(ctx context.Context, admin *domain.Admin, meta ClientMeta) (*AuthResult, error) {
	pair, err := s.tokens.GenerateTokenPair(ctx, admin, meta.UserAgent, meta.IPAddress)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Admin: admin, Tokens: pair}, nil
}

func parseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q is not a valid email", domain.ErrInvalidInput, raw)
	}
	return email, nil
}

func checkNewPassword(password, confirm string) error {
	if len(password) < domain.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, domain.MinPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", domain.ErrInvalidInput)
	}
	return nil
}
