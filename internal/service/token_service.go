package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService handles JWT access/refresh token generation and validation
type TokenService struct {
	jwtConfig        config.JWTConfig
	refreshTokenRepo domain.RefreshTokenRepository
	adminRepo        domain.AdminRepository
	now              func() time.Time
}

// NewTokenService creates a new token service
func NewTokenService(
	jwtConfig config.JWTConfig,
	refreshTokenRepo domain.RefreshTokenRepository,
	adminRepo domain.AdminRepository,
) *TokenService {
	return &TokenService{
		jwtConfig:        jwtConfig,
		refreshTokenRepo: refreshTokenRepo,
		adminRepo:        adminRepo,
		now:              time.Now,
	}
}

// TokenPair contains both access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // Seconds until access token expires
}

// GenerateTokenPair creates both access and refresh tokens for an admin
func (s *TokenService) GenerateTokenPair(ctx context.Context, admin *domain.Admin, userAgent, ipAddress string) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(admin)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateAndStoreRefreshToken(ctx, admin.ID, userAgent, ipAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtConfig.AccessTokenExpiry.Seconds()),
	}, nil
}

// RefreshAccessToken trades a refresh token for a new pair, spending the presented one.
// Presenting a token that was already rotated ends every session of its admin.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken, userAgent, ipAddress string) (*domain.Admin, *TokenPair, error) {
	now := s.now()
	tokenHash := hashToken(refreshToken)

	stored, err := s.refreshTokenRepo.FindByHash(ctx, tokenHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("unknown refresh token: %w", domain.ErrTokenInvalid)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	if stored.Rotated() {
		s.revokeOnReuse(ctx, stored.AdminID, now)
		return nil, nil, fmt.Errorf("refresh token reused: %w", domain.ErrTokenInvalid)
	}
	if !stored.Usable(now) {
		return nil, nil, fmt.Errorf("refresh token expired or revoked: %w", domain.ErrTokenInvalid)
	}

	admin, err := s.adminRepo.GetByID(ctx, stored.AdminID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get admin: %w", err)
	}
	if !admin.IsActive {
		return nil, nil, domain.ErrForbidden
	}

	rawToken, next, err := s.newRefreshToken(admin.ID, userAgent, ipAddress)
	if err != nil {
		return nil, nil, err
	}
	if err := s.refreshTokenRepo.Rotate(ctx, tokenHash, next, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// lost the race against another refresh of the same token
			s.revokeOnReuse(ctx, stored.AdminID, now)
			return nil, nil, fmt.Errorf("refresh token reused: %w", domain.ErrTokenInvalid)
		}
		return nil, nil, err
	}

	accessToken, err := s.generateAccessToken(admin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return admin, &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawToken,
		ExpiresIn:    int64(s.jwtConfig.AccessTokenExpiry.Seconds()),
	}, nil
}

func (s *TokenService) revokeOnReuse(ctx context.Context, adminID string, now time.Time) {
	n, err := s.refreshTokenRepo.RevokeAllForAdmin(ctx, adminID, now)
	if err != nil {
		log.Printf("[Auth] failed to revoke sessions of %s after token reuse: %v", adminID, err)
		return
	}
	log.Printf("[Auth] rotated refresh token reused for admin %s, revoked %d sessions", adminID, n)
}

// RevokeRefreshToken ends one session (logout)
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.refreshTokenRepo.Revoke(ctx, hashToken(refreshToken), s.now())
}

// RevokeAllAdminTokens ends every session of an admin
func (s *TokenService) RevokeAllAdminTokens(ctx context.Context, adminID string) error {
	_, err := s.refreshTokenRepo.RevokeAllForAdmin(ctx, adminID, s.now())
	return err
}

// ParseAccessToken validates an access token's signature and expiry and returns its claims
func (s *TokenService) ParseAccessToken(tokenString string) (*domain.AdminClaims, error) {
	return ParseAdminToken(tokenString, s.jwtConfig.Secret, s.now)
}

// ParseAdminToken validates an HS256 admin token signed with secret
func ParseAdminToken(tokenString, secret string, now func() time.Time) (*domain.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*domain.AdminClaims)
	if !ok || !token.Valid || claims.AdminID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) generateAccessToken(admin *domain.Admin) (string, error) {
	now := s.now()
	claims := domain.AdminClaims{
		AdminID: admin.ID,
		Name:    admin.FullName,
		Email:   admin.Email,
		Role:    admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtConfig.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtConfig.Secret))
}

// generateAndStoreRefreshToken creates a random refresh token and stores its hash
func (s *TokenService) generateAndStoreRefreshToken(ctx context.Context, adminID, userAgent, ipAddress string) (string, error) {
	rawToken, token, err := s.newRefreshToken(adminID, userAgent, ipAddress)
	if err != nil {
		return "", err
	}
	token.CreatedAt = s.now()
	if err := s.refreshTokenRepo.Create(ctx, token); err != nil {
		return "", err
	}
	return rawToken, nil
}

func (s *TokenService) newRefreshToken(adminID, userAgent, ipAddress string) (string, *domain.RefreshToken, error) {
	rawToken, err := randomToken()
	if err != nil {
		return "", nil, err
	}
	return rawToken, &domain.RefreshToken{
		AdminID:   adminID,
		TokenHash: hashToken(rawToken), // never store the raw token
		ExpiresAt: s.now().Add(s.jwtConfig.RefreshTokenExpiry),
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}, nil
}

// randomToken returns 32 random bytes, hex encoded
func randomToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// hashToken creates a SHA256 hash of the token
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
