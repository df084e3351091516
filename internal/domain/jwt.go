package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims represents the custom JWT claims of an admin access token
type AdminClaims struct {
	AdminID string `json:"admin_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}
