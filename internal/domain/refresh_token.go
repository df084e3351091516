package domain

import (
	"context"
	"time"
)

// RefreshToken is one admin session. Only the SHA-256 of the raw token is stored.
// Refreshing rotates the session: the presented token is revoked and ReplacedBy
// points at its successor, so a rotated token showing up again means it leaked.
type RefreshToken struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	AdminID    string     `bson:"admin_id" json:"admin_id"`
	TokenHash  string     `bson:"token_hash" json:"-"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UserAgent  string     `bson:"user_agent" json:"user_agent"`
	IPAddress  string     `bson:"ip_address" json:"ip_address"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	ReplacedBy string     `bson:"replaced_by,omitempty" json:"-"`
}

// Usable reports whether the session may still be refreshed at now
func (r *RefreshToken) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Rotated reports whether the token was spent by a refresh, as opposed to a logout
func (r *RefreshToken) Rotated() bool {
	return r.RevokedAt != nil && r.ReplacedBy != ""
}

// RefreshTokenRepository stores admin sessions
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error

	// FindByHash returns the token whatever its state, or ErrNotFound
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// Rotate revokes the live token oldHash in favour of next and stores next.
	// It fails with ErrConflict when oldHash was already revoked.
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, at time.Time) error

	Revoke(ctx context.Context, hash string, at time.Time) error
	RevokeAllForAdmin(ctx context.Context, adminID string, at time.Time) (int64, error)
}
