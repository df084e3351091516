package domain

import (
	"context"
	"time"
)

// DefaultAdminAvatar is used until an admin uploads a photo
const DefaultAdminAvatar = "/images/admin.png"

// MinPasswordLength is the shortest accepted admin password
const MinPasswordLength = 6

// Admin is a back-office operator
type Admin struct {
	ID                string     `bson:"_id,omitempty" json:"id"`
	FullName          string     `bson:"full_name" json:"full_name"`
	Email             string     `bson:"email" json:"email"`
	PasswordHash      string     `bson:"password_hash" json:"-"`
	Avatar            string     `bson:"avatar" json:"avatar"`
	Role              string     `bson:"role" json:"role"`
	IsActive          bool       `bson:"is_active" json:"is_active"`
	PasswordChangedAt *time.Time `bson:"password_changed_at,omitempty" json:"-"`

	PasswordResetToken   string     `bson:"password_reset_token,omitempty" json:"-"`
	PasswordResetExpires *time.Time `bson:"password_reset_expires,omitempty" json:"-"`

	PendingEmail       string     `bson:"pending_email,omitempty" json:"pending_email,omitempty"`
	EmailChangeToken   string     `bson:"email_change_token,omitempty" json:"-"`
	EmailChangeExpires *time.Time `bson:"email_change_expires,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ChangedPasswordAfter reports whether a token issued at issuedAt predates the last password change
func (a *Admin) ChangedPasswordAfter(issuedAt time.Time) bool {
	return a.PasswordChangedAt != nil && a.PasswordChangedAt.After(issuedAt)
}

// RoleAdmin is the only role; access control beyond it is an email allow-list
const RoleAdmin = "admin"

// AdminRepository defines operations for managing admins
type AdminRepository interface {
	Create(ctx context.Context, admin *Admin) error
	GetByID(ctx context.Context, id string) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	Count(ctx context.Context) (int64, error)
	UpdateProfile(ctx context.Context, id string, fullName, avatar string) error
	UpdatePassword(ctx context.Context, id string, hash string, changedAt time.Time) error

	SetResetToken(ctx context.Context, id string, tokenHash string, expires time.Time) error
	// GetByResetToken only matches tokens that have not expired at now
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Admin, error)

	SetEmailChange(ctx context.Context, id string, pendingEmail, tokenHash string, expires time.Time) error
	// ConfirmEmailChange swaps in the pending email for the admin holding tokenHash
	ConfirmEmailChange(ctx context.Context, tokenHash string, now time.Time) (*Admin, error)
}
