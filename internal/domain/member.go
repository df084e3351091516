package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Gender values accepted for a member
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// DefaultAvatar is served when a member has no uploaded photo
const DefaultAvatar = "/images/profile.png"

// MembersPageSize is the fixed page size of member listings
const MembersPageSize = 10

// ParseGender validates a gender value. Empty defaults to other.
func ParseGender(s string) (string, error) {
	switch g := strings.ToLower(strings.TrimSpace(s)); g {
	case "":
		return GenderOther, nil
	case GenderMale, GenderFemale, GenderOther:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, s)
}

// Member is a gym member with their current membership period and payment history
type Member struct {
	ID         string      `bson:"_id,omitempty" json:"id"`
	MemberCode string      `bson:"member_code" json:"member_code"`
	FullName   string      `bson:"full_name" json:"full_name"`
	Phone      string      `bson:"phone" json:"phone"`
	Gender     string      `bson:"gender" json:"gender"`
	Avatar     string      `bson:"avatar" json:"avatar"`
	IsActive   bool        `bson:"is_active" json:"is_active"`
	Payments   []Payment   `bson:"payments" json:"payments"`
	Membership *Membership `bson:"membership,omitempty" json:"membership,omitempty"`
	IsDeleted  bool        `bson:"is_deleted" json:"-"`
	DeletedAt  *time.Time  `bson:"deleted_at,omitempty" json:"-"`
	Version    int64       `bson:"version" json:"version"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at"`
}

// LatestPayment returns the most recently appended payment, or nil
func (m *Member) LatestPayment() *Payment {
	if len(m.Payments) == 0 {
		return nil
	}
	return &m.Payments[len(m.Payments)-1]
}

// Refresh recomputes the derived membership fields before the member is served
func (m *Member) Refresh(now time.Time) {
	if m.Membership != nil {
		m.Membership.Refresh(now)
	}
}

// DaysLeft is zero for members without a membership
func (m *Member) DaysLeft(now time.Time) int {
	if m.Membership.IsZero() {
		return 0
	}
	return DeriveStatus(now, m.Membership.EndDate).DaysLeft
}

// MemberFilter narrows member listings and counts. Statuses are evaluated
// against Now from end dates, not from the stored status field.
type MemberFilter struct {
	Search       string
	Status       MembershipStatus // empty means all
	CreatedSince *time.Time
	ActiveOnly   bool
	InactiveOnly bool
	Now          time.Time
	Page         int
	Limit        int
}

// PaymentEdit replaces the payment at Index, the administrative correction of a recorded payment
type PaymentEdit struct {
	Index   int
	Payment Payment
}

// MemberUpdate is a partial update applied in one write; nil fields are left unchanged
type MemberUpdate struct {
	FullName   *string
	Phone      *string
	Gender     *string
	Avatar     *string
	IsActive   *bool
	Membership *Membership
	Payment    *PaymentEdit
}

// IsEmpty reports whether the update changes nothing
func (u MemberUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Phone == nil && u.Gender == nil && u.Avatar == nil &&
		u.IsActive == nil && u.Membership == nil && u.Payment == nil
}

// MemberRepository defines operations for managing members.
// Soft-deleted members are invisible to every method.
type MemberRepository interface {
	Create(ctx context.Context, member *Member) error
	GetByID(ctx context.Context, id string) (*Member, error)
	GetByCode(ctx context.Context, code string) (*Member, error)
	List(ctx context.Context, filter MemberFilter) ([]*Member, error)
	Count(ctx context.Context, filter MemberFilter) (int64, error)

	// Update and ApplyRenewal match on version and increment it.
	// A stale version fails with ErrConflict.
	Update(ctx context.Context, id string, version int64, update MemberUpdate) error
	ApplyRenewal(ctx context.Context, id string, version int64, membership Membership, payment Payment) error

	SoftDelete(ctx context.Context, id string, at time.Time) error

	// ForEach streams members in creation order
	ForEach(ctx context.Context, fn func(*Member) error) error

	// Aggregations for the dashboard
	SumLatestPayments(ctx context.Context, since *time.Time) (float64, error)
	CountByCreatedMonth(ctx context.Context, since time.Time, loc *time.Location) (map[string]int64, error)
	CountByGender(ctx context.Context) (map[string]int64, error)
}
