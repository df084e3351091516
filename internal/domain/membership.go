package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/calendar"
)

// MembershipStatus is derived from the end date and the current time, never stored as ground truth
type MembershipStatus string

const (
	StatusActive   MembershipStatus = "active"
	StatusExpiring MembershipStatus = "expiring"
	StatusExpired  MembershipStatus = "expired"
)

// ExpiringWindowDays is the largest days-left count still reported as expiring
const ExpiringWindowDays = 5

// PaymentMethod is how a membership fee was paid
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCBE      PaymentMethod = "cbe"
	PaymentTeleBirr PaymentMethod = "tele-birr"
	PaymentTransfer PaymentMethod = "transfer"
)

// ParsePaymentMethod validates a client supplied method. Empty defaults to cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return PaymentCash, nil
	}
	if m.Valid() {
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, s)
}

// Valid reports whether m is one of the accepted methods
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCBE, PaymentTeleBirr, PaymentTransfer:
		return true
	}
	return false
}

// Payment is one entry of a member's append-only payment history
type Payment struct {
	Amount float64       `bson:"amount" json:"amount"`
	Date   time.Time     `bson:"date" json:"date"`
	Method PaymentMethod `bson:"method" json:"method"`
}

// Membership is the member's current paid period
type Membership struct {
	StartDate      time.Time        `bson:"start_date,omitempty" json:"start_date"`
	EndDate        time.Time        `bson:"end_date,omitempty" json:"end_date"`
	DurationMonths int              `bson:"duration_months" json:"duration_months"`
	Status         MembershipStatus `bson:"status" json:"status"`
	DaysLeft       int              `bson:"-" json:"days_left"`
}

// IsZero reports whether no period was ever started
func (m *Membership) IsZero() bool {
	return m == nil || (m.StartDate.IsZero() && m.EndDate.IsZero())
}

// CheckConsistency rejects half-set periods and periods ending before they start
func (m *Membership) CheckConsistency() error {
	if m.IsZero() {
		return nil
	}
	if m.StartDate.IsZero() || m.EndDate.IsZero() {
		return fmt.Errorf("%w: start %v, end %v", ErrInconsistentState, m.StartDate, m.EndDate)
	}
	if m.EndDate.Before(m.StartDate) {
		return fmt.Errorf("%w: end %v precedes start %v", ErrInconsistentState, m.EndDate, m.StartDate)
	}
	return nil
}

// Refresh recomputes Status and DaysLeft for now
func (m *Membership) Refresh(now time.Time) {
	if m.IsZero() {
		return
	}
	state := DeriveStatus(now, m.EndDate)
	m.Status = state.Status
	m.DaysLeft = state.DaysLeft
}

// MembershipState is the read-time view of a period
type MembershipState struct {
	DaysLeft int              `json:"days_left"`
	Status   MembershipStatus `json:"status"`
}

// DeriveStatus compares instants only, so it behaves the same for every membership calendar.
// A partial day counts as a whole one; a period that already ended reports zero.
func DeriveStatus(now, endDate time.Time) MembershipState {
	days := 0
	if remaining := endDate.Sub(now); remaining > 0 {
		days = int(math.Ceil(remaining.Hours() / 24))
	}

	switch {
	case days <= 0:
		return MembershipState{DaysLeft: 0, Status: StatusExpired}
	case days <= ExpiringWindowDays:
		return MembershipState{DaysLeft: days, Status: StatusExpiring}
	default:
		return MembershipState{DaysLeft: days, Status: StatusActive}
	}
}

// RenewalNotice is the payload of the renewal notification email
type RenewalNotice struct {
	OldEndDate  *time.Time    `json:"old_end_date,omitempty"`
	NewEndDate  time.Time     `json:"new_end_date"`
	MonthsAdded int           `json:"months_added"`
	Amount      float64       `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Extended    bool          `json:"extended"`
}

// Renewal is the outcome of MembershipEngine.Renew. The caller persists
// Membership and appends Payment in a single write.
type Renewal struct {
	Membership Membership
	Payment    Payment
	Notice     RenewalNotice
}

// MembershipEngine does all membership-period arithmetic in the configured calendar.
// It never reads the wall clock; every method takes now explicitly.
type MembershipEngine struct {
	cal calendar.Converter
}

func NewMembershipEngine(cal calendar.Converter) *MembershipEngine {
	return &MembershipEngine{cal: cal}
}

// Calendar returns the converter the engine computes with
func (e *MembershipEngine) Calendar() calendar.Converter {
	return e.cal
}

// AddMonths moves an instant by n months of the membership calendar, clamping to month end
func (e *MembershipEngine) AddMonths(t time.Time, n int) time.Time {
	return e.cal.ToCivilInstant(e.cal.AddMonths(e.cal.ToCalendarDate(t), n))
}

// Duration counts the months spanned by start..end, a partial trailing month counting as one
func (e *MembershipEngine) Duration(start, end time.Time) (int, error) {
	months, err := e.cal.MonthsBetween(e.cal.ToCalendarDate(start), e.cal.ToCalendarDate(end))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return months, nil
}

// Renew extends a still running period from its end date, or starts a fresh
// one at now when there is none or it already lapsed.
func (e *MembershipEngine) Renew(current *Membership, now time.Time, months int, amount float64, method PaymentMethod) (*Renewal, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: months must be a positive integer, got %d", ErrInvalidInput, months)
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidInput)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
	}
	if err := current.CheckConsistency(); err != nil {
		return nil, err
	}

	notice := RenewalNotice{MonthsAdded: months, Amount: amount, Method: method}

	start, base := now, now
	if !current.IsZero() {
		oldEnd := current.EndDate
		notice.OldEndDate = &oldEnd
		if current.EndDate.After(now) {
			start, base = current.StartDate, current.EndDate
			notice.Extended = true
		}
	}

	newEnd := e.AddMonths(base, months)
	duration, err := e.Duration(start, newEnd)
	if err != nil {
		return nil, err
	}
	notice.NewEndDate = newEnd

	state := DeriveStatus(now, newEnd)
	return &Renewal{
		Membership: Membership{
			StartDate:      start,
			EndDate:        newEnd,
			DurationMonths: duration,
			Status:         state.Status,
			DaysLeft:       state.DaysLeft,
		},
		Payment: Payment{Amount: amount, Date: now, Method: method},
		Notice:  notice,
	}, nil
}

// Resize re-derives the end date from the existing start date and a corrected month count.
// It is the administrative "edit duration" path, not a renewal, and records no payment.
func (e *MembershipEngine) Resize(current *Membership, now time.Time, months int) (*Membership, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: months must be a positive integer, got %d", ErrInvalidInput, months)
	}
	if err := current.CheckConsistency(); err != nil {
		return nil, err
	}

	start := now
	if !current.IsZero() {
		start = current.StartDate
	}
	end := e.AddMonths(start, months)
	duration, err := e.Duration(start, end)
	if err != nil {
		return nil, err
	}

	m := &Membership{StartDate: start, EndDate: end, DurationMonths: duration}
	m.Refresh(now)
	return m, nil
}

// Reconcile recomputes the derived fields of a stored period and reports whether any
// persisted field (duration or status) had drifted from its stored dates.
func (e *MembershipEngine) Reconcile(current *Membership, now time.Time) (*Membership, bool, error) {
	if current.IsZero() {
		return current, false, nil
	}
	if err := current.CheckConsistency(); err != nil {
		return nil, false, err
	}

	duration, err := e.Duration(current.StartDate, current.EndDate)
	if err != nil {
		return nil, false, err
	}

	fixed := *current
	fixed.DurationMonths = duration
	fixed.Refresh(now)

	drifted := fixed.DurationMonths != current.DurationMonths || fixed.Status != current.Status
	return &fixed, drifted, nil
}
