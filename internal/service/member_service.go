package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/telemetry"
	"github.com/oklog/ulid/v2"
)

// MemberNotifier is the part of Notifier the member workflows use
type MemberNotifier interface {
	NewMember(ctx context.Context, member *domain.Member)
	MembershipRenewed(ctx context.Context, member *domain.Member, notice domain.RenewalNotice)
}

const memberCodeAttempts = 3

// MemberService runs the front-desk workflows on members and their memberships
type MemberService struct {
	repo     domain.MemberRepository
	plans    domain.PlanRepository
	engine   *domain.MembershipEngine
	avatars  domain.AvatarStore
	cache    domain.PatternCache
	notifier MemberNotifier
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewMemberService wires the member workflows. avatars, cache, notifier and metrics may be nil.
func NewMemberService(
	repo domain.MemberRepository,
	plans domain.PlanRepository,
	engine *domain.MembershipEngine,
	avatars domain.AvatarStore,
	cache domain.PatternCache,
	notifier MemberNotifier,
	metrics *telemetry.Metrics,
) *MemberService {
	return &MemberService{
		repo:     repo,
		plans:    plans,
		engine:   engine,
		avatars:  avatars,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CreateMemberInput is a front-desk registration. Either DurationMonths or PlanID picks the period;
// a nil Amount takes the plan price.
type CreateMemberInput struct {
	FullName       string
	Phone          string
	Gender         string
	Avatar         string
	DurationMonths int
	Amount         *float64
	Method         string
	PlanID         string
}

// Create registers a member and starts their first membership period at now
func (s *MemberService) Create(ctx context.Context, in CreateMemberInput) (*domain.Member, error) {
	fullName := strings.TrimSpace(in.FullName)
	phone := normalizePhone(in.Phone)
	if fullName == "" || phone == "" {
		return nil, fmt.Errorf("%w: full name and phone are required", domain.ErrInvalidInput)
	}
	gender, err := domain.ParseGender(in.Gender)
	if err != nil {
		return nil, err
	}
	months, amount, err := s.resolvePeriod(ctx, in.PlanID, in.DurationMonths, in.Amount)
	if err != nil {
		return nil, err
	}
	method, err := domain.ParsePaymentMethod(in.Method)
	if err != nil {
		return nil, err
	}

	now := s.now()
	renewal, err := s.engine.Renew(nil, now, months, amount, method)
	if err != nil {
		return nil, err
	}

	avatar := strings.TrimSpace(in.Avatar)
	if avatar == "" {
		avatar = domain.DefaultAvatar
	}

	member := &domain.Member{
		FullName:   fullName,
		Phone:      phone,
		Gender:     gender,
		Avatar:     avatar,
		IsActive:   true,
		Payments:   []domain.Payment{renewal.Payment},
		Membership: &renewal.Membership,
	}

	for attempt := 1; ; attempt++ {
		member.MemberCode = newMemberCode()
		err = s.repo.Create(ctx, member)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == memberCodeAttempts {
			return nil, err
		}
		log.Printf("[Members] member code %s taken, retrying", member.MemberCode)
	}

	s.invalidateStats(ctx)
	s.metrics.MemberCreated(ctx, amount, string(method))
	if s.notifier != nil {
		s.notifier.NewMember(ctx, member)
	}

	member.Refresh(now)
	return member, nil
}

// ListMembersInput carries the query string of the member listing
type ListMembersInput struct {
	Search    string
	Status    string // active, expiring, expired, inactive, all or empty
	RangeDays int    // created within the last RangeDays days, 0 for all time
	Page      int    // 1-based
}

// MemberPage is one page of members. TotalPages is ceil(matches / page size).
type MemberPage struct {
	Members    []*domain.Member `json:"members"`
	Page       int              `json:"page"`
	TotalPages int64            `json:"total"`
	Matches    int64            `json:"matches"`
}

// List returns one page of live members, newest first, with status and days left derived at now
func (s *MemberService) List(ctx context.Context, in ListMembersInput) (*MemberPage, error) {
	now := s.now()
	filter, err := buildFilter(in, now)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		m.Refresh(now)
	}

	return &MemberPage{
		Members:    members,
		Page:       filter.Page,
		TotalPages: int64(math.Ceil(float64(count) / float64(domain.MembersPageSize))),
		Matches:    count,
	}, nil
}

func buildFilter(in ListMembersInput, now time.Time) (domain.MemberFilter, error) {
	filter := domain.MemberFilter{
		Search: strings.TrimSpace(in.Search),
		Now:    now,
		Page:   in.Page,
		Limit:  domain.MembersPageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	switch status := strings.ToLower(strings.TrimSpace(in.Status)); status {
	case "", "all":
	case "inactive":
		filter.InactiveOnly = true
	case string(domain.StatusActive), string(domain.StatusExpiring), string(domain.StatusExpired):
		filter.Status = domain.MembershipStatus(status)
	default:
		return filter, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, in.Status)
	}

	if in.RangeDays < 0 {
		return filter, fmt.Errorf("%w: range must not be negative", domain.ErrInvalidInput)
	}
	if in.RangeDays > 0 {
		since := now.AddDate(0, 0, -in.RangeDays)
		filter.CreatedSince = &since
	}
	return filter, nil
}

// Get returns a live member with derived fields at now
func (s *MemberService) Get(ctx context.Context, id string) (*domain.Member, error) {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	member.Refresh(s.now())
	return member, nil
}

// UpdateMemberInput is a partial edit. DurationMonths re-derives the end date from the
// current start date. Amount and Method correct the latest recorded payment.
type UpdateMemberInput struct {
	FullName       *string
	Phone          *string
	Gender         *string
	Avatar         *string
	DurationMonths *int
	Amount         *float64
	Method         *string
}

// Update applies an administrative edit in a single versioned write
func (s *MemberService) Update(ctx context.Context, id string, in UpdateMemberInput) (*domain.Member, error) {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var update domain.MemberUpdate
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full name must not be empty", domain.ErrInvalidInput)
		}
		update.FullName = &name
	}
	if in.Phone != nil {
		phone := normalizePhone(*in.Phone)
		if phone == "" {
			return nil, fmt.Errorf("%w: phone must not be empty", domain.ErrInvalidInput)
		}
		update.Phone = &phone
	}
	if in.Gender != nil {
		gender, err := domain.ParseGender(*in.Gender)
		if err != nil {
			return nil, err
		}
		update.Gender = &gender
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		if avatar == "" {
			avatar = domain.DefaultAvatar
		}
		update.Avatar = &avatar
	}
	if in.DurationMonths != nil {
		resized, err := s.engine.Resize(member.Membership, now, *in.DurationMonths)
		if err != nil {
			return nil, err
		}
		active := resized.Status != domain.StatusExpired
		update.Membership = resized
		update.IsActive = &active
	}
	if in.Amount != nil || in.Method != nil {
		edit, err := correctLatestPayment(member, in.Amount, in.Method)
		if err != nil {
			return nil, err
		}
		update.Payment = edit
	}

	if update.IsEmpty() {
		member.Refresh(now)
		return member, nil
	}

	if err := s.repo.Update(ctx, id, member.Version, update); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return s.Get(ctx, id)
}

func correctLatestPayment(member *domain.Member, amount *float64, method *string) (*domain.PaymentEdit, error) {
	latest := member.LatestPayment()
	if latest == nil {
		return nil, fmt.Errorf("%w: member has no payment to correct", domain.ErrInvalidInput)
	}

	corrected := *latest
	if amount != nil {
		if *amount < 0 || math.IsNaN(*amount) || math.IsInf(*amount, 0) {
			return nil, fmt.Errorf("%w: amount must be a non-negative number", domain.ErrInvalidInput)
		}
		corrected.Amount = *amount
	}
	if method != nil {
		m, err := domain.ParsePaymentMethod(*method)
		if err != nil {
			return nil, err
		}
		corrected.Method = m
	}
	return &domain.PaymentEdit{Index: len(member.Payments) - 1, Payment: corrected}, nil
}

// RenewInput is a renewal at the front desk. PlanID, when set, supplies the month
// count and, for a nil Amount, the price.
type RenewInput struct {
	Months int
	Amount *float64
	Method string
	PlanID string
}

// RenewResult is the renewed member together with the renewal notice
type RenewResult struct {
	Member *domain.Member       `json:"member"`
	Notice domain.RenewalNotice `json:"renewal"`
}

// Renew extends or restarts the member's period and records the payment atomically.
// A concurrent change to the same member fails with domain.ErrConflict.
func (s *MemberService) Renew(ctx context.Context, id string, in RenewInput) (*RenewResult, error) {
	months, amount, err := s.resolvePeriod(ctx, in.PlanID, in.Months, in.Amount)
	if err != nil {
		return nil, err
	}
	method, err := domain.ParsePaymentMethod(in.Method)
	if err != nil {
		return nil, err
	}

	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	renewal, err := s.engine.Renew(member.Membership, now, months, amount, method)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyRenewal(ctx, id, member.Version, renewal.Membership, renewal.Payment); err != nil {
		return nil, err
	}

	member.Membership = &renewal.Membership
	member.Payments = append(member.Payments, renewal.Payment)
	member.IsActive = true
	member.Version++

	s.invalidateStats(ctx)
	s.metrics.MembershipRenewed(ctx, months, renewal.Notice.Extended, amount, string(method))
	if s.notifier != nil {
		s.notifier.MembershipRenewed(ctx, member, renewal.Notice)
	}

	log.Printf("[Members] renewed %s by %d month(s) until %s", member.MemberCode, months, renewal.Membership.EndDate.Format(time.RFC3339))
	return &RenewResult{Member: member, Notice: renewal.Notice}, nil
}

// Delete soft-deletes a member; they disappear from every listing and verification
func (s *MemberService) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadAvatar stores an image, points the member's avatar at it and drops the photo it replaces
func (s *MemberService) UploadAvatar(ctx context.Context, id string, data []byte, contentType string) (*domain.Member, error) {
	if s.avatars == nil {
		return nil, fmt.Errorf("avatar storage is not configured")
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: only jpeg, png, webp or gif images are accepted", domain.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}

	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := path.Join("members", member.ID, ulid.Make().String()+ext)
	url, err := s.avatars.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, member.Version, domain.MemberUpdate{Avatar: &url}); err != nil {
		s.removeAvatar(ctx, url)
		return nil, err
	}
	s.removeAvatar(ctx, member.Avatar)
	return s.Get(ctx, id)
}

func (s *MemberService) removeAvatar(ctx context.Context, url string) {
	if url == "" || url == domain.DefaultAvatar {
		return
	}
	if err := s.avatars.Remove(ctx, url); err != nil {
		log.Printf("[Members] failed to remove avatar %s: %v", url, err)
	}
}

// VerifiedMember is the public view shown at the gym entrance
type VerifiedMember struct {
	FullName   string     `json:"full_name"`
	Avatar     string     `json:"avatar"`
	MemberCode string     `json:"member_code"`
	DaysLeft   int        `json:"days_left"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Phone      string     `json:"phone"`
}

// Verification is the result of checking a member code at the door
type Verification struct {
	Valid   bool            `json:"valid"`
	Message string          `json:"message,omitempty"`
	Member  *VerifiedMember `json:"member,omitempty"`
}

const accessDenied = "Access denied. Membership expired or invalid."

// Verify checks a member code. Unknown, deleted, deactivated and lapsed members are all
// reported the same way.
func (s *MemberService) Verify(ctx context.Context, code string) (*Verification, error) {
	member, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, domain.ErrNotFound) {
		return &Verification{Valid: false, Message: accessDenied}, nil
	}
	if err != nil {
		return nil, err
	}

	daysLeft := member.DaysLeft(s.now())
	if !member.IsActive || daysLeft <= 0 {
		return &Verification{Valid: false, Message: accessDenied}, nil
	}

	avatar := member.Avatar
	if avatar == "" {
		avatar = domain.DefaultAvatar
	}
	end := member.Membership.EndDate
	return &Verification{
		Valid: true,
		Member: &VerifiedMember{
			FullName:   member.FullName,
			Avatar:     avatar,
			MemberCode: member.MemberCode,
			DaysLeft:   daysLeft,
			EndDate:    &end,
			Phone:      member.Phone,
		},
	}, nil
}

// ReconcileReport summarises a RefreshAll run
type ReconcileReport struct {
	Scanned   int
	Drifted   int
	Corrected int
	Skipped   int // inconsistent records left untouched
}

// RefreshAll re-derives duration and status of every live member from the stored dates.
// With dryRun nothing is written.
func (s *MemberService) RefreshAll(ctx context.Context, dryRun bool, onDrift func(before, after *domain.Member)) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	now := s.now()

	err := s.repo.ForEach(ctx, func(m *domain.Member) error {
		report.Scanned++

		fixed, drifted, err := s.engine.Reconcile(m.Membership, now)
		if err != nil {
			log.Printf("[Reconcile] skipping %s: %v", m.MemberCode, err)
			report.Skipped++
			return nil
		}
		active := m.IsActive
		if fixed != nil && fixed.Status == domain.StatusExpired {
			active = false
		}
		if !drifted && active == m.IsActive {
			return nil
		}
		report.Drifted++

		after := *m
		after.Membership = fixed
		after.IsActive = active
		if onDrift != nil {
			onDrift(m, &after)
		}
		if dryRun {
			return nil
		}

		update := domain.MemberUpdate{Membership: fixed, IsActive: &active}
		if err := s.repo.Update(ctx, m.ID, m.Version, update); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
				// changed while we looked at it; the next run picks it up
				log.Printf("[Reconcile] %s changed concurrently, skipping", m.MemberCode)
				report.Skipped++
				return nil
			}
			return err
		}
		report.Corrected++
		return nil
	})
	if err != nil {
		return report, err
	}

	if report.Corrected > 0 {
		s.invalidateStats(ctx)
	}
	return report, nil
}

// resolvePeriod picks months and amount from a plan or from explicit values.
// A plan fixes the months; only its price may be overridden.
func (s *MemberService) resolvePeriod(ctx context.Context, planID string, months int, amount *float64) (int, float64, error) {
	if planID != "" {
		if s.plans == nil {
			return 0, 0, fmt.Errorf("%w: plans are not available", domain.ErrInvalidInput)
		}
		plan, err := s.plans.GetByID(ctx, planID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return 0, 0, fmt.Errorf("%w: unknown plan %q", domain.ErrInvalidInput, planID)
			}
			return 0, 0, err
		}
		if !plan.IsActive {
			return 0, 0, fmt.Errorf("%w: plan %q is retired", domain.ErrInvalidInput, planID)
		}
		if months != 0 && months != plan.DurationMonths {
			return 0, 0, fmt.Errorf("%w: plan %q runs %d month(s), not %d", domain.ErrInvalidInput, planID, plan.DurationMonths, months)
		}
		months = plan.DurationMonths
		if amount == nil {
			price := plan.Price
			amount = &price
		}
	}
	if amount == nil {
		return 0, 0, fmt.Errorf("%w: amount is required", domain.ErrInvalidInput)
	}
	return months, *amount, nil
}

func (s *MemberService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, domain.DashboardStatsPattern); err != nil {
		log.Printf("[Members] failed to invalidate dashboard cache: %v", err)
	}
}

// newMemberCode derives a short printable code from a fresh ULID's random part
func newMemberCode() string {
	id := ulid.Make().String()
	return "BG-" + id[len(id)-8:]
}

func normalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}
