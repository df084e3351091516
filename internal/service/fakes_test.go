package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
)

// memMemberRepo is an in-memory domain.MemberRepository with the same version guard as Mongo
type memMemberRepo struct {
	mu      sync.Mutex
	members map[string]*domain.Member
	seq     int
	// codeCollisions makes the next Create calls fail as if the member code were taken
	codeCollisions int
}

func newMemMemberRepo() *memMemberRepo {
	return &memMemberRepo{members: map[string]*domain.Member{}}
}

func clone(m *domain.Member) *domain.Member {
	c := *m
	c.Payments = append([]domain.Payment(nil), m.Payments...)
	if m.Membership != nil {
		ms := *m.Membership
		c.Membership = &ms
	}
	return &c
}

func (r *memMemberRepo) Create(_ context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeCollisions > 0 {
		r.codeCollisions--
		return fmt.Errorf("member code collision: %w", domain.ErrConflict)
	}
	for _, m := range r.members {
		if !m.IsDeleted && m.Phone == member.Phone {
			return domain.ErrDuplicatePhone
		}
	}
	r.seq++
	member.ID = fmt.Sprintf("m%03d", r.seq)
	member.Version = 1
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Minute)
	}
	r.members[member.ID] = clone(member)
	return nil
}

// put stores a member as is, for arranging fixtures
func (r *memMemberRepo) put(m *domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Version == 0 {
		m.Version = 1
	}
	r.members[m.ID] = clone(m)
}

func (r *memMemberRepo) get(id string) *domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.members[id])
}

func (r *memMemberRepo) GetByID(_ context.Context, id string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.IsDeleted {
		return nil, domain.ErrNotFound
	}
	return clone(m), nil
}

func (r *memMemberRepo) GetByCode(_ context.Context, code string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if !m.IsDeleted && m.MemberCode == code {
			return clone(m), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memMemberRepo) matching(filter domain.MemberFilter) []*domain.Member {
	var out []*domain.Member
	for _, m := range r.members {
		if m.IsDeleted {
			continue
		}
		if filter.ActiveOnly && !m.IsActive || filter.InactiveOnly && m.IsActive {
			continue
		}
		if filter.CreatedSince != nil && m.CreatedAt.Before(*filter.CreatedSince) {
			continue
		}
		if filter.Search != "" {
			q := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(m.FullName), q) && !strings.Contains(m.Phone, q) &&
				!strings.Contains(strings.ToLower(m.MemberCode), q) {
				continue
			}
		}
		if filter.Status != "" {
			status := domain.StatusExpired
			if !m.Membership.IsZero() {
				status = domain.DeriveStatus(filter.Now, m.Membership.EndDate).Status
			}
			if status != filter.Status {
				continue
			}
		}
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memMemberRepo) List(_ context.Context, filter domain.MemberFilter) ([]*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(filter)
	start := (filter.Page - 1) * filter.Limit
	if start >= len(all) {
		return []*domain.Member{}, nil
	}
	end := start + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memMemberRepo) Count(_ context.Context, filter domain.MemberFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r *memMemberRepo) guarded(id string, version int64, apply func(m *domain.Member)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.IsDeleted {
		return domain.ErrNotFound
	}
	if m.Version != version {
		return domain.ErrConflict
	}
	apply(m)
	m.Version++
	return nil
}

func (r *memMemberRepo) Update(_ context.Context, id string, version int64, u domain.MemberUpdate) error {
	return r.guarded(id, version, func(m *domain.Member) {
		if u.FullName != nil {
			m.FullName = *u.FullName
		}
		if u.Phone != nil {
			m.Phone = *u.Phone
		}
		if u.Gender != nil {
			m.Gender = *u.Gender
		}
		if u.Avatar != nil {
			m.Avatar = *u.Avatar
		}
		if u.IsActive != nil {
			m.IsActive = *u.IsActive
		}
		if u.Membership != nil {
			ms := *u.Membership
			m.Membership = &ms
		}
		if u.Payment != nil {
			m.Payments[u.Payment.Index] = u.Payment.Payment
		}
	})
}

func (r *memMemberRepo) ApplyRenewal(_ context.Context, id string, version int64, membership domain.Membership, payment domain.Payment) error {
	return r.guarded(id, version, func(m *domain.Member) {
		m.Membership = &membership
		m.Payments = append(m.Payments, payment)
		m.IsActive = true
	})
}

func (r *memMemberRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.IsDeleted {
		return domain.ErrNotFound
	}
	m.IsDeleted = true
	m.DeletedAt = &at
	m.IsActive = false
	return nil
}

func (r *memMemberRepo) ForEach(ctx context.Context, fn func(*domain.Member) error) error {
	r.mu.Lock()
	var all []*domain.Member
	for _, m := range r.members {
		if !m.IsDeleted {
			all = append(all, clone(m))
		}
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	for _, m := range all {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *memMemberRepo) SumLatestPayments(_ context.Context, since *time.Time) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, m := range r.members {
		if m.IsDeleted || (since != nil && m.CreatedAt.Before(*since)) {
			continue
		}
		if p := m.LatestPayment(); p != nil {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (r *memMemberRepo) CountByCreatedMonth(_ context.Context, since time.Time, loc *time.Location) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, m := range r.members {
		if m.IsDeleted || m.CreatedAt.Before(since) {
			continue
		}
		out[m.CreatedAt.In(loc).Format("2006-01")]++
	}
	return out, nil
}

func (r *memMemberRepo) CountByGender(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, m := range r.members {
		if !m.IsDeleted {
			out[m.Gender]++
		}
	}
	return out, nil
}

type memPlanRepo struct {
	plans map[string]*domain.Plan
}

func newMemPlanRepo(plans ...*domain.Plan) *memPlanRepo {
	r := &memPlanRepo{plans: map[string]*domain.Plan{}}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *memPlanRepo) Create(_ context.Context, plan *domain.Plan) error {
	if _, ok := r.plans[plan.ID]; ok {
		return domain.ErrConflict
	}
	p := *plan
	r.plans[plan.ID] = &p
	return nil
}

func (r *memPlanRepo) GetByID(_ context.Context, id string) (*domain.Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPlanRepo) GetActivePlans(_ context.Context) ([]*domain.Plan, error) {
	var out []*domain.Plan
	for _, p := range r.plans {
		if p.IsActive {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DurationMonths < out[j].DurationMonths })
	return out, nil
}

func (r *memPlanRepo) Update(_ context.Context, plan *domain.Plan) error {
	if _, ok := r.plans[plan.ID]; !ok {
		return domain.ErrNotFound
	}
	p := *plan
	r.plans[plan.ID] = &p
	return nil
}

// memCache is a domain.PatternCache that only records invalidations
type memCache struct {
	mu      sync.Mutex
	entries map[string]any
	dropped []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]any{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	return domain.ErrCacheMiss
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, pattern)
	return nil
}

func (c *memCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dropped)
}

type recordingNotifier struct {
	mu       sync.Mutex
	created  []*domain.Member
	renewals []domain.RenewalNotice
}

func (n *recordingNotifier) NewMember(_ context.Context, member *domain.Member) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, member)
}

func (n *recordingNotifier) MembershipRenewed(_ context.Context, _ *domain.Member, notice domain.RenewalNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renewals = append(n.renewals, notice)
}

const memAvatarBase = "https://files.test/avatars/"

type memAvatars struct {
	keys    []string
	removed []string
}

func (f *memAvatars) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return memAvatarBase + key, nil
}

func (f *memAvatars) Remove(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return nil
}

type memAdminRepo struct {
	mu     sync.Mutex
	admins map[string]*domain.Admin
	seq    int
}

func newMemAdminRepo() *memAdminRepo {
	return &memAdminRepo{admins: map[string]*domain.Admin{}}
}

func cloneAdmin(a *domain.Admin) *domain.Admin {
	c := *a
	return &c
}

func (r *memAdminRepo) Create(_ context.Context, admin *domain.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.Email == admin.Email {
			return domain.ErrDuplicateEmail
		}
	}
	r.seq++
	admin.ID = fmt.Sprintf("a%03d", r.seq)
	r.admins[admin.ID] = cloneAdmin(admin)
	return nil
}

func (r *memAdminRepo) find(match func(*domain.Admin) bool) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if match(a) {
			return cloneAdmin(a), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memAdminRepo) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	return r.find(func(a *domain.Admin) bool { return a.ID == id })
}

func (r *memAdminRepo) GetByEmail(_ context.Context, email string) (*domain.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.find(func(a *domain.Admin) bool { return a.Email == email })
}

func (r *memAdminRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.admins)), nil
}

func (r *memAdminRepo) modify(id string, fn func(a *domain.Admin)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(a)
	return nil
}

func (r *memAdminRepo) UpdateProfile(_ context.Context, id string, fullName, avatar string) error {
	return r.modify(id, func(a *domain.Admin) { a.FullName, a.Avatar = fullName, avatar })
}

func (r *memAdminRepo) UpdatePassword(_ context.Context, id string, hash string, changedAt time.Time) error {
	return r.modify(id, func(a *domain.Admin) {
		a.PasswordHash = hash
		a.PasswordChangedAt = &changedAt
		a.PasswordResetToken = ""
		a.PasswordResetExpires = nil
	})
}

func (r *memAdminRepo) SetResetToken(_ context.Context, id string, tokenHash string, expires time.Time) error {
	return r.modify(id, func(a *domain.Admin) {
		a.PasswordResetToken = tokenHash
		a.PasswordResetExpires = &expires
	})
}

func (r *memAdminRepo) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*domain.Admin, error) {
	return r.find(func(a *domain.Admin) bool {
		return a.PasswordResetToken == tokenHash && a.PasswordResetExpires != nil && a.PasswordResetExpires.After(now)
	})
}

func (r *memAdminRepo) SetEmailChange(_ context.Context, id string, pendingEmail, tokenHash string, expires time.Time) error {
	return r.modify(id, func(a *domain.Admin) {
		a.PendingEmail = pendingEmail
		a.EmailChangeToken = tokenHash
		a.EmailChangeExpires = &expires
	})
}

func (r *memAdminRepo) ConfirmEmailChange(ctx context.Context, tokenHash string, now time.Time) (*domain.Admin, error) {
	admin, err := r.find(func(a *domain.Admin) bool {
		return a.EmailChangeToken == tokenHash && a.EmailChangeExpires != nil && a.EmailChangeExpires.After(now)
	})
	if err != nil {
		return nil, err
	}
	if _, err := r.GetByEmail(ctx, admin.PendingEmail); err == nil {
		return nil, domain.ErrDuplicateEmail
	}
	err = r.modify(admin.ID, func(a *domain.Admin) {
		a.Email = a.PendingEmail
		a.PendingEmail = ""
		a.EmailChangeToken = ""
		a.EmailChangeExpires = nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, admin.ID)
}

type memRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{tokens: map[string]*domain.RefreshToken{}}
}

func (r *memRefreshTokens) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *token
	r.tokens[token.TokenHash] = &c
	return nil
}

func (r *memRefreshTokens) FindByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *memRefreshTokens) Rotate(_ context.Context, oldHash string, next *domain.RefreshToken, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tokens[oldHash]
	if !ok || old.RevokedAt != nil {
		return domain.ErrConflict
	}
	if next.ID == "" {
		next.ID = fmt.Sprintf("rt_%d", len(r.tokens)+1)
	}
	old.RevokedAt = &at
	old.ReplacedBy = next.ID
	c := *next
	c.CreatedAt = at
	r.tokens[next.TokenHash] = &c
	return nil
}

func (r *memRefreshTokens) Revoke(_ context.Context, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[hash]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
	}
	return nil
}

func (r *memRefreshTokens) RevokeAllForAdmin(_ context.Context, adminID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.AdminID == adminID && t.RevokedAt == nil {
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *memRefreshTokens) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.RevokedAt == nil {
			n++
		}
	}
	return n
}

type sentLink struct {
	kind string
	to   string
	link string
}

type recordingAdminNotifier struct {
	mu   sync.Mutex
	sent  []sentLink
}

func (n *recordingAdminNotifier) record(kind, to, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentLink{kind: kind, to: to, link: link})
}

func (n *recordingAdminNotifier) Welcome(_ context.Context, admin *domain.Admin) {
	n.record("welcome", admin.Email, "")
}

func (n *recordingAdminNotifier) PasswordReset(_ context.Context, admin *domain.Admin, link string, _ time.Duration) {
	n.record("reset", admin.Email, link)
}

func (n *recordingAdminNotifier) PasswordChanged(_ context.Context, admin *domain.Admin, _ time.Time) {
	n.record("changed", admin.Email, "")
}

func (n *recordingAdminNotifier) ConfirmEmailChange(_ context.Context, _ *domain.Admin, newEmail, link string, _ time.Duration) {
	n.record("confirm", newEmail, link)
}

func (n *recordingAdminNotifier) last(kind string) (sentLink, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentLink{}, false
}
