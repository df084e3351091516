package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brothersgym/backoffice/internal/calendar"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

type memberFixture struct {
	svc      *MemberService
	repo     *memMemberRepo
	cache    *memCache
	notifier *recordingNotifier
	avatars  *memAvatars
}

func newMemberFixture(t *testing.T) *memberFixture {
	t.Helper()
	f := &memberFixture{
		repo:     newMemMemberRepo(),
		cache:    newMemCache(),
		notifier: &recordingNotifier{},
		avatars:  &memAvatars{},
	}
	plans := newMemPlanRepo(
		&domain.Plan{ID: "plan_quarterly", Name: "Quarterly", Price: 4000, DurationMonths: 3, IsActive: true},
		&domain.Plan{ID: "plan_legacy", Name: "Legacy", Price: 900, DurationMonths: 1, IsActive: false},
	)
	engine := domain.NewMembershipEngine(calendar.MustNew(calendar.Gregorian, time.UTC))
	f.svc = NewMemberService(f.repo, plans, engine, f.avatars, f.cache, f.notifier, nil)
	f.svc.now = func() time.Time { return testNow }
	return f
}

// seed stores a member whose period runs start..end
func (f *memberFixture) seed(id, code, phone string, start, end time.Time) *domain.Member {
	m := &domain.Member{
		ID:         id,
		MemberCode: code,
		FullName:   "Member " + id,
		Phone:      phone,
		Gender:     domain.GenderMale,
		IsActive:   true,
		Payments:   []domain.Payment{{Amount: 1500, Date: start, Method: domain.PaymentCash}},
		Membership: &domain.Membership{StartDate: start, EndDate: end, DurationMonths: 1, Status: domain.StatusActive},
		CreatedAt:  start,
	}
	f.repo.put(m)
	return m
}

func TestMemberServiceCreate(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()

	member, err := f.svc.Create(ctx, CreateMemberInput{
		FullName:       "  Abebe Kebede ",
		Phone:          "+251 911 000 111",
		Gender:         "Male",
		DurationMonths: 1,
		Amount:         ptr(1500.0),
	})
	require.NoError(t, err)

	assert.Equal(t, "Abebe Kebede", member.FullName)
	assert.Equal(t, "+251911000111", member.Phone)
	assert.True(t, strings.HasPrefix(member.MemberCode, "BG-"))
	assert.Len(t, member.MemberCode, 11)
	assert.Equal(t, domain.DefaultAvatar, member.Avatar)
	assert.True(t, member.IsActive)

	require.NotNil(t, member.Membership)
	assert.Equal(t, testNow, member.Membership.StartDate)
	assert.Equal(t, at(2025, 4, 10), member.Membership.EndDate)
	assert.Equal(t, 1, member.Membership.DurationMonths)
	assert.Equal(t, domain.StatusActive, member.Membership.Status)
	assert.Equal(t, 31, member.Membership.DaysLeft)

	require.Len(t, member.Payments, 1)
	assert.Equal(t, domain.Payment{Amount: 1500, Date: testNow, Method: domain.PaymentCash}, member.Payments[0])

	assert.Equal(t, 1, f.cache.invalidations())
	assert.Len(t, f.notifier.created, 1)
}

func TestMemberServiceCreateFromPlan(t *testing.T) {
	f := newMemberFixture(t)

	member, err := f.svc.Create(context.Background(), CreateMemberInput{
		FullName: "Sara Tesfaye",
		Phone:    "0911222333",
		Gender:   "female",
		PlanID:   "plan_quarterly",
		Method:   "tele-birr",
	})
	require.NoError(t, err)

	assert.Equal(t, at(2025, 6, 10), member.Membership.EndDate)
	assert.Equal(t, 3, member.Membership.DurationMonths)
	assert.Equal(t, 4000.0, member.Payments[0].Amount)
	assert.Equal(t, domain.PaymentTeleBirr, member.Payments[0].Method)
}

func TestMemberServiceCreateFromPlanWithMatchingMonths(t *testing.T) {
	f := newMemberFixture(t)

	member, err := f.svc.Create(context.Background(), CreateMemberInput{
		FullName:       "Sara Tesfaye",
		Phone:          "0911222333",
		PlanID:         "plan_quarterly",
		DurationMonths: 3,
		Amount:         ptr(3500.0),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, member.Membership.DurationMonths)
	assert.Equal(t, at(2025, 6, 10), member.Membership.EndDate)
	assert.Equal(t, 3500.0, member.Payments[0].Amount)
}

func TestMemberServiceCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateMemberInput
		want error
	}{
		{"missing name", CreateMemberInput{Phone: "0911", DurationMonths: 1, Amount: ptr(10.0)}, domain.ErrInvalidInput},
		{"zero months", CreateMemberInput{FullName: "A", Phone: "0911", Amount: ptr(10.0)}, domain.ErrInvalidInput},
		{"negative amount", CreateMemberInput{FullName: "A", Phone: "0911", DurationMonths: 1, Amount: ptr(-1.0)}, domain.ErrInvalidInput},
		{"missing amount", CreateMemberInput{FullName: "A", Phone: "0911", DurationMonths: 1}, domain.ErrInvalidInput},
		{"unknown method", CreateMemberInput{FullName: "A", Phone: "0911", DurationMonths: 1, Amount: ptr(1.0), Method: "gold"}, domain.ErrInvalidInput},
		{"unknown gender", CreateMemberInput{FullName: "A", Phone: "0911", DurationMonths: 1, Amount: ptr(1.0), Gender: "x"}, domain.ErrInvalidInput},
		{"unknown plan", CreateMemberInput{FullName: "A", Phone: "0911", PlanID: "plan_nope"}, domain.ErrInvalidInput},
		{"retired plan", CreateMemberInput{FullName: "A", Phone: "0911", PlanID: "plan_legacy"}, domain.ErrInvalidInput},
		{"months disagree with plan", CreateMemberInput{FullName: "A", Phone: "0911", PlanID: "plan_quarterly", DurationMonths: 12}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemberFixture(t)
			_, err := f.svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.cache.invalidations())
		})
	}
}

func TestMemberServiceCreateDuplicatePhone(t *testing.T) {
	f := newMemberFixture(t)
	f.seed("m900", "BG-EXISTING", "0911000111", at(2025, 3, 1), at(2025, 4, 1))

	_, err := f.svc.Create(context.Background(), CreateMemberInput{
		FullName: "Copy", Phone: "0911 000 111", DurationMonths: 1, Amount: ptr(1500.0),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePhone)
}

func TestMemberServiceCreateRetriesCodeCollision(t *testing.T) {
	f := newMemberFixture(t)
	f.repo.codeCollisions = memberCodeAttempts - 1

	_, err := f.svc.Create(context.Background(), CreateMemberInput{
		FullName: "Lucky", Phone: "0911", DurationMonths: 1, Amount: ptr(1500.0),
	})
	require.NoError(t, err)

	f.repo.codeCollisions = memberCodeAttempts
	_, err = f.svc.Create(context.Background(), CreateMemberInput{
		FullName: "Unlucky", Phone: "0922", DurationMonths: 1, Amount: ptr(1500.0),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestMemberServiceRenew(t *testing.T) {
	t.Run("running period is extended from its end", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 2, 10), at(2025, 3, 20))

		result, err := f.svc.Renew(context.Background(), "m1", RenewInput{Months: 1, Amount: ptr(1500.0), Method: "cbe"})
		require.NoError(t, err)

		ms := result.Member.Membership
		assert.Equal(t, at(2025, 2, 10), ms.StartDate)
		assert.Equal(t, at(2025, 4, 20), ms.EndDate)
		assert.Equal(t, 3, ms.DurationMonths)
		assert.Equal(t, domain.StatusActive, ms.Status)

		assert.True(t, result.Notice.Extended)
		require.NotNil(t, result.Notice.OldEndDate)
		assert.Equal(t, at(2025, 3, 20), *result.Notice.OldEndDate)
		assert.Equal(t, domain.PaymentCBE, result.Notice.Method)

		stored := f.repo.get("m1")
		assert.Equal(t, int64(2), stored.Version)
		assert.Equal(t, result.Member.Version, stored.Version)
		require.Len(t, stored.Payments, 2)
		assert.Equal(t, 1500.0, stored.Payments[1].Amount)
		assert.Equal(t, at(2025, 4, 20), stored.Membership.EndDate)

		assert.Len(t, f.notifier.renewals, 1)
		assert.Equal(t, 1, f.cache.invalidations())
	})

	t.Run("lapsed period restarts now", func(t *testing.T) {
		f := newMemberFixture(t)
		m := f.seed("m1", "BG-00000001", "0911", at(2025, 1, 1), at(2025, 2, 1))
		m.IsActive = false
		f.repo.put(m)

		result, err := f.svc.Renew(context.Background(), "m1", RenewInput{Months: 2, Amount: ptr(3000.0)})
		require.NoError(t, err)

		ms := result.Member.Membership
		assert.Equal(t, testNow, ms.StartDate)
		assert.Equal(t, at(2025, 5, 10), ms.EndDate)
		assert.Equal(t, 2, ms.DurationMonths)
		assert.False(t, result.Notice.Extended)
		assert.True(t, result.Member.IsActive)
		assert.True(t, f.repo.get("m1").IsActive)
	})

	t.Run("member without a period starts now", func(t *testing.T) {
		f := newMemberFixture(t)
		m := f.seed("m1", "BG-00000001", "0911", time.Time{}, time.Time{})
		m.Membership = nil
		f.repo.put(m)

		result, err := f.svc.Renew(context.Background(), "m1", RenewInput{PlanID: "plan_quarterly"})
		require.NoError(t, err)
		assert.Nil(t, result.Notice.OldEndDate)
		assert.Equal(t, at(2025, 6, 10), result.Member.Membership.EndDate)
		assert.Equal(t, 4000.0, result.Notice.Amount)
	})

	t.Run("period ending exactly now restarts", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 2, 10), testNow)

		result, err := f.svc.Renew(context.Background(), "m1", RenewInput{Months: 1, Amount: ptr(1500.0)})
		require.NoError(t, err)
		assert.False(t, result.Notice.Extended)
		assert.Equal(t, testNow, result.Member.Membership.StartDate)
	})

	t.Run("inconsistent period is rejected", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 4, 1), at(2025, 3, 1))

		_, err := f.svc.Renew(context.Background(), "m1", RenewInput{Months: 1, Amount: ptr(1500.0)})
		assert.ErrorIs(t, err, domain.ErrInconsistentState)
		assert.Len(t, f.repo.get("m1").Payments, 1)
	})

	t.Run("months that disagree with the plan are rejected", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 2, 10), at(2025, 3, 20))

		_, err := f.svc.Renew(context.Background(), "m1", RenewInput{PlanID: "plan_quarterly", Months: 12})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		stored := f.repo.get("m1")
		assert.Len(t, stored.Payments, 1)
		assert.Equal(t, at(2025, 3, 20), stored.Membership.EndDate)
		assert.Empty(t, f.notifier.renewals)
	})

	t.Run("unknown member", func(t *testing.T) {
		f := newMemberFixture(t)
		_, err := f.svc.Renew(context.Background(), "missing", RenewInput{Months: 1, Amount: ptr(1500.0)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// racingRepo lets another writer bump the version between read and write
type racingRepo struct {
	*memMemberRepo
}

func (r racingRepo) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	m, err := r.memMemberRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	name := "Renamed elsewhere"
	if err := r.memMemberRepo.Update(ctx, id, m.Version, domain.MemberUpdate{FullName: &name}); err != nil {
		return nil, err
	}
	return m, nil
}

func TestMemberServiceRenewConflict(t *testing.T) {
	f := newMemberFixture(t)
	f.seed("m1", "BG-00000001", "0911", at(2025, 2, 10), at(2025, 3, 20))
	f.svc.repo = racingRepo{f.repo}

	_, err := f.svc.Renew(context.Background(), "m1", RenewInput{Months: 1, Amount: ptr(1500.0)})
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored := f.repo.get("m1")
	assert.Len(t, stored.Payments, 1)
	assert.Equal(t, at(2025, 3, 20), stored.Membership.EndDate)
	assert.Empty(t, f.notifier.renewals)
}

func TestMemberServiceUpdate(t *testing.T) {
	t.Run("duration edit re-derives the end date", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))

		member, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{DurationMonths: ptr(2)})
		require.NoError(t, err)
		assert.Equal(t, at(2025, 5, 1), member.Membership.EndDate)
		assert.Equal(t, 2, member.Membership.DurationMonths)
		assert.True(t, member.IsActive)
		assert.Len(t, member.Payments, 1)
	})

	t.Run("shrinking into the past deactivates", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2024, 12, 1), at(2025, 6, 1))

		member, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{DurationMonths: ptr(1)})
		require.NoError(t, err)
		assert.Equal(t, at(2025, 1, 1), member.Membership.EndDate)
		assert.Equal(t, domain.StatusExpired, member.Membership.Status)
		assert.False(t, member.IsActive)
	})

	t.Run("payment correction edits the latest payment in place", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))

		member, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{Amount: ptr(1200.0), Method: ptr("transfer")})
		require.NoError(t, err)
		require.Len(t, member.Payments, 1)
		assert.Equal(t, 1200.0, member.Payments[0].Amount)
		assert.Equal(t, domain.PaymentTransfer, member.Payments[0].Method)
		assert.Equal(t, at(2025, 3, 1), member.Payments[0].Date)
	})

	t.Run("payment correction needs a payment", func(t *testing.T) {
		f := newMemberFixture(t)
		m := f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))
		m.Payments = nil
		f.repo.put(m)

		_, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{Amount: ptr(1200.0)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("profile fields", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))

		member, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{
			FullName: ptr(" New Name "),
			Phone:    ptr("0933 44 55"),
			Gender:   ptr("FEMALE"),
			Avatar:   ptr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, "New Name", member.FullName)
		assert.Equal(t, "09334455", member.Phone)
		assert.Equal(t, domain.GenderFemale, member.Gender)
		assert.Equal(t, domain.DefaultAvatar, member.Avatar)
		assert.Equal(t, int64(2), member.Version)
	})

	t.Run("empty edit writes nothing", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))

		member, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), member.Version)
		assert.Zero(t, f.cache.invalidations())
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		f := newMemberFixture(t)
		f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))

		_, err := f.svc.Update(context.Background(), "m1", UpdateMemberInput{FullName: ptr("  ")})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestMemberServiceList(t *testing.T) {
	f := newMemberFixture(t)
	// 12 members, the first 3 expiring within 5 days, the last 2 expired
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		end := at(2025, 4, 10)
		switch {
		case i < 3:
			end = testNow.AddDate(0, 0, 3)
		case i >= 10:
			end = at(2025, 3, 1)
		}
		m := f.seed(id, "BG-0000000"+id, "09"+id, at(2025, 2, 1), end)
		m.CreatedAt = testNow.AddDate(0, 0, -i)
		f.repo.put(m)
	}
	ctx := context.Background()

	page, err := f.svc.List(ctx, ListMembersInput{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, int64(12), page.Matches)
	assert.Equal(t, int64(2), page.TotalPages)
	require.Len(t, page.Members, 2)
	assert.Equal(t, "k", page.Members[0].ID)

	page, err = f.svc.List(ctx, ListMembersInput{Status: "Expiring"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Matches)
	for _, m := range page.Members {
		assert.Equal(t, domain.StatusExpiring, m.Membership.Status)
		assert.Equal(t, 3, m.Membership.DaysLeft)
	}

	page, err = f.svc.List(ctx, ListMembersInput{Status: "expired"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Matches)

	page, err = f.svc.List(ctx, ListMembersInput{RangeDays: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Matches)

	page, err = f.svc.List(ctx, ListMembersInput{Page: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Members, domain.MembersPageSize)

	_, err = f.svc.List(ctx, ListMembersInput{Status: "frozen"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.List(ctx, ListMembersInput{RangeDays: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMemberServiceVerify(t *testing.T) {
	f := newMemberFixture(t)
	f.seed("m1", "BG-ACTIVE01", "0911", at(2025, 3, 1), at(2025, 3, 15))
	f.seed("m2", "BG-EXPIRED1", "0922", at(2025, 1, 1), at(2025, 2, 1))
	inactive := f.seed("m3", "BG-INACTIV1", "0933", at(2025, 3, 1), at(2025, 4, 1))
	inactive.IsActive = false
	f.repo.put(inactive)
	f.seed("m4", "BG-DELETED1", "0944", at(2025, 3, 1), at(2025, 4, 1))
	ctx := context.Background()
	require.NoError(t, f.svc.Delete(ctx, "m4"))

	v, err := f.svc.Verify(ctx, " bg-active01 ")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	require.NotNil(t, v.Member)
	assert.Equal(t, "BG-ACTIVE01", v.Member.MemberCode)
	assert.Equal(t, 5, v.Member.DaysLeft)
	assert.Equal(t, domain.DefaultAvatar, v.Member.Avatar)

	for _, code := range []string{"BG-EXPIRED1", "BG-INACTIV1", "BG-DELETED1", "BG-UNKNOWN"} {
		v, err := f.svc.Verify(ctx, code)
		require.NoError(t, err, code)
		assert.False(t, v.Valid, code)
		assert.Nil(t, v.Member, code)
		assert.Equal(t, accessDenied, v.Message, code)
	}
}

func TestMemberServiceDelete(t *testing.T) {
	f := newMemberFixture(t)
	f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, "m1"))
	_, err := f.svc.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "m1"), domain.ErrNotFound)
	assert.Equal(t, 1, f.cache.invalidations())
}

func TestMemberServiceUploadAvatar(t *testing.T) {
	f := newMemberFixture(t)
	f.seed("m1", "BG-00000001", "0911", at(2025, 3, 1), at(2025, 4, 1))
	ctx := context.Background()

	_, err := f.svc.UploadAvatar(ctx, "m1", []byte("GIF89a"), "application/pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.UploadAvatar(ctx, "m1", nil, "image/png")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	member, err := f.svc.UploadAvatar(ctx, "m1", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	require.Len(t, f.avatars.keys, 1)
	key := f.avatars.keys[0]
	assert.True(t, strings.HasPrefix(key, "members/m1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, memAvatarBase+key, member.Avatar)
	assert.Empty(t, f.avatars.removed)

	// a second upload replaces the first photo
	second, err := f.svc.UploadAvatar(ctx, "m1", []byte("RIFF"), "image/webp")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(second.Avatar, ".webp"))
	assert.Equal(t, []string{member.Avatar}, f.avatars.removed)

	f.svc.avatars = nil
	_, err = f.svc.UploadAvatar(ctx, "m1", []byte{1}, "image/png")
	assert.Error(t, err)
}

func TestMemberServiceRefreshAll(t *testing.T) {
	setup := func(t *testing.T) *memberFixture {
		f := newMemberFixture(t)
		// stored as active but ended last week
		f.seed("m1", "BG-00000001", "0911", at(2025, 2, 3), at(2025, 3, 3))
		// consistent
		ok := f.seed("m2", "BG-00000002", "0922", at(2025, 3, 1), at(2025, 4, 1))
		ok.CreatedAt = ok.CreatedAt.Add(time.Hour)
		f.repo.put(ok)
		// wrong stored duration
		dur := f.seed("m3", "BG-00000003", "0933", at(2025, 1, 1), at(2025, 4, 1))
		dur.CreatedAt = dur.CreatedAt.Add(2 * time.Hour)
		f.repo.put(dur)
		// end before start
		bad := f.seed("m4", "BG-00000004", "0944", at(2025, 4, 1), at(2025, 3, 1))
		bad.CreatedAt = bad.CreatedAt.Add(3 * time.Hour)
		f.repo.put(bad)
		return f
	}

	t.Run("dry run reports without writing", func(t *testing.T) {
		f := setup(t)
		var drifted []string
		report, err := f.svc.RefreshAll(context.Background(), true, func(before, after *domain.Member) {
			drifted = append(drifted, before.ID)
		})
		require.NoError(t, err)
		assert.Equal(t, &ReconcileReport{Scanned: 4, Drifted: 2, Corrected: 0, Skipped: 1}, report)
		assert.ElementsMatch(t, []string{"m1", "m3"}, drifted)
		assert.Equal(t, domain.StatusActive, f.repo.get("m1").Membership.Status)
		assert.Zero(t, f.cache.invalidations())
	})

	t.Run("corrections are written", func(t *testing.T) {
		f := setup(t)
		report, err := f.svc.RefreshAll(context.Background(), false, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Corrected)

		expired := f.repo.get("m1")
		assert.Equal(t, domain.StatusExpired, expired.Membership.Status)
		assert.False(t, expired.IsActive)

		assert.Equal(t, 3, f.repo.get("m3").Membership.DurationMonths)
		assert.Equal(t, int64(1), f.repo.get("m2").Version)
		assert.Equal(t, 1, f.cache.invalidations())
	})
}
