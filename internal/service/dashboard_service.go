package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DashboardService aggregates the figures of the back-office dashboard
type DashboardService struct {
	repo  domain.MemberRepository
	cache domain.CacheRepository
	loc   *time.Location
	now   func() time.Time
}

// NewDashboardService creates a new DashboardService. cache may be nil.
func NewDashboardService(repo domain.MemberRepository, cache domain.CacheRepository, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		repo:  repo,
		cache: cache,
		loc:   loc,
		now:   time.Now,
	}
}

// MonthlyCount is the number of members who joined in one YYYY-MM month
type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// StatusBreakdown splits live members by membership status. Deactivated members
// are only counted as inactive.
type StatusBreakdown struct {
	Active   int64 `json:"active"`
	Expiring int64 `json:"expiring"`
	Expired  int64 `json:"expired"`
	Inactive int64 `json:"inactive"`
}

// GenderBreakdown counts live members per gender
type GenderBreakdown struct {
	Male   int64 `json:"male"`
	Female int64 `json:"female"`
	Other  int64 `json:"other"`
}

// DashboardStats is the payload of the dashboard
type DashboardStats struct {
	TotalMembers   int64           `json:"total_members"`
	ActiveMembers  int64           `json:"active_members"`
	NewMembers     int64           `json:"new_members"`
	TotalRevenue   float64         `json:"total_revenue"`
	MonthlyMembers []MonthlyCount  `json:"monthly_members"`
	Status         StatusBreakdown `json:"status"`
	Gender         GenderBreakdown `json:"gender"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

const monthBuckets = 12

// GetStats returns the dashboard figures. rangeDays limits new members and revenue to
// members created in the last rangeDays days; 0 means all time.
func (s *DashboardService) GetStats(ctx context.Context, rangeDays int) (*DashboardStats, error) {
	if rangeDays < 0 {
		return nil, fmt.Errorf("%w: range must not be negative", domain.ErrInvalidInput)
	}

	key := domain.DashboardStatsKey(rangeDays)
	if s.cache != nil {
		var cached DashboardStats
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Printf("[Dashboard] cache read failed: %v", err)
		}
	}

	stats, err := s.compute(ctx, rangeDays)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, domain.DashboardStatsTTL); err != nil {
			log.Printf("[Dashboard] cache write failed: %v", err)
		}
	}
	return stats, nil
}

func (s *DashboardService) compute(ctx context.Context, rangeDays int) (*DashboardStats, error) {
	now := s.now()
	stats := &DashboardStats{GeneratedAt: now}

	var since *time.Time
	if rangeDays > 0 {
		t := now.AddDate(0, 0, -rangeDays)
		since = &t
	}

	months := lastMonths(now.In(s.loc), monthBuckets)
	firstMonth, _ := time.ParseInLocation("2006-01", months[0], s.loc)

	g, gCtx := errgroup.WithContext(ctx)

	count := func(dst *int64, filter domain.MemberFilter) func() error {
		return func() error {
			filter.Now = now
			n, err := s.repo.Count(gCtx, filter)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}

	var byMonth, byGender map[string]int64

	g.Go(count(&stats.TotalMembers, domain.MemberFilter{}))
	g.Go(count(&stats.NewMembers, domain.MemberFilter{CreatedSince: since}))
	g.Go(count(&stats.Status.Active, domain.MemberFilter{ActiveOnly: true, Status: domain.StatusActive}))
	g.Go(count(&stats.Status.Expiring, domain.MemberFilter{ActiveOnly: true, Status: domain.StatusExpiring}))
	g.Go(count(&stats.Status.Expired, domain.MemberFilter{ActiveOnly: true, Status: domain.StatusExpired}))
	g.Go(count(&stats.Status.Inactive, domain.MemberFilter{InactiveOnly: true}))
	g.Go(func() error {
		total, err := s.repo.SumLatestPayments(gCtx, since)
		stats.TotalRevenue = total
		return err
	})
	g.Go(func() error {
		var err error
		byMonth, err = s.repo.CountByCreatedMonth(gCtx, firstMonth, s.loc)
		return err
	})
	g.Go(func() error {
		var err error
		byGender, err = s.repo.CountByGender(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard: %w", err)
	}

	stats.ActiveMembers = stats.Status.Active + stats.Status.Expiring
	stats.MonthlyMembers = make([]MonthlyCount, 0, len(months))
	for _, m := range months {
		stats.MonthlyMembers = append(stats.MonthlyMembers, MonthlyCount{Month: m, Count: byMonth[m]})
	}
	stats.Gender = GenderBreakdown{
		Male:   byGender[domain.GenderMale],
		Female: byGender[domain.GenderFemale],
		Other:  byGender[domain.GenderOther],
	}
	return stats, nil
}

// lastMonths returns n YYYY-MM labels ending with the month of now, oldest first
func lastMonths(now time.Time, n int) []string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = first.AddDate(0, i-(n-1), 0).Format("2006-01")
	}
	return out
}
