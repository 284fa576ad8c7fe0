package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/checkin"
	"loyaltyLedgerAPI/internal/stats"
)

// AnalyticsService is a read-side consumer of the ledger event log. It
// never writes; all KPIs are recomputed on request.
type AnalyticsService struct {
	db *pgxpool.Pool
}

func NewAnalyticsService(db *pgxpool.Pool) *AnalyticsService {
	return &AnalyticsService{db: db}
}

// GetKPIs aggregates the admin dashboard numbers over the last `days`
// days of events.
func (s *AnalyticsService) GetKPIs(ctx context.Context, days int) (*stats.AdminKPIs, error) {
	if days < 1 || days > 365 {
		days = 30
	}
	since := checkin.DateUTC(time.Now()).AddDate(0, 0, -days)

	kpis := &stats.AdminKPIs{
		EventTypeBreakdown:  make(map[string]int),
		TierDistribution:    make(map[string]int),
		RedemptionsByStatus: make(map[string]int),
	}

	err := s.db.QueryRow(ctx, `
	SELECT
		(SELECT COUNT(*) FROM users WHERE role != 'admin'),
		(SELECT COALESCE(SUM(points_delta), 0) FROM ledger_events WHERE points_delta > 0),
		(SELECT COALESCE(SUM(-points_delta), 0) FROM ledger_events WHERE points_delta < 0),
		(SELECT COUNT(*) FROM point_ledgers WHERE current_streak > 0 AND last_check_in >= $1)
	`, checkin.DateUTC(time.Now()).AddDate(0, 0, -1)).Scan(
		&kpis.TotalUsers,
		&kpis.TotalPointsAwarded,
		&kpis.TotalPointsSpent,
		&kpis.ActiveStreaks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate totals: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		COALESCE(SUM(points_delta) FILTER (WHERE points_delta > 0), 0) AS awarded,
		COALESCE(SUM(-points_delta) FILTER (WHERE points_delta < 0), 0) AS spent
	FROM ledger_events
	WHERE created_at >= $1
	GROUP BY day
	ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d stats.DailyPoints
		if err := rows.Scan(&d.Day, &d.Awarded, &d.Spent); err != nil {
			return nil, fmt.Errorf("failed to scan daily points: %w", err)
		}
		kpis.PointsByDay = append(kpis.PointsByDay, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily points: %w", err)
	}

	if err := s.countInto(ctx, kpis.EventTypeBreakdown, `
	SELECT event_type, COUNT(*) FROM ledger_events WHERE created_at >= $1 GROUP BY event_type
	`, since); err != nil {
		return nil, err
	}

	if err := s.countInto(ctx, kpis.TierDistribution, `
	SELECT l.tier, COUNT(*) FROM point_ledgers l JOIN users u ON u.id = l.user_id WHERE u.role != 'admin' GROUP BY l.tier
	`); err != nil {
		return nil, err
	}

	if err := s.countInto(ctx, kpis.RedemptionsByStatus, `
	SELECT status, COUNT(*) FROM redemptions GROUP BY status
	`); err != nil {
		return nil, err
	}

	return kpis, nil
}

func (s *AnalyticsService) countInto(ctx context.Context, dest map[string]int, query string, args ...any) error {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to aggregate counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan count: %w", err)
		}
		dest[key] = count
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating counts: %w", err)
	}
	return nil
}

// VerifyLedgerIntegrity cross-checks the balance invariant across all
// accounts. Intended for the admin surface and scheduled audits.
func (s *AnalyticsService) VerifyLedgerIntegrity(ctx context.Context) error {
	var broken int
	err := s.db.QueryRow(ctx, `
	SELECT COUNT(*)
	FROM point_ledgers
	WHERE points != total_earned - total_spent
	`).Scan(&broken)
	if err != nil {
		return fmt.Errorf("failed to verify ledgers: %w", err)
	}
	if broken > 0 {
		return apperrors.Internal("%d ledgers violate the balance invariant", broken)
	}
	return nil
}
