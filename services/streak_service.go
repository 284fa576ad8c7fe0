package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/checkin"
	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/user"
)

type StreakService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewStreakService(db *pgxpool.Pool, notifier *NotificationService) *StreakService {
	return &StreakService{db: db, notifier: notifier}
}

// CheckIn records today's check-in for the caller. The day boundary is
// the UTC calendar date. Duplicate and concurrent attempts for the same
// day come back as AlreadyCheckedIn, not as errors: the (user, day)
// uniqueness constraint decides the winner, not a lock.
func (s *StreakService) CheckIn(ctx context.Context, clerkID string) (*checkin.Result, error) {
	today := checkin.DateUTC(time.Now())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userID, role, err := resolveUserID(ctx, tx, clerkID)
	if err != nil {
		return nil, err
	}
	if role == user.RoleAdmin {
		return nil, apperrors.Ineligible("admin accounts do not earn points")
	}

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	streakDay := checkin.NextStreak(acct.LastCheckIn, today, acct.CurrentStreak)
	bonus, milestone := checkin.BonusFor(streakDay)

	record := checkin.CheckIn{
		ID:           uuid.New(),
		UserID:       userID,
		Day:          today,
		StreakDay:    streakDay,
		PointsEarned: checkin.BasePoints + bonus,
	}
	result, err := tx.Exec(ctx, `
	INSERT INTO daily_checkins (id, user_id, day, streak_day, points_earned, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, day) DO NOTHING
	`, record.ID, record.UserID, record.Day, record.StreakDay, record.PointsEarned)
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Lost the race (or a plain repeat). Surface the existing record.
		existing, err := s.getCheckIn(ctx, userID, today)
		if err != nil {
			return nil, err
		}
		return &checkin.Result{AlreadyCheckedIn: true, Existing: existing}, nil
	}

	_, _, leveled, err := awardTx(ctx, tx, userID, ledger.EventCheckIn, checkin.BasePoints,
		"Daily check-in", ledger.CheckInMeta{Day: today.Format("2006-01-02"), StreakDay: streakDay}, nil)
	if err != nil {
		return nil, err
	}

	if bonus > 0 {
		description := fmt.Sprintf("%d-day streak bonus", milestone)
		_, _, bonusLeveled, err := awardTx(ctx, tx, userID, ledger.EventStreakBonus, bonus,
			description, ledger.StreakBonusMeta{Milestone: milestone, StreakDay: streakDay}, nil)
		if err != nil {
			return nil, err
		}
		if leveled == nil {
			leveled = bonusLeveled
		}
	}

	longest, err := touchStreakTx(ctx, tx, userID, streakDay, today)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifier.NotifyTierUp(ctx, userID, leveled)

	if bonus > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, userID, "streak_milestone", "Streak milestone!",
			fmt.Sprintf("%d days in a row: +%d bonus points", milestone, bonus),
			map[string]any{"milestone": milestone}); err != nil {
			log.Printf("CheckIn: failed to notify streak milestone for %s: %v", userID, err)
		}
	}

	return &checkin.Result{
		PointsEarned:  checkin.BasePoints + bonus,
		BonusEarned:   bonus,
		StreakDay:     streakDay,
		LongestStreak: longest,
	}, nil
}

func (s *StreakService) getCheckIn(ctx context.Context, userID uuid.UUID, day time.Time) (*checkin.CheckIn, error) {
	c := &checkin.CheckIn{}
	err := s.db.QueryRow(ctx, `
	SELECT id, user_id, day, streak_day, points_earned, created_at
	FROM daily_checkins
	WHERE user_id = $1 AND day = $2
	`, userID, day).Scan(
		&c.ID,
		&c.UserID,
		&c.Day,
		&c.StreakDay,
		&c.PointsEarned,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("check-in")
		}
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}
	return c, nil
}

// GetHistory returns the caller's recent check-ins, newest first.
func (s *StreakService) GetHistory(ctx context.Context, clerkID string, limit int) ([]*checkin.CheckIn, error) {
	if limit < 1 || limit > 100 {
		limit = 30
	}

	rows, err := s.db.Query(ctx, `
	SELECT c.id, c.user_id, c.day, c.streak_day, c.points_earned, c.created_at
	FROM daily_checkins c
	JOIN users u ON u.id = c.user_id
	WHERE u.clerk_id = $1
	ORDER BY c.day DESC
	LIMIT $2
	`, clerkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-in history: %w", err)
	}
	defer rows.Close()

	var history []*checkin.CheckIn
	for rows.Next() {
		c := &checkin.CheckIn{}
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Day,
			&c.StreakDay,
			&c.PointsEarned,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		history = append(history, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}

	return history, nil
}
