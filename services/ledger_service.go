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
	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/referral"
	"loyaltyLedgerAPI/internal/tier"
	"loyaltyLedgerAPI/internal/user"
)

type LedgerService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewLedgerService(db *pgxpool.Pool, notifier *NotificationService) *LedgerService {
	return &LedgerService{db: db, notifier: notifier}
}

// resolveUserID maps the authenticated Clerk identity to the internal
// user id and role.
func resolveUserID(ctx context.Context, q pgx.Tx, clerkID string) (uuid.UUID, user.Role, error) {
	var userID uuid.UUID
	var role user.Role
	err := q.QueryRow(ctx, `SELECT id, role FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", apperrors.NotFound("user")
		}
		return uuid.Nil, "", fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, role, nil
}

// lockAccountTx loads the user's ledger row under FOR UPDATE, creating
// it first if this is the user's first ledger interaction. The row lock
// is the serialization boundary for every balance mutation.
func lockAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*ledger.Account, error) {
	for {
		acct := &ledger.Account{}
		err := tx.QueryRow(ctx, `
		SELECT user_id, points, total_earned, total_spent, tier, current_streak, longest_streak, last_check_in, referral_code, created_at, updated_at
		FROM point_ledgers
		WHERE user_id = $1
		FOR UPDATE
		`, userID).Scan(
			&acct.UserID,
			&acct.Points,
			&acct.TotalEarned,
			&acct.TotalSpent,
			&acct.Tier,
			&acct.CurrentStreak,
			&acct.LongestStreak,
			&acct.LastCheckIn,
			&acct.ReferralCode,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to lock ledger: %w", err)
		}

		if err := insertAccountTx(ctx, tx, userID); err != nil {
			return nil, err
		}
	}
}

// insertAccountTx creates a zeroed ledger row with a fresh referral
// code. Code generation has no reservation phase: the insert is
// conflict-tolerant, and a code collision is detected by the row not
// landing, which triggers a redraw.
func insertAccountTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := referral.NewCode()
		if err != nil {
			return apperrors.Internal("referral code generation failed: %v", err)
		}

		result, err := tx.Exec(ctx, `
		INSERT INTO point_ledgers (user_id, points, total_earned, total_spent, tier, current_streak, longest_streak, referral_code, created_at, updated_at)
		VALUES ($1, 0, 0, 0, $2, 0, 0, $3, NOW(), NOW())
		ON CONFLICT DO NOTHING
		`, userID, tier.Bronze, code)
		if err != nil {
			return fmt.Errorf("failed to initialize ledger: %w", err)
		}
		if result.RowsAffected() == 1 {
			return nil
		}

		// Conflict: either a concurrent initialize won (the caller's
		// re-select will find the row) or the referral code collided
		// (redraw and retry).
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM point_ledgers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check ledger existence: %w", err)
		}
		if exists {
			return nil
		}
	}
	return apperrors.Internal("could not allocate a unique referral code")
}

// writeEventTx appends one immutable row to the event log.
func writeEventTx(ctx context.Context, tx pgx.Tx, event *ledger.Event) error {
	raw, err := ledger.MarshalMetadata(event.Metadata)
	if err != nil {
		return apperrors.Internal("failed to encode event metadata: %v", err)
	}

	err = tx.QueryRow(ctx, `
	INSERT INTO ledger_events (id, user_id, event_type, points_delta, description, metadata, admin_id, admin_reason, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	RETURNING created_at
	`,
		event.ID,
		event.UserID,
		event.EventType,
		event.PointsDelta,
		event.Description,
		raw,
		event.AdminID,
		event.AdminReason,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write ledger event: %w", err)
	}
	return nil
}

// awardTx credits points inside the caller's transaction. The ledger
// row must not be mutated concurrently, which lockAccountTx guarantees.
// If the credit crosses a tier threshold a synthetic tier_level_up
// event is written alongside the primary one, and the change is
// returned so the caller can notify after commit.
func awardTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, eventType ledger.EventType, amount int, description string, meta ledger.Metadata, attr *ledger.AdminAttribution) (*ledger.Account, *ledger.Event, *ledger.TierLevelUpMeta, error) {
	if amount <= 0 {
		return nil, nil, nil, apperrors.Validation("award amount must be a positive integer, got %d", amount)
	}

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	previousTier := acct.Tier
	newTotalEarned := acct.TotalEarned + amount
	newPoints := acct.Points + amount
	newTier := tier.FromTotalEarned(newTotalEarned)

	err = tx.QueryRow(ctx, `
	UPDATE point_ledgers
	SET points = $2, total_earned = $3, tier = $4, updated_at = NOW()
	WHERE user_id = $1
	RETURNING points, total_earned, total_spent, updated_at
	`, userID, newPoints, newTotalEarned, newTier).Scan(
		&acct.Points,
		&acct.TotalEarned,
		&acct.TotalSpent,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to credit ledger: %w", err)
	}
	acct.Tier = newTier

	if acct.Points != acct.TotalEarned-acct.TotalSpent {
		return nil, nil, nil, apperrors.Internal("ledger invariant violated for user %s: points=%d earned=%d spent=%d",
			userID, acct.Points, acct.TotalEarned, acct.TotalSpent)
	}

	event := &ledger.Event{
		ID:          uuid.New(),
		UserID:      userID,
		EventType:   eventType,
		PointsDelta: amount,
		Description: description,
		Metadata:    meta,
	}
	if attr != nil {
		event.AdminID = &attr.AdminID
		event.AdminReason = &attr.Reason
	}
	if err := writeEventTx(ctx, tx, event); err != nil {
		return nil, nil, nil, err
	}

	var leveled *ledger.TierLevelUpMeta
	if newTier != previousTier {
		leveled = &ledger.TierLevelUpMeta{PreviousTier: previousTier, NewTier: newTier}
		levelUp := &ledger.Event{
			ID:          uuid.New(),
			UserID:      userID,
			EventType:   ledger.EventTierLevelUp,
			PointsDelta: 0,
			Description: fmt.Sprintf("Leveled up from %s to %s", previousTier, newTier),
			Metadata:    *leveled,
		}
		if err := writeEventTx(ctx, tx, levelUp); err != nil {
			return nil, nil, nil, err
		}
	}

	return acct, event, leveled, nil
}

// deductTx debits points inside the caller's transaction. Tier is
// recomputed from total_earned, which a deduction never changes, so
// spending can never demote a tier.
func deductTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, eventType ledger.EventType, amount int, description string, meta ledger.Metadata, attr *ledger.AdminAttribution) (*ledger.Account, *ledger.Event, error) {
	if amount <= 0 {
		return nil, nil, apperrors.Validation("deduct amount must be a positive integer, got %d", amount)
	}

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	if acct.Points < amount {
		return nil, nil, apperrors.InsufficientBalance(acct.Points, amount)
	}

	newPoints := acct.Points - amount
	newTotalSpent := acct.TotalSpent + amount

	err = tx.QueryRow(ctx, `
	UPDATE point_ledgers
	SET points = $2, total_spent = $3, tier = $4, updated_at = NOW()
	WHERE user_id = $1
	RETURNING points, total_earned, total_spent, updated_at
	`, userID, newPoints, newTotalSpent, tier.FromTotalEarned(acct.TotalEarned)).Scan(
		&acct.Points,
		&acct.TotalEarned,
		&acct.TotalSpent,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit ledger: %w", err)
	}

	if acct.Points != acct.TotalEarned-acct.TotalSpent {
		return nil, nil, apperrors.Internal("ledger invariant violated for user %s: points=%d earned=%d spent=%d",
			userID, acct.Points, acct.TotalEarned, acct.TotalSpent)
	}

	event := &ledger.Event{
		ID:          uuid.New(),
		UserID:      userID,
		EventType:   eventType,
		PointsDelta: -amount,
		Description: description,
		Metadata:    meta,
	}
	if attr != nil {
		event.AdminID = &attr.AdminID
		event.AdminReason = &attr.Reason
	}
	if err := writeEventTx(ctx, tx, event); err != nil {
		return nil, nil, err
	}

	return acct, event, nil
}

// ensureEarnEligible enforces the recipient policy: admin accounts are
// excluded from earning points entirely.
func ensureEarnEligible(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	var role user.Role
	err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("user")
		}
		return fmt.Errorf("failed to check recipient role: %w", err)
	}
	if role == user.RoleAdmin {
		return apperrors.Ineligible("admin accounts do not earn points")
	}
	return nil
}

// Initialize creates the user's ledger if it does not exist and returns
// it. Safe to call any number of times.
func (s *LedgerService) Initialize(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return acct, nil
}

// GetAccount returns the caller's ledger, creating it on first touch.
func (s *LedgerService) GetAccount(ctx context.Context, clerkID string) (*ledger.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userID, _, err := resolveUserID(ctx, tx, clerkID)
	if err != nil {
		return nil, err
	}

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return acct, nil
}

// Award credits points to a user. Admin-triggered awards carry an
// attribution that lands on the audit event.
func (s *LedgerService) Award(ctx context.Context, userID uuid.UUID, eventType ledger.EventType, amount int, description string, meta ledger.Metadata, attr *ledger.AdminAttribution) (*ledger.Account, *ledger.Event, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureEarnEligible(ctx, tx, userID); err != nil {
		return nil, nil, err
	}

	acct, event, leveled, err := awardTx(ctx, tx, userID, eventType, amount, description, meta, attr)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifier.NotifyTierUp(ctx, userID, leveled)
	return acct, event, nil
}

// Deduct debits points from a user, failing without side effects when
// the balance does not cover the amount.
func (s *LedgerService) Deduct(ctx context.Context, userID uuid.UUID, eventType ledger.EventType, amount int, description string, meta ledger.Metadata, attr *ledger.AdminAttribution) (*ledger.Account, *ledger.Event, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, event, err := deductTx(ctx, tx, userID, eventType, amount, description, meta, attr)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return acct, event, nil
}

// TrackSocialShare records a share and credits the fixed share bonus.
func (s *LedgerService) TrackSocialShare(ctx context.Context, clerkID string, platform string) (*ledger.Account, error) {
	if platform == "" {
		return nil, apperrors.Validation("platform is required")
	}

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

	_, err = tx.Exec(ctx, `
	INSERT INTO social_shares (id, user_id, platform, created_at)
	VALUES ($1, $2, $3, NOW())
	`, uuid.New(), userID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to record social share: %w", err)
	}

	acct, _, leveled, err := awardTx(ctx, tx, userID, ledger.EventSocialShare, SocialSharePoints,
		fmt.Sprintf("Shared on %s", platform), ledger.SocialShareMeta{Platform: platform}, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifier.NotifyTierUp(ctx, userID, leveled)
	return acct, nil
}

// SocialSharePoints is the fixed credit per tracked share.
const SocialSharePoints = 5

// GetEvents returns a page of the user's event history, newest first.
func (s *LedgerService) GetEvents(ctx context.Context, clerkID string, page, pageSize int) ([]*ledger.Event, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperrors.NotFound("user")
		}
		return nil, 0, fmt.Errorf("failed to resolve user: %w", err)
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_events WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT id, user_id, event_type, points_delta, description, metadata, admin_id, admin_reason, created_at
	FROM ledger_events
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer rows.Close()

	var events []*ledger.Event
	for rows.Next() {
		e := &ledger.Event{}
		var raw []byte
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.EventType,
			&e.PointsDelta,
			&e.Description,
			&raw,
			&e.AdminID,
			&e.AdminReason,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.Metadata, err = ledger.UnmarshalMetadata(e.EventType, raw); err != nil {
			// A decode failure on old rows should not hide the history.
			log.Printf("GetEvents: dropping undecodable metadata on event %s: %v", e.ID, err)
			e.Metadata = nil
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating events: %w", err)
	}

	return events, total, nil
}

// AdminAdjust applies a manual award or deduction. Reason is mandatory
// and stored on the event; admin accounts can never be recipients.
func (s *LedgerService) AdminAdjust(ctx context.Context, adminID uuid.UUID, targetUserID uuid.UUID, amount int, reason string) (*ledger.Account, error) {
	if amount == 0 {
		return nil, apperrors.Validation("adjustment amount must be non-zero")
	}
	if len(reason) < 3 {
		return nil, apperrors.Validation("a reason of at least 3 characters is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	attr := &ledger.AdminAttribution{AdminID: adminID, Reason: reason}
	meta := ledger.AdminAdjustmentMeta{Note: reason}

	var acct *ledger.Account
	var leveled *ledger.TierLevelUpMeta
	if amount > 0 {
		if err := ensureEarnEligible(ctx, tx, targetUserID); err != nil {
			return nil, err
		}
		acct, _, leveled, err = awardTx(ctx, tx, targetUserID, ledger.EventAdminAward, amount, "Manual adjustment", meta, attr)
	} else {
		acct, _, err = deductTx(ctx, tx, targetUserID, ledger.EventAdminDeduct, -amount, "Manual adjustment", meta, attr)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifier.NotifyTierUp(ctx, targetUserID, leveled)
	return acct, nil
}

// touchStreakTx updates the streak columns after a successful check-in.
func touchStreakTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, streakDay int, day time.Time) (longest int, err error) {
	err = tx.QueryRow(ctx, `
	UPDATE point_ledgers
	SET current_streak = $2,
		longest_streak = GREATEST(longest_streak, $2),
		last_check_in = $3,
		updated_at = NOW()
	WHERE user_id = $1
	RETURNING longest_streak
	`, userID, streakDay, day).Scan(&longest)
	if err != nil {
		return 0, fmt.Errorf("failed to update streak: %w", err)
	}
	return longest, nil
}
