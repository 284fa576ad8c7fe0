package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyaltyLedgerAPI/internal/achievement"
	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/user"
)

type AchievementService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewAchievementService(db *pgxpool.Pool, notifier *NotificationService) *AchievementService {
	return &AchievementService{db: db, notifier: notifier}
}

// ListForUser returns the active catalog with unlock status. Entries
// whose criteria require a different role are hidden; role gating only
// shapes the listing, never the unlock evaluation.
func (s *AchievementService) ListForUser(ctx context.Context, clerkID string) ([]*achievement.WithStatus, error) {
	var userID uuid.UUID
	var role user.Role
	err := s.db.QueryRow(ctx, `SELECT id, role FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT a.id, a.name, a.description, a.icon, a.category, a.tier, a.criteria, a.points_reward, a.badge_id, a.border_id, a.is_active, a.created_at,
		u.unlocked_at
	FROM achievements a
	LEFT JOIN achievement_unlocks u ON u.achievement_id = a.id AND u.user_id = $1
	WHERE a.is_active = true
	ORDER BY a.category, a.points_reward
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	defer rows.Close()

	var list []*achievement.WithStatus
	for rows.Next() {
		a := &achievement.WithStatus{}
		var criteriaRaw []byte
		err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.Icon,
			&a.Category,
			&a.Tier,
			&criteriaRaw,
			&a.PointsReward,
			&a.BadgeID,
			&a.BorderID,
			&a.IsActive,
			&a.CreatedAt,
			&a.UnlockedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		if err := json.Unmarshal(criteriaRaw, &a.Criteria); err != nil {
			return nil, fmt.Errorf("failed to decode criteria for achievement %s: %w", a.ID, err)
		}
		a.Unlocked = a.UnlockedAt != nil

		if !a.VisibleTo(string(role)) {
			continue
		}
		list = append(list, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}

	return list, nil
}

// Evaluate runs the rule engine for one user: gathers a snapshot,
// checks every active achievement not yet unlocked, and unlocks the
// ones whose criteria are satisfied. Each unlock commits its record,
// point credit, and any linked cosmetic grant as one unit; the
// (user, achievement) uniqueness constraint makes concurrent passes
// credit at most once.
func (s *AchievementService) Evaluate(ctx context.Context, clerkID string) ([]*achievement.Achievement, error) {
	var userID uuid.UUID
	var role user.Role
	err := s.db.QueryRow(ctx, `SELECT id, role FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if role == user.RoleAdmin {
		return nil, nil
	}

	snap, err := s.gatherSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.lockedAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unlocked []*achievement.Achievement
	for _, a := range candidates {
		if !achievement.Satisfied(a.Criteria, *snap) {
			continue
		}
		won, err := s.unlock(ctx, userID, a)
		if err != nil {
			return nil, err
		}
		if won {
			unlocked = append(unlocked, a)
			s.notifyUnlock(ctx, userID, a)
		}
	}

	return unlocked, nil
}

// gatherSnapshot assembles the state the criteria evaluate against.
func (s *AchievementService) gatherSnapshot(ctx context.Context, userID uuid.UUID) (*achievement.Snapshot, error) {
	snap := &achievement.Snapshot{}

	err := s.db.QueryRow(ctx, `
	SELECT COALESCE(l.current_streak, 0), COALESCE(l.longest_streak, 0), COALESCE(l.tier, 'bronze'),
		u.profile_complete, u.onboarding_complete,
		(SELECT COUNT(*) FROM social_shares WHERE user_id = u.id),
		(SELECT COUNT(*) FROM referrals WHERE referrer_id = u.id),
		(SELECT COUNT(*) FROM submissions WHERE user_id = u.id),
		(SELECT COALESCE(SUM(amount_cents), 0) FROM revenue_entries WHERE user_id = u.id),
		(SELECT COUNT(*) FROM feedback WHERE user_id = u.id)
	FROM users u
	LEFT JOIN point_ledgers l ON l.user_id = u.id
	WHERE u.id = $1
	`, userID).Scan(
		&snap.CurrentStreak,
		&snap.LongestStreak,
		&snap.AccountTier,
		&snap.ProfileComplete,
		&snap.OnboardingComplete,
		&snap.SocialShares,
		&snap.ReferralSignups,
		&snap.Submissions,
		&snap.LifetimeRevenueCents,
		&snap.FeedbackCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to gather achievement snapshot: %w", err)
	}

	return snap, nil
}

// lockedAchievements returns the active achievements the user has not
// unlocked yet.
func (s *AchievementService) lockedAchievements(ctx context.Context, userID uuid.UUID) ([]*achievement.Achievement, error) {
	rows, err := s.db.Query(ctx, `
	SELECT a.id, a.name, a.description, a.icon, a.category, a.tier, a.criteria, a.points_reward, a.badge_id, a.border_id, a.is_active, a.created_at
	FROM achievements a
	WHERE a.is_active = true
		AND NOT EXISTS (SELECT 1 FROM achievement_unlocks u WHERE u.achievement_id = a.id AND u.user_id = $1)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch locked achievements: %w", err)
	}
	defer rows.Close()

	var list []*achievement.Achievement
	for rows.Next() {
		a := &achievement.Achievement{}
		var criteriaRaw []byte
		err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.Icon,
			&a.Category,
			&a.Tier,
			&criteriaRaw,
			&a.PointsReward,
			&a.BadgeID,
			&a.BorderID,
			&a.IsActive,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		if err := json.Unmarshal(criteriaRaw, &a.Criteria); err != nil {
			return nil, fmt.Errorf("failed to decode criteria for achievement %s: %w", a.ID, err)
		}
		list = append(list, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}

	return list, nil
}

// unlock commits one achievement for one user: unlock record, point
// credit, and linked cosmetic grants, atomically. Returns false when a
// concurrent pass unlocked it first.
func (s *AchievementService) unlock(ctx context.Context, userID uuid.UUID, a *achievement.Achievement) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
	INSERT INTO achievement_unlocks (id, user_id, achievement_id, unlocked_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, uuid.New(), userID, a.ID)
	if err != nil {
		return false, fmt.Errorf("failed to record unlock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	var leveled *ledger.TierLevelUpMeta
	if a.PointsReward > 0 {
		_, _, leveled, err = awardTx(ctx, tx, userID, ledger.EventAchievementUnlock, a.PointsReward,
			fmt.Sprintf("Unlocked achievement: %s", a.Name),
			ledger.AchievementMeta{AchievementID: a.ID, Name: a.Name}, nil)
		if err != nil {
			return false, err
		}
	}

	if err := grantCosmeticTx(ctx, tx, userID, a, "badge", a.BadgeID); err != nil {
		return false, err
	}
	if err := grantCosmeticTx(ctx, tx, userID, a, "border", a.BorderID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifier.NotifyTierUp(ctx, userID, leveled)
	return true, nil
}

func grantCosmeticTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, a *achievement.Achievement, kind string, cosmeticID *string) error {
	if cosmeticID == nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
	INSERT INTO user_cosmetics (id, user_id, cosmetic_type, cosmetic_id, source_achievement_id, granted_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, cosmetic_type, cosmetic_id) DO NOTHING
	`, uuid.New(), userID, kind, *cosmeticID, a.ID)
	if err != nil {
		return fmt.Errorf("failed to grant %s: %w", kind, err)
	}
	return nil
}

type UpsertAchievementRequest struct {
	Name         string               `json:"name" validate:"required"`
	Description  string               `json:"description"`
	Icon         string               `json:"icon"`
	Category     string               `json:"category"`
	Tier         string               `json:"tier"`
	Criteria     achievement.Criteria `json:"criteria" validate:"required"`
	PointsReward int                  `json:"points_reward"`
	BadgeID      *string              `json:"badge_id"`
	BorderID     *string              `json:"border_id"`
	IsActive     *bool                `json:"is_active"`
}

func (req *UpsertAchievementRequest) validate() error {
	if req.Name == "" {
		return apperrors.Validation("name is required")
	}
	if req.Criteria.Kind == "" {
		return apperrors.Validation("criteria kind is required")
	}
	if req.PointsReward < 0 {
		return apperrors.Validation("points_reward must be non-negative")
	}
	return nil
}

// CreateAchievement adds a catalog definition.
func (s *AchievementService) CreateAchievement(ctx context.Context, req *UpsertAchievementRequest) (*achievement.Achievement, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	criteriaRaw, err := json.Marshal(req.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	a := &achievement.Achievement{Criteria: req.Criteria}
	err = s.db.QueryRow(ctx, `
	INSERT INTO achievements (id, name, description, icon, category, tier, criteria, points_reward, badge_id, border_id, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	RETURNING id, name, description, icon, category, tier, points_reward, badge_id, border_id, is_active, created_at
	`,
		uuid.New(),
		req.Name,
		req.Description,
		req.Icon,
		req.Category,
		req.Tier,
		criteriaRaw,
		req.PointsReward,
		req.BadgeID,
		req.BorderID,
		isActive,
	).Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&a.Icon,
		&a.Category,
		&a.Tier,
		&a.PointsReward,
		&a.BadgeID,
		&a.BorderID,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create achievement: %w", err)
	}
	return a, nil
}

// UpdateAchievement edits a catalog definition. Existing unlocks keep
// the points they were credited.
func (s *AchievementService) UpdateAchievement(ctx context.Context, achievementID uuid.UUID, req *UpsertAchievementRequest) (*achievement.Achievement, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	criteriaRaw, err := json.Marshal(req.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	a := &achievement.Achievement{Criteria: req.Criteria}
	err = s.db.QueryRow(ctx, `
	UPDATE achievements
	SET name = $2, description = $3, icon = $4, category = $5, tier = $6, criteria = $7,
		points_reward = $8, badge_id = $9, border_id = $10, is_active = $11
	WHERE id = $1
	RETURNING id, name, description, icon, category, tier, points_reward, badge_id, border_id, is_active, created_at
	`,
		achievementID,
		req.Name,
		req.Description,
		req.Icon,
		req.Category,
		req.Tier,
		criteriaRaw,
		req.PointsReward,
		req.BadgeID,
		req.BorderID,
		isActive,
	).Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&a.Icon,
		&a.Category,
		&a.Tier,
		&a.PointsReward,
		&a.BadgeID,
		&a.BorderID,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("achievement")
		}
		return nil, fmt.Errorf("failed to update achievement: %w", err)
	}
	return a, nil
}

func (s *AchievementService) notifyUnlock(ctx context.Context, userID uuid.UUID, a *achievement.Achievement) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, userID, "achievement_unlocked", "Achievement unlocked!",
		fmt.Sprintf("You earned \"%s\" (+%d points)", a.Name, a.PointsReward),
		map[string]any{"achievement_id": a.ID.String()})
	if err != nil {
		log.Printf("Evaluate: failed to notify unlock of %s for user %s: %v", a.ID, userID, err)
	}
}
