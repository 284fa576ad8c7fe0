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
	"loyaltyLedgerAPI/internal/feedback"
	"loyaltyLedgerAPI/internal/leaderboard"
	"loyaltyLedgerAPI/internal/stats"
	"loyaltyLedgerAPI/internal/tier"
	"loyaltyLedgerAPI/internal/user"
)

type UserService struct {
	db        *pgxpool.Pool
	ledger    *LedgerService
	referrals *ReferralService
}

func NewUserService(db *pgxpool.Pool, ledger *LedgerService, referrals *ReferralService) *UserService {
	return &UserService{db: db, ledger: ledger, referrals: referrals}
}

// CreateUser provisions an account from the identity provider's
// user.created event, initializes the ledger, and attributes the
// signup to a referrer when a code was supplied.
func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	role := req.Role
	if role == "" {
		role = user.RoleMember
	}
	if !user.ValidRole(role) {
		return nil, apperrors.Validation("unknown role %q", role)
	}

	u := &user.User{
		ID:        uuid.New().String(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ImageURL:  req.ImageURL,
		Role:      role,
	}

	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, role, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	RETURNING id, clerk_id, email, username, first_name, last_name, image_url, email_verified, role, profile_complete, onboarding_complete, created_at, updated_at
	`

	err := s.db.QueryRow(
		ctx,
		query,
		u.ID,
		u.ClerkID,
		u.Email,
		u.Username,
		u.FirstName,
		u.LastName,
		u.ImageURL,
		u.Role,
	).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.Role,
		&u.ProfileComplete,
		&u.OnboardingComplete,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	userID, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID from database: %w", err)
	}

	if _, err := s.ledger.Initialize(ctx, userID); err != nil {
		return nil, err
	}

	if req.ReferralCode != "" {
		if err := s.referrals.RecordSignup(ctx, req.ReferralCode, userID); err != nil {
			// A bad or stale code should not block account creation.
			log.Printf("CreateUser: referral attribution for %s failed: %v", u.ID, err)
		} else {
			u.ReferredBy = &req.ReferralCode
			if _, err := s.db.Exec(ctx, `UPDATE users SET referred_by = $2 WHERE id = $1`, userID, req.ReferralCode); err != nil {
				log.Printf("CreateUser: failed to store referred_by for %s: %v", u.ID, err)
			}
		}
	}

	return u, nil
}

const userColumns = `id, clerk_id, email, username, first_name, last_name, image_url, email_verified, role, profile_complete, onboarding_complete, referred_by, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.Role,
		&u.ProfileComplete,
		&u.OnboardingComplete,
		&u.ReferredBy,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	query := `
	UPDATE users
	SET
		username = COALESCE(NULLIF($2, ''), username),
		first_name = COALESCE(NULLIF($3, ''), first_name),
		last_name = COALESCE(NULLIF($4, ''), last_name),
		image_url = COALESCE(NULLIF($5, ''), image_url),
		profile_complete = (COALESCE(NULLIF($2, ''), username) != ''
			AND COALESCE(NULLIF($3, ''), first_name) != ''
			AND COALESCE(NULLIF($4, ''), last_name) != ''),
		updated_at = NOW()
	WHERE clerk_id = $1
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, clerkID, req.Username, req.FirstName, req.LastName, req.ImageURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}

func (s *UserService) UpdateEmailVerification(ctx context.Context, clerkID string, verified bool) error {
	_, err := s.db.Exec(ctx, `
	UPDATE users
	SET email_verified = $2, updated_at = NOW()
	WHERE clerk_id = $1
	`, clerkID, verified)
	return err
}

// MarkOnboardingComplete flips the onboarding flag used by achievement
// criteria.
func (s *UserService) MarkOnboardingComplete(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `
	UPDATE users
	SET onboarding_complete = true, updated_at = NOW()
	WHERE clerk_id = $1
	`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to mark onboarding complete: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}

// GetLeaderboard ranks users by lifetime points earned, optionally
// within one tier, and includes the caller's own position even when
// they fall outside the page.
func (s *UserService) GetLeaderboard(ctx context.Context, clerkID string, limit int, tierFilter tier.Tier) (*leaderboard.Leaderboard, error) {
	if limit < 1 || limit > 100 {
		limit = 25
	}
	if tierFilter != "" && !tier.Valid(tierFilter) {
		return nil, apperrors.Validation("unknown tier %q", tierFilter)
	}

	query := `
	WITH ranked AS (
		SELECT
			u.id,
			u.username,
			u.image_url,
			u.clerk_id,
			l.points,
			l.total_earned,
			l.tier,
			l.current_streak,
			RANK() OVER (ORDER BY l.total_earned DESC, u.username) AS rank
		FROM point_ledgers l
		JOIN users u ON u.id = l.user_id
		WHERE u.role != 'admin'
			AND ($2 = '' OR l.tier = $2)
	)
	SELECT id, username, image_url, points, total_earned, tier, current_streak, rank, clerk_id
	FROM ranked
	ORDER BY rank
	LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit, string(tierFilter))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	board := &leaderboard.Leaderboard{}
	for rows.Next() {
		entry := &leaderboard.LeaderboardEntry{}
		var rowClerkID string
		err := rows.Scan(
			&entry.UserID,
			&entry.Username,
			&entry.ImageURL,
			&entry.Points,
			&entry.TotalEarned,
			&entry.Tier,
			&entry.CurrentStreak,
			&entry.Rank,
			&rowClerkID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		board.Entries = append(board.Entries, entry)
		if rowClerkID == clerkID {
			board.UserPosition = entry
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	err = s.db.QueryRow(ctx, `
	SELECT COUNT(*)
	FROM point_ledgers l
	JOIN users u ON u.id = l.user_id
	WHERE u.role != 'admin' AND ($1 = '' OR l.tier = $1)
	`, string(tierFilter)).Scan(&board.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count leaderboard users: %w", err)
	}

	if board.UserPosition == nil {
		entry := &leaderboard.LeaderboardEntry{}
		err := s.db.QueryRow(ctx, `
		WITH ranked AS (
			SELECT
				u.id,
				u.username,
				u.image_url,
				u.clerk_id,
				l.points,
				l.total_earned,
				l.tier,
				l.current_streak,
				RANK() OVER (ORDER BY l.total_earned DESC, u.username) AS rank
			FROM point_ledgers l
			JOIN users u ON u.id = l.user_id
			WHERE u.role != 'admin'
				AND ($2 = '' OR l.tier = $2)
		)
		SELECT id, username, image_url, points, total_earned, tier, current_streak, rank
		FROM ranked
		WHERE clerk_id = $1
		`, clerkID, string(tierFilter)).Scan(
			&entry.UserID,
			&entry.Username,
			&entry.ImageURL,
			&entry.Points,
			&entry.TotalEarned,
			&entry.Tier,
			&entry.CurrentStreak,
			&entry.Rank,
		)
		if err == nil {
			board.UserPosition = entry
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to fetch caller position: %w", err)
		}
	}

	return board, nil
}

// GetUserStats assembles the dashboard summary.
func (s *UserService) GetUserStats(ctx context.Context, clerkID string) (*stats.UserStats, error) {
	acct, err := s.ledger.GetAccount(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	st := &stats.UserStats{
		Points:        acct.Points,
		TotalEarned:   acct.TotalEarned,
		TotalSpent:    acct.TotalSpent,
		Tier:          acct.Tier,
		CurrentStreak: acct.CurrentStreak,
		LongestStreak: acct.LongestStreak,
	}

	if next, needed, ok := tier.Next(acct.TotalEarned); ok {
		st.NextTier = next
		st.PointsToNextTier = needed
	}

	today := checkin.DateUTC(time.Now())
	st.CheckedInToday = acct.LastCheckIn != nil && checkin.DateUTC(*acct.LastCheckIn).Equal(today)

	err = s.db.QueryRow(ctx, `
	SELECT
		(SELECT COUNT(*) FROM achievement_unlocks WHERE user_id = $1),
		(SELECT COUNT(*) FROM referrals WHERE referrer_id = $1),
		(SELECT COUNT(*) FROM redemptions WHERE user_id = $1),
		(SELECT COUNT(*) + 1 FROM point_ledgers l JOIN users u ON u.id = l.user_id
			WHERE l.total_earned > $2 AND u.role != 'admin')
	`, acct.UserID, acct.TotalEarned).Scan(
		&st.AchievementsCount,
		&st.ReferralsCount,
		&st.RedemptionsCount,
		&st.Rank,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to gather stats: %w", err)
	}

	return st, nil
}

// RecordSubmission stores a work submission marker for a producer.
// Only the count matters here; the catalog of submitted work lives in
// the main application.
func (s *UserService) RecordSubmission(ctx context.Context, clerkID string, title string) error {
	if title == "" {
		return apperrors.Validation("title is required")
	}

	var userID uuid.UUID
	var role user.Role
	err := s.db.QueryRow(ctx, `SELECT id, role FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("user")
		}
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if role != user.RoleProducer {
		return apperrors.Ineligible("only producer accounts submit work")
	}

	_, err = s.db.Exec(ctx, `
	INSERT INTO submissions (id, user_id, title, created_at)
	VALUES ($1, $2, $3, NOW())
	`, uuid.New(), userID, title)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// SubmitFeedback stores a feedback entry. The per-user count feeds
// achievement criteria.
func (s *UserService) SubmitFeedback(ctx context.Context, clerkID string, req *feedback.SubmitFeedbackRequest) (*feedback.Feedback, error) {
	if len(req.Message) < 3 {
		return nil, apperrors.Validation("feedback message must be at least 3 characters")
	}

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	f := &feedback.Feedback{
		ID:       uuid.New(),
		UserID:   userID,
		Category: req.Category,
		Message:  req.Message,
	}
	if f.Category == "" {
		f.Category = "general"
	}

	err = s.db.QueryRow(ctx, `
	INSERT INTO feedback (id, user_id, category, message, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	RETURNING created_at
	`, f.ID, f.UserID, f.Category, f.Message).Scan(&f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}

	return f, nil
}
