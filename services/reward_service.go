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
	"loyaltyLedgerAPI/internal/reward"
	"loyaltyLedgerAPI/internal/tier"
	"loyaltyLedgerAPI/internal/user"
)

type RewardService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewRewardService(db *pgxpool.Pool, notifier *NotificationService) *RewardService {
	return &RewardService{db: db, notifier: notifier}
}

const rewardColumns = `id, name, description, type, cost_points, inventory, min_tier, required_role, tool_id, duration_days, is_active, created_at`

func scanReward(row pgx.Row) (*reward.Reward, error) {
	r := &reward.Reward{}
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Description,
		&r.Type,
		&r.CostPoints,
		&r.Inventory,
		&r.MinTier,
		&r.RequiredRole,
		&r.ToolID,
		&r.DurationDays,
		&r.IsActive,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRewards returns the active catalog.
func (s *RewardService) ListRewards(ctx context.Context) ([]*reward.Reward, error) {
	rows, err := s.db.Query(ctx, `
	SELECT `+rewardColumns+`
	FROM rewards
	WHERE is_active = true
	ORDER BY cost_points
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*reward.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rewards: %w", err)
	}

	return rewards, nil
}

// Redeem exchanges points for a reward. Validation runs in a fixed
// order and the first failure wins, with no ledger mutation on any
// failure: active reward, balance, tier restriction, role restriction,
// stock. On success the debit, the inventory decrement, and the
// redemption record commit together, so the last unit of a reward can
// never be sold twice.
func (s *RewardService) Redeem(ctx context.Context, clerkID string, rewardID uuid.UUID) (*reward.Redemption, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userID, role, err := resolveUserID(ctx, tx, clerkID)
	if err != nil {
		return nil, err
	}

	// Locking the reward row serializes concurrent redemptions of the
	// same reward; the ledger row lock below serializes per-user spend.
	r, err := scanReward(tx.QueryRow(ctx, `
	SELECT `+rewardColumns+`
	FROM rewards
	WHERE id = $1
	FOR UPDATE
	`, rewardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reward")
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	if !r.IsActive {
		return nil, apperrors.NotFound("reward")
	}

	acct, err := lockAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if acct.Points < r.CostPoints {
		return nil, apperrors.InsufficientBalance(acct.Points, r.CostPoints)
	}

	if r.MinTier != "" && !tier.AtLeast(acct.Tier, r.MinTier) {
		return nil, apperrors.Ineligible("requires %s tier or above", r.MinTier)
	}
	if r.RequiredRole != "" && r.RequiredRole != string(role) {
		return nil, apperrors.Ineligible("reserved for %s accounts", r.RequiredRole)
	}
	if r.Inventory != nil && *r.Inventory <= 0 {
		return nil, apperrors.Ineligible("out of stock")
	}

	redemption := &reward.Redemption{
		ID:         uuid.New(),
		UserID:     userID,
		RewardID:   r.ID,
		PointsCost: r.CostPoints,
		Status:     reward.StatusPending,
	}

	var toolID string
	if r.ToolID != nil {
		toolID = *r.ToolID
	}
	_, _, err = deductTx(ctx, tx, userID, ledger.EventRewardRedeemed, r.CostPoints,
		fmt.Sprintf("Redeemed: %s", r.Name),
		ledger.RedemptionMeta{RedemptionID: redemption.ID, RewardID: r.ID, RewardName: r.Name, ToolID: toolID}, nil)
	if err != nil {
		return nil, err
	}

	if r.Inventory != nil {
		var remaining int
		err = tx.QueryRow(ctx, `
		UPDATE rewards
		SET inventory = inventory - 1
		WHERE id = $1 AND inventory > 0
		RETURNING inventory
		`, r.ID).Scan(&remaining)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.Ineligible("out of stock")
			}
			return nil, fmt.Errorf("failed to decrement inventory: %w", err)
		}
		if remaining < 0 {
			return nil, apperrors.Internal("inventory for reward %s went negative", r.ID)
		}
	}

	if reward.AutoApproved(r.Type) {
		redemption.Status = reward.StatusApproved
		redemption.IsActive = true
		redemption.ExpiresAt = reward.ExpiryFor(time.Now(), r.DurationDays)
	}

	err = tx.QueryRow(ctx, `
	INSERT INTO redemptions (id, user_id, reward_id, points_cost, status, is_active, expires_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	RETURNING created_at, updated_at
	`,
		redemption.ID,
		redemption.UserID,
		redemption.RewardID,
		redemption.PointsCost,
		redemption.Status,
		redemption.IsActive,
		redemption.ExpiresAt,
	).Scan(&redemption.CreatedAt, &redemption.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return redemption, nil
}

// MyRedemptions lists the caller's redemptions, newest first.
func (s *RewardService) MyRedemptions(ctx context.Context, clerkID string) ([]*reward.WithReward, error) {
	rows, err := s.db.Query(ctx, `
	SELECT d.id, d.user_id, d.reward_id, d.points_cost, d.status, d.is_active, d.expires_at, d.admin_id, d.admin_notes, d.created_at, d.updated_at,
		r.name, r.type
	FROM redemptions d
	JOIN rewards r ON r.id = d.reward_id
	JOIN users u ON u.id = d.user_id
	WHERE u.clerk_id = $1
	ORDER BY d.created_at DESC
	`, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch redemptions: %w", err)
	}
	defer rows.Close()

	var list []*reward.WithReward
	for rows.Next() {
		d := &reward.WithReward{}
		err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.RewardID,
			&d.PointsCost,
			&d.Status,
			&d.IsActive,
			&d.ExpiresAt,
			&d.AdminID,
			&d.AdminNotes,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.RewardName,
			&d.RewardType,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		list = append(list, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemptions: %w", err)
	}

	return list, nil
}

// PendingRedemptions lists redemptions awaiting an admin decision.
func (s *RewardService) PendingRedemptions(ctx context.Context) ([]*reward.WithReward, error) {
	rows, err := s.db.Query(ctx, `
	SELECT d.id, d.user_id, d.reward_id, d.points_cost, d.status, d.is_active, d.expires_at, d.admin_id, d.admin_notes, d.created_at, d.updated_at,
		r.name, r.type
	FROM redemptions d
	JOIN rewards r ON r.id = d.reward_id
	WHERE d.status = 'PENDING'
	ORDER BY d.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending redemptions: %w", err)
	}
	defer rows.Close()

	var list []*reward.WithReward
	for rows.Next() {
		d := &reward.WithReward{}
		err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.RewardID,
			&d.PointsCost,
			&d.Status,
			&d.IsActive,
			&d.ExpiresAt,
			&d.AdminID,
			&d.AdminNotes,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.RewardName,
			&d.RewardType,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		list = append(list, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemptions: %w", err)
	}

	return list, nil
}

// Approve moves a PENDING redemption to APPROVED and activates the
// grant, computing its expiry from the reward's duration.
func (s *RewardService) Approve(ctx context.Context, redemptionID uuid.UUID, adminID uuid.UUID, notes string) (*reward.Redemption, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, durationDays, err := lockRedemptionTx(ctx, tx, redemptionID)
	if err != nil {
		return nil, err
	}
	if d.Status != reward.StatusPending {
		return nil, apperrors.Conflict("redemption is %s, not PENDING", d.Status)
	}

	err = tx.QueryRow(ctx, `
	UPDATE redemptions
	SET status = 'APPROVED', is_active = true, admin_id = $2, admin_notes = $3,
		expires_at = $4, updated_at = NOW()
	WHERE id = $1
	RETURNING status, is_active, expires_at, updated_at
	`, d.ID, adminID, notes, reward.ExpiryFor(time.Now(), durationDays)).Scan(&d.Status, &d.IsActive, &d.ExpiresAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to approve redemption: %w", err)
	}
	d.AdminID = &adminID
	d.AdminNotes = &notes

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifyDecision(ctx, d, "Your redemption was approved")
	return d, nil
}

// Deny moves a PENDING redemption to DENIED and refunds the snapshotted
// cost in the same transaction: the balance comes back up, total_spent
// comes back down, and lifetime earnings stay untouched.
func (s *RewardService) Deny(ctx context.Context, redemptionID uuid.UUID, adminID uuid.UUID, notes string) (*reward.Redemption, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, _, err := lockRedemptionTx(ctx, tx, redemptionID)
	if err != nil {
		return nil, err
	}
	if d.Status != reward.StatusPending {
		return nil, apperrors.Conflict("redemption is %s, not PENDING", d.Status)
	}

	err = tx.QueryRow(ctx, `
	UPDATE redemptions
	SET status = 'DENIED', is_active = false, admin_id = $2, admin_notes = $3, updated_at = NOW()
	WHERE id = $1
	RETURNING status, is_active, updated_at
	`, d.ID, adminID, notes).Scan(&d.Status, &d.IsActive, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to deny redemption: %w", err)
	}
	d.AdminID = &adminID
	d.AdminNotes = &notes

	if err := refundTx(ctx, tx, d, adminID, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notifyDecision(ctx, d, "Your redemption was denied and your points were refunded")
	return d, nil
}

// refundTx reverses the debit of a denied redemption: points and
// total_spent return to their pre-redemption values while total_earned
// is left alone, keeping the balance invariant intact.
func refundTx(ctx context.Context, tx pgx.Tx, d *reward.Redemption, adminID uuid.UUID, notes string) error {
	acct, err := lockAccountTx(ctx, tx, d.UserID)
	if err != nil {
		return err
	}

	newPoints := acct.Points + d.PointsCost
	newTotalSpent := acct.TotalSpent - d.PointsCost
	if newTotalSpent < 0 {
		return apperrors.Internal("refund of redemption %s would drive total_spent negative", d.ID)
	}

	err = tx.QueryRow(ctx, `
	UPDATE point_ledgers
	SET points = $2, total_spent = $3, updated_at = NOW()
	WHERE user_id = $1
	RETURNING points, total_earned, total_spent
	`, d.UserID, newPoints, newTotalSpent).Scan(&acct.Points, &acct.TotalEarned, &acct.TotalSpent)
	if err != nil {
		return fmt.Errorf("failed to refund ledger: %w", err)
	}

	if acct.Points != acct.TotalEarned-acct.TotalSpent {
		return apperrors.Internal("ledger invariant violated for user %s: points=%d earned=%d spent=%d",
			d.UserID, acct.Points, acct.TotalEarned, acct.TotalSpent)
	}

	event := &ledger.Event{
		ID:          uuid.New(),
		UserID:      d.UserID,
		EventType:   ledger.EventRewardRefunded,
		PointsDelta: d.PointsCost,
		Description: "Redemption denied, points refunded",
		Metadata:    ledger.RefundMeta{RedemptionID: d.ID, RewardID: d.RewardID},
		AdminID:     &adminID,
		AdminReason: &notes,
	}
	return writeEventTx(ctx, tx, event)
}

func lockRedemptionTx(ctx context.Context, tx pgx.Tx, redemptionID uuid.UUID) (*reward.Redemption, *int, error) {
	d := &reward.Redemption{}
	var durationDays *int
	err := tx.QueryRow(ctx, `
	SELECT d.id, d.user_id, d.reward_id, d.points_cost, d.status, d.is_active, d.expires_at, d.admin_id, d.admin_notes, d.created_at, d.updated_at,
		r.duration_days
	FROM redemptions d
	JOIN rewards r ON r.id = d.reward_id
	WHERE d.id = $1
	FOR UPDATE OF d
	`, redemptionID).Scan(
		&d.ID,
		&d.UserID,
		&d.RewardID,
		&d.PointsCost,
		&d.Status,
		&d.IsActive,
		&d.ExpiresAt,
		&d.AdminID,
		&d.AdminNotes,
		&d.CreatedAt,
		&d.UpdatedAt,
		&durationDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NotFound("redemption")
		}
		return nil, nil, fmt.Errorf("failed to lock redemption: %w", err)
	}
	return d, durationDays, nil
}

func (s *RewardService) notifyDecision(ctx context.Context, d *reward.Redemption, message string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, d.UserID, "redemption_result", "Redemption update", message,
		map[string]any{"redemption_id": d.ID.String(), "status": string(d.Status)})
	if err != nil {
		log.Printf("notifyDecision: failed to notify user %s about redemption %s: %v", d.UserID, d.ID, err)
	}
}

type UpsertRewardRequest struct {
	Name         string      `json:"name" validate:"required"`
	Description  string      `json:"description"`
	Type         reward.Type `json:"type" validate:"required"`
	CostPoints   int         `json:"cost_points" validate:"required,gt=0"`
	Inventory    *int        `json:"inventory"`
	MinTier      tier.Tier   `json:"min_tier"`
	RequiredRole string      `json:"required_role"`
	ToolID       *string     `json:"tool_id"`
	DurationDays *int        `json:"duration_days"`
	IsActive     *bool       `json:"is_active"`
}

func (req *UpsertRewardRequest) validate() error {
	if req.Name == "" {
		return apperrors.Validation("name is required")
	}
	if req.CostPoints <= 0 {
		return apperrors.Validation("cost_points must be a positive integer")
	}
	if req.Inventory != nil && *req.Inventory < 0 {
		return apperrors.Validation("inventory must be non-negative")
	}
	if req.MinTier != "" && !tier.Valid(req.MinTier) {
		return apperrors.Validation("unknown tier %q", req.MinTier)
	}
	if req.RequiredRole != "" && !user.ValidRole(user.Role(req.RequiredRole)) {
		return apperrors.Validation("unknown role %q", req.RequiredRole)
	}
	if req.Type == reward.TypeToolAccess && (req.ToolID == nil || *req.ToolID == "") {
		return apperrors.Validation("tool_access rewards require a tool_id")
	}
	return nil
}

// CreateReward adds a catalog entry.
func (s *RewardService) CreateReward(ctx context.Context, req *UpsertRewardRequest) (*reward.Reward, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	r, err := scanReward(s.db.QueryRow(ctx, `
	INSERT INTO rewards (id, name, description, type, cost_points, inventory, min_tier, required_role, tool_id, duration_days, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	RETURNING `+rewardColumns+`
	`,
		uuid.New(),
		req.Name,
		req.Description,
		req.Type,
		req.CostPoints,
		req.Inventory,
		req.MinTier,
		req.RequiredRole,
		req.ToolID,
		req.DurationDays,
		isActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}
	return r, nil
}

// UpdateReward edits a catalog entry. Existing redemptions keep their
// snapshotted cost.
func (s *RewardService) UpdateReward(ctx context.Context, rewardID uuid.UUID, req *UpsertRewardRequest) (*reward.Reward, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	r, err := scanReward(s.db.QueryRow(ctx, `
	UPDATE rewards
	SET name = $2, description = $3, type = $4, cost_points = $5, inventory = $6,
		min_tier = $7, required_role = $8, tool_id = $9, duration_days = $10, is_active = $11
	WHERE id = $1
	RETURNING `+rewardColumns+`
	`,
		rewardID,
		req.Name,
		req.Description,
		req.Type,
		req.CostPoints,
		req.Inventory,
		req.MinTier,
		req.RequiredRole,
		req.ToolID,
		req.DurationDays,
		isActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reward")
		}
		return nil, fmt.Errorf("failed to update reward: %w", err)
	}
	return r, nil
}
