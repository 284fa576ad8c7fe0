package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/toolaccess"
)

type ToolAccessService struct {
	db *pgxpool.Pool
}

func NewToolAccessService(db *pgxpool.Pool) *ToolAccessService {
	return &ToolAccessService{db: db}
}

// HasAccess answers a single-tool entitlement check. Subscription
// grants are authoritative; an approved tool_access redemption is the
// fallback. Expiry is compared against the clock here, not against
// stored flags.
func (s *ToolAccessService) HasAccess(ctx context.Context, clerkID string, toolID string) (*toolaccess.Access, error) {
	if toolID == "" {
		return nil, apperrors.Validation("tool id is required")
	}

	subs, reds, err := s.grants(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	access := toolaccess.Resolve(toolID, subs, reds, time.Now())
	return &access, nil
}

// ListAccess returns every tool the user can currently use, keyed by
// tool id.
func (s *ToolAccessService) ListAccess(ctx context.Context, clerkID string) (map[string]toolaccess.Grant, error) {
	subs, reds, err := s.grants(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	return toolaccess.Merge(subs, reds, time.Now()), nil
}

// grants loads both access sources for a user. A consistent
// point-in-time read is enough; tool checks tolerate slightly stale
// data.
func (s *ToolAccessService) grants(ctx context.Context, clerkID string) (subs, reds []toolaccess.Grant, err error) {
	var userID uuid.UUID
	err = s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NotFound("user")
		}
		return nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT tool_id, expires_at
	FROM subscription_tool_grants
	WHERE user_id = $1 AND is_active = true
	`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch subscription grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		g := toolaccess.Grant{Source: toolaccess.SourceSubscription}
		if err := rows.Scan(&g.ToolID, &g.ExpiresAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan subscription grant: %w", err)
		}
		subs = append(subs, g)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating subscription grants: %w", err)
	}

	redRows, err := s.db.Query(ctx, `
	SELECT r.tool_id, d.expires_at
	FROM redemptions d
	JOIN rewards r ON r.id = d.reward_id
	WHERE d.user_id = $1
		AND d.status = 'APPROVED'
		AND d.is_active = true
		AND r.type = 'tool_access'
		AND r.tool_id IS NOT NULL
	`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch redemption grants: %w", err)
	}
	defer redRows.Close()

	for redRows.Next() {
		g := toolaccess.Grant{Source: toolaccess.SourceRedemption}
		if err := redRows.Scan(&g.ToolID, &g.ExpiresAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan redemption grant: %w", err)
		}
		reds = append(reds, g)
	}
	if err = redRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating redemption grants: %w", err)
	}

	return subs, reds, nil
}

// Grant creates or reactivates a subscription-source grant for one
// user and tool. grantedBy is nil for grants applied by billing.
func (s *ToolAccessService) Grant(ctx context.Context, grantedBy *uuid.UUID, targetUserID uuid.UUID, toolID string, expiresAt *time.Time) error {
	if toolID == "" {
		return apperrors.Validation("tool id is required")
	}

	_, err := s.db.Exec(ctx, `
	INSERT INTO subscription_tool_grants (id, user_id, tool_id, expires_at, is_active, granted_by, created_at)
	VALUES ($1, $2, $3, $4, true, $5, NOW())
	ON CONFLICT (user_id, tool_id) DO UPDATE
	SET expires_at = EXCLUDED.expires_at, is_active = true, granted_by = EXCLUDED.granted_by
	`, uuid.New(), targetUserID, toolID, expiresAt, grantedBy)
	if err != nil {
		return fmt.Errorf("failed to grant tool access: %w", err)
	}
	return nil
}

// Revoke deactivates a subscription-source grant. Redemption-source
// access is untouched; it can only end via expiry or redemption state.
func (s *ToolAccessService) Revoke(ctx context.Context, targetUserID uuid.UUID, toolID string) error {
	result, err := s.db.Exec(ctx, `
	UPDATE subscription_tool_grants
	SET is_active = false
	WHERE user_id = $1 AND tool_id = $2 AND is_active = true
	`, targetUserID, toolID)
	if err != nil {
		return fmt.Errorf("failed to revoke tool access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("tool grant")
	}
	return nil
}

// BulkGrant applies the same grant to many users, typically when a
// plan's tool list changes. Individual failures abort the whole batch.
func (s *ToolAccessService) BulkGrant(ctx context.Context, grantedBy *uuid.UUID, userIDs []uuid.UUID, toolID string, expiresAt *time.Time) error {
	if toolID == "" {
		return apperrors.Validation("tool id is required")
	}
	if len(userIDs) == 0 {
		return apperrors.Validation("at least one user is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, userID := range userIDs {
		_, err := tx.Exec(ctx, `
		INSERT INTO subscription_tool_grants (id, user_id, tool_id, expires_at, is_active, granted_by, created_at)
		VALUES ($1, $2, $3, $4, true, $5, NOW())
		ON CONFLICT (user_id, tool_id) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, is_active = true, granted_by = EXCLUDED.granted_by
		`, uuid.New(), userID, toolID, expiresAt, grantedBy)
		if err != nil {
			return fmt.Errorf("failed to grant tool access to %s: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
