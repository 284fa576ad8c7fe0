package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/subscription"
)

type SubscriptionService struct {
	db        *pgxpool.Pool
	planTools subscription.PlanTools
	tools     *ToolAccessService
	referrals *ReferralService
}

func NewSubscriptionService(db *pgxpool.Pool, planTools subscription.PlanTools, tools *ToolAccessService, referrals *ReferralService) *SubscriptionService {
	return &SubscriptionService{db: db, planTools: planTools, tools: tools, referrals: referrals}
}

// Upsert applies a billing webhook's view of a subscription. When the
// subscription is (or becomes) active, the plan's tools are granted for
// the current period and the referral conversion is credited; when it
// lapses, the plan grants are deactivated.
func (s *SubscriptionService) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	// Checkout webhooks carry the user; later lifecycle webhooks only
	// carry Stripe IDs, so those resolve through the existing row.
	var userID uuid.UUID
	var err error
	if sub.UserID != "" {
		// The checkout metadata may carry either our UUID or the Clerk
		// id; the cast keeps both sides of the OR comparable as text.
		err = s.db.QueryRow(ctx, `SELECT id FROM users WHERE id::text = $1 OR clerk_id = $1`, sub.UserID).Scan(&userID)
	} else {
		err = s.db.QueryRow(ctx, `SELECT user_id FROM subscriptions WHERE stripe_subscription_id = $1`, sub.StripeSubscriptionID).Scan(&userID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("subscriber")
		}
		return fmt.Errorf("failed to resolve subscriber: %w", err)
	}

	_, err = s.db.Exec(ctx, `
	INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status, current_period_end, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (stripe_subscription_id) DO UPDATE
	SET stripe_price_id = EXCLUDED.stripe_price_id,
		status = EXCLUDED.status,
		current_period_end = EXCLUDED.current_period_end,
		updated_at = NOW()
	`,
		uuid.New(),
		userID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.Status,
		sub.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	tools := s.planTools[sub.StripePriceID]

	if sub.Active() {
		periodEnd := sub.CurrentPeriodEnd
		for _, toolID := range tools {
			if err := s.tools.Grant(ctx, nil, userID, toolID, &periodEnd); err != nil {
				return err
			}
		}

		// First paid period counts as the referral conversion. The
		// crediting is idempotent, so renewal webhooks are harmless.
		if err := s.referrals.RecordConversion(ctx, userID); err != nil {
			log.Printf("Upsert: conversion credit for %s failed: %v", userID, err)
		}
		return nil
	}

	for _, toolID := range tools {
		if err := s.tools.Revoke(ctx, userID, toolID); err != nil {
			var notFound *apperrors.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordRevenue stores one paid-invoice amount against a user. The
// lifetime sum feeds achievement criteria.
func (s *SubscriptionService) RecordRevenue(ctx context.Context, stripeCustomerID string, amountCents int) error {
	if amountCents <= 0 {
		return nil
	}

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `
	SELECT user_id FROM subscriptions WHERE stripe_customer_id = $1 ORDER BY updated_at DESC LIMIT 1
	`, stripeCustomerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Invoice for a customer we have no subscription row for yet.
			// The next subscription webhook will backfill; skip quietly.
			return nil
		}
		return fmt.Errorf("failed to resolve customer: %w", err)
	}

	_, err = s.db.Exec(ctx, `
	INSERT INTO revenue_entries (id, user_id, amount_cents, created_at)
	VALUES ($1, $2, $3, NOW())
	`, uuid.New(), userID, amountCents)
	if err != nil {
		return fmt.Errorf("failed to record revenue: %w", err)
	}
	return nil
}

// Get returns the user's current subscription, if any.
func (s *SubscriptionService) Get(ctx context.Context, clerkID string) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{}
	err := s.db.QueryRow(ctx, `
	SELECT s.id, s.user_id, s.stripe_customer_id, s.stripe_subscription_id, s.stripe_price_id, s.status, s.current_period_end, s.created_at, s.updated_at
	FROM subscriptions s
	JOIN users u ON u.id = s.user_id
	WHERE u.clerk_id = $1
	ORDER BY s.updated_at DESC
	LIMIT 1
	`, clerkID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("subscription")
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}
