package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	qrcode "github.com/skip2/go-qrcode"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/referral"
)

type ReferralService struct {
	db          *pgxpool.Pool
	signupURL   string
	qrPixelSize int
}

func NewReferralService(db *pgxpool.Pool, signupURL string) *ReferralService {
	return &ReferralService{db: db, signupURL: signupURL, qrPixelSize: 256}
}

type ReferralInfo struct {
	Code        string `json:"code"`
	Link        string `json:"link"`
	SignupCount int    `json:"signup_count"`
	Conversions int    `json:"conversions"`
}

// GetMyReferral returns the caller's code, shareable link, and tallies.
// The code is allocated with the ledger, so a first call initializes
// the ledger as a side effect.
func (s *ReferralService) GetMyReferral(ctx context.Context, clerkID string) (*ReferralInfo, error) {
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

	info := &ReferralInfo{
		Code: acct.ReferralCode,
		Link: fmt.Sprintf("%s?ref=%s", s.signupURL, acct.ReferralCode),
	}

	err = tx.QueryRow(ctx, `
	SELECT COUNT(*), COUNT(converted_at)
	FROM referrals
	WHERE referrer_id = $1
	`, userID).Scan(&info.SignupCount, &info.Conversions)
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return info, nil
}

// ReferralQR renders the caller's referral link as a QR PNG.
func (s *ReferralService) ReferralQR(ctx context.Context, clerkID string) ([]byte, error) {
	info, err := s.GetMyReferral(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(info.Link, qrcode.Medium, s.qrPixelSize)
	if err != nil {
		return nil, apperrors.Internal("failed to render referral QR: %v", err)
	}
	return png, nil
}

// RecordSignup attributes a new account to the owner of a referral
// code and credits the signup bonus. Replays for the same referred user
// are no-ops: at most one referral row exists per referred account.
func (s *ReferralService) RecordSignup(ctx context.Context, code string, referredUserID uuid.UUID) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return apperrors.Validation("referral code is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var referrerID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT user_id FROM point_ledgers WHERE referral_code = $1`, code).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("referral code")
		}
		return fmt.Errorf("failed to look up referral code: %w", err)
	}

	if referrerID == referredUserID {
		return apperrors.Ineligible("cannot refer yourself")
	}

	result, err := tx.Exec(ctx, `
	INSERT INTO referrals (id, referrer_id, referred_user_id, code, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (referred_user_id) DO NOTHING
	`, uuid.New(), referrerID, referredUserID, code)
	if err != nil {
		return fmt.Errorf("failed to record referral: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil
	}

	// An admin-owned code still records the referral; only the credit is
	// skipped.
	var ineligible *apperrors.IneligibleError
	switch err := ensureEarnEligible(ctx, tx, referrerID); {
	case err == nil:
		if _, _, _, err := awardTx(ctx, tx, referrerID, ledger.EventReferralSignup, referral.SignupPoints,
			"Referral signed up", ledger.ReferralSignupMeta{ReferredUserID: referredUserID, ReferralCode: code}, nil); err != nil {
			return err
		}
	case errors.As(err, &ineligible):
	default:
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordConversion credits the referrer when a referred user first
// becomes a paying customer. The conversion timestamp is set at most
// once; later reports for the same user do nothing.
func (s *ReferralService) RecordConversion(ctx context.Context, referredUserID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var referrerID uuid.UUID
	err = tx.QueryRow(ctx, `
	UPDATE referrals
	SET converted_at = NOW()
	WHERE referred_user_id = $1 AND converted_at IS NULL
	RETURNING referrer_id
	`, referredUserID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Not referred, or already converted. Either way there is
			// nothing to credit.
			return nil
		}
		return fmt.Errorf("failed to mark conversion: %w", err)
	}

	var ineligible *apperrors.IneligibleError
	switch err := ensureEarnEligible(ctx, tx, referrerID); {
	case err == nil:
		if _, _, _, err := awardTx(ctx, tx, referrerID, ledger.EventReferralConversion, referral.ConversionPoints,
			"Referral converted", ledger.ReferralConversionMeta{ConvertedUserID: referredUserID}, nil); err != nil {
			return err
		}
	case errors.As(err, &ineligible):
	default:
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
