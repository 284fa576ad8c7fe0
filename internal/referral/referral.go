package referral

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Point values for referral attribution. Signup pays the referrer when
// the referred account is created; conversion pays once more when the
// referred user first becomes a paying customer.
const (
	SignupPoints     = 50
	ConversionPoints = 200
)

// CodeLength and codeAlphabet define the referral code format. The
// alphabet drops 0/O/1/I so codes survive being read aloud or retyped.
const CodeLength = 8

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Referral links a referrer to a referred user via the code used at
// signup. ConvertedAt is set at most once; a second conversion report
// is a no-op.
type Referral struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ReferrerID     uuid.UUID  `json:"referrer_id" db:"referrer_id"`
	ReferredUserID uuid.UUID  `json:"referred_user_id" db:"referred_user_id"`
	Code           string     `json:"code" db:"code"`
	ConvertedAt    *time.Time `json:"converted_at,omitempty" db:"converted_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// NewCode draws a random referral code. Uniqueness is not checked here:
// the caller inserts and retries on a unique violation, since there is
// no reservation step between draw and insert.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw referral code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
