package feedback

import (
	"time"

	"github.com/google/uuid"
)

// Feedback is a free-form product feedback entry. The per-user count
// feeds achievement criteria.
type Feedback struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Category  string    `json:"category" db:"category"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type SubmitFeedbackRequest struct {
	Category string `json:"category"`
	Message  string `json:"message" validate:"required,min=3"`
}
