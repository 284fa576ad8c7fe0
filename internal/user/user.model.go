package user

import "time"

type Role string

const (
	RoleMember   Role = "member"
	RoleProducer Role = "producer"
	RoleAdmin    Role = "admin"
)

func ValidRole(r Role) bool {
	return r == RoleMember || r == RoleProducer || r == RoleAdmin
}

type User struct {
	ID                 string    `json:"id"`
	ClerkID            string    `json:"clerkId"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	EmailVerified      bool      `json:"emailVerified"`
	Role               Role      `json:"role"`
	ProfileComplete    bool      `json:"profileComplete"`
	OnboardingComplete bool      `json:"onboardingComplete"`
	ReferredBy         *string   `json:"referredBy,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
