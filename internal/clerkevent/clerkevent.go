// Package clerkevent holds the webhook payload shapes Clerk posts to
// us. Only the fields we consume are declared.
package clerkevent

import "encoding/json"

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type EmailAddress struct {
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

type UserData struct {
	ID              string         `json:"id"`
	Username        string         `json:"username"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	ImageURL        string         `json:"image_url"`
	ProfileImageURL string         `json:"profile_image_url"`
	EmailAddresses  []EmailAddress `json:"email_addresses"`

	// Role is set by our signup flow; referral_code is whatever the new
	// user typed into the "who sent you" box.
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
	UnsafeMetadata struct {
		ReferralCode string `json:"referral_code"`
	} `json:"unsafe_metadata"`
}
