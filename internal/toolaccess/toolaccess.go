package toolaccess

import (
	"time"
)

type Source string

const (
	SourceSubscription Source = "subscription"
	SourceRedemption   Source = "redemption"
)

// Grant is one access source for one tool, in the form the resolver
// merges. Expiry is checked against the clock at read time; stored
// active flags are not trusted past their ExpiresAt.
type Grant struct {
	ToolID    string     `json:"tool_id"`
	Source    Source     `json:"source"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Access is the answer to a single-tool check.
type Access struct {
	Granted   bool       `json:"granted"`
	Source    Source     `json:"source,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (g Grant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Resolve answers whether one tool is accessible given both grant
// sources. A live subscription grant wins over a live redemption grant
// for the same tool.
func Resolve(toolID string, subscription, redemption []Grant, now time.Time) Access {
	for _, g := range subscription {
		if g.ToolID == toolID && g.ActiveAt(now) {
			return Access{Granted: true, Source: SourceSubscription, ExpiresAt: g.ExpiresAt}
		}
	}
	for _, g := range redemption {
		if g.ToolID == toolID && g.ActiveAt(now) {
			return Access{Granted: true, Source: SourceRedemption, ExpiresAt: g.ExpiresAt}
		}
	}
	return Access{}
}

// Merge unions both sources across all tools, dropping expired grants
// and de-duplicating by tool with subscriptions taking precedence.
func Merge(subscription, redemption []Grant, now time.Time) map[string]Grant {
	merged := make(map[string]Grant)
	for _, g := range redemption {
		if g.ActiveAt(now) {
			merged[g.ToolID] = g
		}
	}
	for _, g := range subscription {
		if g.ActiveAt(now) {
			merged[g.ToolID] = g
		}
	}
	return merged
}
