package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePlanTools(t *testing.T) {
	plans := ParsePlanTools("price_pro:mastering-suite,stem-splitter; price_studio:sample-vault")

	assert.Equal(t, []string{"mastering-suite", "stem-splitter"}, plans["price_pro"])
	assert.Equal(t, []string{"sample-vault"}, plans["price_studio"])
}

func TestParsePlanToolsSkipsMalformed(t *testing.T) {
	plans := ParsePlanTools("price_pro:mastering-suite;;garbage;:orphan;price_empty:")

	assert.Len(t, plans, 1)
	assert.Equal(t, []string{"mastering-suite"}, plans["price_pro"])
}

func TestActive(t *testing.T) {
	for _, status := range []string{"active", "trialing", "past_due"} {
		assert.True(t, (&Subscription{Status: status}).Active(), status)
	}
	for _, status := range []string{"canceled", "unpaid", "incomplete", ""} {
		assert.False(t, (&Subscription{Status: status}).Active(), status)
	}
}
