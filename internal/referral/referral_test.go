package referral

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		// Ambiguous characters never appear.
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
	}
}

func TestNewCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		seen[code] = true
	}
	// 50 independent draws from a 32^8 space colliding down to a handful
	// would mean the generator is broken.
	assert.Greater(t, len(seen), 45)
}

func TestAlphabetIsUppercaseAlphanumeric(t *testing.T) {
	assert.Equal(t, strings.ToUpper(codeAlphabet), codeAlphabet)
	assert.Len(t, codeAlphabet, 32)
}
