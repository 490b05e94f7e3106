package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 1.0, Ratio("Yesterday", "Yesterday"))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.InDelta(t, 0.75, Ratio("abcd", "abce"), 1e-9)
	assert.Less(t, Ratio("Yesterday", "yesterday"), 1.0)
}

func TestWords(t *testing.T) {
	assert.Equal(t, 1.0, Words("Yesterday", "Yesterday"))
	assert.Equal(t, 1.0, Words("Beyoncé", "beyonce"))
	assert.Equal(t, 1.0, Words("Let It Be", "be, let it!"))
	assert.Equal(t, 0.0, Words("", "Something"))
	assert.Equal(t, 0.0, Words("...", "Something"))
	assert.InDelta(t, 0.5, Words("Let It", "Let It Be Now"), 1e-9)
	assert.Greater(t, Words("Hey Jude", "Hey Jud"), Words("Hey Jude", "Help"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "sigur ros", Normalize("  Sigur Rós "))
	assert.Equal(t, "motorhead", Normalize("Motörhead"))
}
