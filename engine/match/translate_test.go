package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmgate/mdmgate/engine/core"
)

func TestTranslate(t *testing.T) {
	t.Run("Should build a match rule filter from a bare rule id", func(t *testing.T) {
		expr, err := Translate(ByMatchRule, "BaseRule05", "Individual", "")
		require.NoError(t, err)
		assert.Equal(t,
			"(equals(matchRules,'configuration/entityTypes/Individual/matchGroups/BaseRule05')"+
				" and equals(type,'configuration/entityTypes/Individual'))", expr)
	})

	t.Run("Should accept a full match group URI and keep its tail", func(t *testing.T) {
		expr, err := Translate(ByMatchRule,
			"configuration/entityTypes/Individual/matchGroups/BaseRule05", "Individual", "")
		require.NoError(t, err)
		assert.Contains(t, expr, "matchGroups/BaseRule05'")
		assert.NotContains(t, expr, "matchGroups/configuration")
	})

	t.Run("Should reject an empty match rule id", func(t *testing.T) {
		_, err := Translate(ByMatchRule, "   ", "Individual", "")
		require.Error(t, err)
		assert.Equal(t, core.ErrInvalidFilterCode, core.CodeOf(err))
		assert.Contains(t, err.Error(), "rule id")
	})

	t.Run("Should map a score range onto fractional relevance", func(t *testing.T) {
		expr, err := Translate(ByScore, "50,100", "Individual", "")
		require.NoError(t, err)
		assert.Contains(t, expr, "range(relevanceScores.relevance,0.5,1)")
	})

	t.Run("Should accept an exact boundary range", func(t *testing.T) {
		expr, err := Translate(ByScore, "0,0", "Individual", "")
		require.NoError(t, err)
		assert.Contains(t, expr, "range(relevanceScores.relevance,0,0)")
	})

	t.Run("Should name the expected format for malformed score filters", func(t *testing.T) {
		for _, filter := range []string{"50", "50,60,70", "abc,100", ""} {
			_, err := Translate(ByScore, filter, "Individual", "")
			require.Error(t, err, "filter %q", filter)
			assert.Equal(t, core.ErrInvalidFilterCode, core.CodeOf(err))
			assert.Contains(t, err.Error(), "'50,100'", "filter %q", filter)
		}
	})

	t.Run("Should reject scores outside 0 to 100", func(t *testing.T) {
		_, err := Translate(ByScore, "-1,50", "Individual", "")
		require.Error(t, err)
		_, err = Translate(ByScore, "0,101", "Individual", "")
		require.Error(t, err)
	})

	t.Run("Should reject an inverted score range", func(t *testing.T) {
		_, err := Translate(ByScore, "80,20", "Individual", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "less than or equal")
	})

	t.Run("Should build a confidence filter for a known label", func(t *testing.T) {
		expr, err := Translate(ByConfidence, "High confidence", "Organization", "")
		require.NoError(t, err)
		assert.Contains(t, expr, "equals(relevanceScores.actionLabel,'High confidence')")
		assert.Contains(t, expr, "equals(type,'configuration/entityTypes/Organization')")
	})

	t.Run("Should list the accepted labels for an unknown confidence", func(t *testing.T) {
		_, err := Translate(ByConfidence, "Very confident", "Individual", "")
		require.Error(t, err)
		assert.Equal(t, core.ErrInvalidFilterCode, core.CodeOf(err))
		assert.Contains(t, err.Error(), "Super strong matches")
	})

	t.Run("Should append extra search filters inside the group", func(t *testing.T) {
		expr, err := Translate(ByMatchRule, "R1", "Individual", "equals(attributes.FirstName,'John')")
		require.NoError(t, err)
		assert.Contains(t, expr, " and equals(attributes.FirstName,'John'))")
	})

	t.Run("Should reject an unknown search type", func(t *testing.T) {
		_, err := Translate(SearchType("fuzzy"), "x", "Individual", "")
		require.Error(t, err)
		assert.Equal(t, core.ErrInvalidFilterCode, core.CodeOf(err))
	})

	t.Run("Should reject an empty entity type", func(t *testing.T) {
		_, err := Translate(ByMatchRule, "R1", " ", "")
		require.Error(t, err)
	})
}

func TestFormatScore(t *testing.T) {
	t.Run("Should render percentages as compact fractions", func(t *testing.T) {
		assert.Equal(t, "0", formatScore(0))
		assert.Equal(t, "0.25", formatScore(25))
		assert.Equal(t, "0.5", formatScore(50))
		assert.Equal(t, "1", formatScore(100))
	})
}
