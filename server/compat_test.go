package server

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompatAliases(t *testing.T) {
	t.Run("Should keep the alias table stable", func(t *testing.T) {
		aliases := compatAliases()
		require.Len(t, aliases, 6)

		byName := map[string]compatAlias{}
		for _, alias := range aliases {
			byName[alias.Name] = alias
		}
		assert.False(t, byName["find_matches_by_match_score"].Removed)
		assert.False(t, byName["find_matches_by_confidence"].Removed)
		assert.True(t, byName["get_total_matches"].Removed)
		assert.True(t, byName["get_total_matches_by_entity_type"].Removed)
		assert.True(t, byName["unmerge_entity_by_contributor"].Removed)
		assert.True(t, byName["unmerge_entity_tree_by_contributor"].Removed)
		for _, alias := range aliases {
			assert.NotEmpty(t, alias.Replacement, alias.Name)
			assert.NotEmpty(t, alias.Mapping, alias.Name)
		}
	})
}

func TestRemovedHandler(t *testing.T) {
	t.Run("Should answer with a fixed removal error naming the replacement", func(t *testing.T) {
		alias := compatAlias{
			Name:        "get_total_matches",
			Replacement: "get_potential_matches_stats",
			Mapping:     "use the total_matches field of get_potential_matches_stats",
			Removed:     true,
		}
		res, err := removedHandler(alias)(t.Context(), callReq(map[string]any{"anything": true}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		text := resultText(t, res)
		assert.Contains(t, text, "REMOVED_OPERATION")
		assert.Contains(t, text, "get_potential_matches_stats")
	})
}

func TestDeprecatedMatchHandler(t *testing.T) {
	t.Run("Should forward a score search and flag the result deprecated", func(t *testing.T) {
		var gotBody []byte
		h := newTestHandlers(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`[{"uri":"entities/1","label":"Jane Doe","type":"configuration/entityTypes/Individual"}]`))
		}))

		alias := compatAliases()[0]
		require.Equal(t, "find_matches_by_match_score", alias.Name)

		res, err := deprecatedMatchHandler(h, alias)(t.Context(), callReq(map[string]any{
			"filter": "50,100",
		}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		text := resultText(t, res)
		assert.Contains(t, text, "deprecated: true")
		assert.Contains(t, text, "find_potential_matches")
		assert.Contains(t, text, "entities/1")
		assert.Contains(t, string(gotBody), "range(relevanceScores.relevance,0.5,1)")
	})

	t.Run("Should keep legacy filter errors intact", func(t *testing.T) {
		h := newTestHandlers(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))

		alias := compatAliases()[1]
		require.Equal(t, "find_matches_by_confidence", alias.Name)

		res, err := deprecatedMatchHandler(h, alias)(t.Context(), callReq(map[string]any{
			"filter": "Totally Sure",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "INVALID_FILTER")
	})
}
