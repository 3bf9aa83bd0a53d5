package match

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/entity"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/config"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.MDM.ServerURL = srv.URL
	cfg.MDM.DefaultTenant = "acme"
	client := mdm.NewClient(cfg)
	return NewService(client, entity.NewService(client))
}

func TestFindPotentialMatches(t *testing.T) {
	t.Run("Should search with the translated filter and flatten records", func(t *testing.T) {
		var gotBody map[string]any
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/acme/entities/_search", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"uri": "entities/1", "label": "A", "type": "configuration/entityTypes/Individual", "relevanceScores": []any{}},
				{"uri": "entities/2", "label": "B", "type": "configuration/entityTypes/Individual"},
			})
		}))

		res, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			SearchType: ByMatchRule,
			Filter:     "BaseRule05",
			EntityType: "Individual",
			MaxResults: 5,
		})
		require.NoError(t, err)
		require.Len(t, res.Matches, 2)
		assert.Equal(t, Match{URI: "entities/1", Label: "A", Type: "configuration/entityTypes/Individual"}, res.Matches[0])
		assert.False(t, res.Partial)

		assert.Contains(t, gotBody["filter"], "matchGroups/BaseRule05")
		assert.Equal(t, "uri,label,type,relevanceScores", gotBody["select"])
		assert.Equal(t, "ovOnly", gotBody["options"])
		assert.Equal(t, "active", gotBody["activeness"])
		assert.Equal(t, false, gotBody["scoreEnabled"])
	})

	t.Run("Should offset downstream pages by the request offset", func(t *testing.T) {
		var offsets []float64
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			offsets = append(offsets, body["offset"].(float64))
			w.Write([]byte(`[]`))
		}))

		_, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			Filter:     "R1",
			EntityType: "Individual",
			MaxResults: 10,
			Offset:     40,
		})
		require.NoError(t, err)
		assert.Equal(t, []float64{40}, offsets)
	})

	t.Run("Should fail fast on an invalid filter without calling downstream", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))

		_, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			SearchType: ByScore,
			Filter:     "10",
			EntityType: "Individual",
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrInvalidFilterCode, core.CodeOf(err))
	})

	t.Run("Should aggregate downstream pages up to max results", func(t *testing.T) {
		const total = 35
		var pageOffsets []int
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			offset := int(body["offset"].(float64))
			max := int(body["max"].(float64))
			pageOffsets = append(pageOffsets, offset)
			assert.LessOrEqual(t, max, 10)

			records := make([]map[string]any, 0, max)
			for i := offset; i < total && len(records) < max; i++ {
				records = append(records, map[string]any{"uri": fmt.Sprintf("entities/%d", i)})
			}
			_ = json.NewEncoder(w).Encode(records)
		}))

		res, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			Filter:     "R1",
			EntityType: "Individual",
			MaxResults: 20,
		})
		require.NoError(t, err)
		require.Len(t, res.Matches, 20)
		assert.False(t, res.Partial)
		assert.Equal(t, []int{0, 10}, pageOffsets)
		assert.Equal(t, "entities/19", res.Matches[19].URI)
	})

	t.Run("Should reject offset plus max beyond the search window", func(t *testing.T) {
		svc := newTestService(t, nil)
		_, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			Filter:     "R1",
			EntityType: "Individual",
			MaxResults: 10,
			Offset:     9995,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "10000")
	})

	t.Run("Should map downstream failure to unavailable", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))

		_, err := svc.FindPotentialMatches(t.Context(), FindMatchesRequest{
			Filter:     "R1",
			EntityType: "Individual",
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrUnavailableCode, core.CodeOf(err))
	})
}

func TestPotentialMatchStats(t *testing.T) {
	t.Run("Should sum entity type counts into the total", func(t *testing.T) {
		var gotFilter string
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/acme/entities/_facets", r.URL.Path)
			gotFilter = r.URL.Query().Get("filter")
			assert.Equal(t, "matchRules,type", r.URL.Query().Get("facet"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"type":       map[string]int{"configuration/entityTypes/Individual": 120, "configuration/entityTypes/Organization": 30},
				"matchRules": map[string]int{"configuration/entityTypes/Individual/matchGroups/R1": 90},
			})
		}))

		stats, err := svc.PotentialMatchStats(t.Context(), 2, "")
		require.NoError(t, err)
		assert.Equal(t, "(gt(matches,'2'))", gotFilter)
		assert.Equal(t, 150, stats.Total)
		assert.Len(t, stats.ByEntityType, 2)
		assert.Len(t, stats.ByMatchRule, 1)
	})

	t.Run("Should treat zero min matches as at least one match", func(t *testing.T) {
		var gotFilter string
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotFilter = r.URL.Query().Get("filter")
			_ = json.NewEncoder(w).Encode(map[string]any{"type": map[string]int{}})
		}))

		stats, err := svc.PotentialMatchStats(t.Context(), 0, "")
		require.NoError(t, err)
		assert.Equal(t, "(gt(matches,'0'))", gotFilter)
		assert.Zero(t, stats.Total)
	})

	t.Run("Should reject a negative threshold", func(t *testing.T) {
		svc := newTestService(t, nil)
		_, err := svc.PotentialMatchStats(t.Context(), -1, "")
		require.Error(t, err)
	})

	t.Run("Should fail when the facet response lacks type counts", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		}))

		_, err := svc.PotentialMatchStats(t.Context(), 0, "")
		require.Error(t, err)
		assert.Equal(t, core.ErrUnavailableCode, core.CodeOf(err))
	})
}

func TestEntityWithMatches(t *testing.T) {
	entityPayload := func(id, label string) map[string]any {
		return map[string]any{
			"uri":   "entities/" + id,
			"label": label,
			"attributes": map[string]any{
				"FirstName": []any{map[string]any{"value": label}},
				"SSN":       []any{map[string]any{"value": "secret"}},
			},
		}
	}

	handler := func(t *testing.T) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/api/acme/entities/src1/_transitiveMatches":
				if r.URL.Query().Get("limit") == "1000" {
					// Total-count probe sees the full collection.
					var all []map[string]any
					for i := 0; i < 7; i++ {
						all = append(all, map[string]any{"object": map[string]any{"uri": fmt.Sprintf("entities/m%d", i)}})
					}
					_ = json.NewEncoder(w).Encode(all)
					return
				}
				assert.Equal(t, "relevance", r.URL.Query().Get("sort"))
				assert.Equal(t, "desc", r.URL.Query().Get("order"))
				_ = json.NewEncoder(w).Encode([]map[string]any{
					{
						"object":      map[string]any{"uri": "entities/m1", "label": "Match One"},
						"matchRules":  []any{"configuration/entityTypes/Individual/matchGroups/R1"},
						"relevance":   0.92,
						"createdTime": 1700000000,
					},
					{
						"object": map[string]any{"uri": "entities/m2", "label": "Match Two"},
					},
				})
			case r.URL.Path == "/api/acme/entities/src1":
				_ = json.NewEncoder(w).Encode(entityPayload("src1", "Source"))
			case r.URL.Path == "/api/acme/entities/m1" || r.URL.Path == "/api/acme/entities/m2":
				_ = json.NewEncoder(w).Encode(entityPayload(r.URL.Path[len("/api/acme/entities/"):], "MatchDetail"))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				http.NotFound(w, r)
			}
		})
	}

	t.Run("Should combine source entity, matches and exact total", func(t *testing.T) {
		svc := newTestService(t, handler(t))

		res, err := svc.EntityWithMatches(t.Context(), EntityMatchesRequest{
			EntityID:               "src1",
			Attributes:             []string{"FirstName"},
			IncludeMatchAttributes: true,
			MatchAttributes:        []string{"FirstName"},
			MatchLimit:             2,
		})
		require.NoError(t, err)

		assert.Equal(t, "entities/src1", res.SourceEntity.URI)
		assert.Equal(t, map[string]any{"FirstName": "Source"}, res.SourceEntity.Attributes)
		assert.Equal(t, 7, res.TotalMatches)
		require.Len(t, res.Matches, 2)

		first := res.Matches[0]
		assert.Equal(t, "entities/m1", first.URI)
		assert.Equal(t, "Match One", first.Label)
		assert.Equal(t, 0.92, first.Relevance)
		assert.Equal(t, map[string]any{"FirstName": "MatchDetail"}, first.Attributes)
	})

	t.Run("Should keep match identity fields when relevance is missing", func(t *testing.T) {
		svc := newTestService(t, handler(t))

		res, err := svc.EntityWithMatches(t.Context(), EntityMatchesRequest{
			EntityID:   "src1",
			MatchLimit: 2,
		})
		require.NoError(t, err)
		second := res.Matches[1]
		assert.Equal(t, "entities/m2", second.URI)
		assert.Equal(t, "Match Two", second.Label)
		assert.Equal(t, "N/A", second.Relevance)
		assert.Nil(t, second.Attributes)
	})

	t.Run("Should reject a match limit above five", func(t *testing.T) {
		svc := newTestService(t, nil)
		_, err := svc.EntityWithMatches(t.Context(), EntityMatchesRequest{EntityID: "e", MatchLimit: 6})
		require.Error(t, err)
		assert.Equal(t, core.ErrValidationCode, core.CodeOf(err))
	})
}
