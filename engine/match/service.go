package match

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/entity"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// The search endpoint caps a single page at this many match records.
const searchPageCap = 10

// Service exposes the match dispatch operations.
type Service struct {
	client   *mdm.Client
	entities *entity.Service
	validate *validator.Validate
}

func NewService(client *mdm.Client, entities *entity.Service) *Service {
	return &Service{client: client, entities: entities, validate: validator.New()}
}

// FindMatchesRequest is the unified match search input.
type FindMatchesRequest struct {
	SearchType    SearchType `validate:"required"`
	Filter        string     `validate:"required"`
	EntityType    string     `validate:"required"`
	TenantID      string
	MaxResults    int `validate:"min=1"`
	Offset        int `validate:"min=0"`
	SearchFilters string
}

// Match is one potential match record.
type Match struct {
	URI   string `json:"uri"   yaml:"uri"`
	Label string `json:"label" yaml:"label"`
	Type  string `json:"type"  yaml:"type"`
}

// MatchList is the ordered result of a match search.
type MatchList struct {
	Matches []Match `json:"matches"           yaml:"matches"`
	Partial bool    `json:"partial,omitempty" yaml:"partial,omitempty"`
}

type searchPayload struct {
	Filter       string `json:"filter"`
	Select       string `json:"select"`
	Max          int    `json:"max"`
	Offset       int    `json:"offset"`
	ScoreEnabled bool   `json:"scoreEnabled"`
	Options      string `json:"options"`
	Activeness   string `json:"activeness"`
}

// FindPotentialMatches translates the filter, runs the paginated search and
// returns flat match records in downstream order.
func (s *Service) FindPotentialMatches(ctx context.Context, req FindMatchesRequest) (*MatchList, error) {
	if req.SearchType == "" {
		req.SearchType = ByMatchRule
	}
	if req.EntityType == "" {
		req.EntityType = "Individual"
	}
	if req.MaxResults == 0 {
		req.MaxResults = searchPageCap
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid match search request", err)
	}
	if req.Offset+req.MaxResults > mdm.SearchCeiling {
		return nil, core.NewError(core.ErrValidationCode,
			fmt.Sprintf("the sum of offset and max_results must not exceed %d", mdm.SearchCeiling))
	}

	expr, err := Translate(req.SearchType, req.Filter, req.EntityType, req.SearchFilters)
	if err != nil {
		return nil, err
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	page := func(ctx context.Context, offset, limit int) ([]Match, error) {
		var records []map[string]any
		err := s.client.DoAPI(ctx, mdm.Call{
			Method: http.MethodPost,
			Tenant: tenant,
			Path:   "entities/_search",
			Body: searchPayload{
				Filter:       expr,
				Select:       "uri,label,type,relevanceScores",
				Max:          limit,
				Offset:       req.Offset + offset,
				ScoreEnabled: false,
				Options:      "ovOnly",
				Activeness:   "active",
			},
		}, &records)
		if err != nil {
			return nil, err
		}
		matches := make([]Match, 0, len(records))
		for _, rec := range records {
			var m Match
			m.URI, _ = rec["uri"].(string)
			m.Label, _ = rec["label"].(string)
			m.Type, _ = rec["type"].(string)
			matches = append(matches, m)
		}
		return matches, nil
	}

	res, err := mdm.FetchAll(ctx, page, mdm.FetchOptions{
		PageSize:   searchPageCap,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("match search complete",
		"search_type", req.SearchType, "entity_type", req.EntityType, "count", len(res.Items))
	return &MatchList{Matches: res.Items, Partial: res.Partial}, nil
}

// Stats is the tenant-wide potential match breakdown. Total is the exact
// sum of the per-entity-type counts under the same threshold.
type Stats struct {
	Total        int            `json:"total_matches" yaml:"total_matches"`
	ByEntityType map[string]int `json:"type"          yaml:"type"`
	ByMatchRule  map[string]int `json:"matchRules"    yaml:"matchRules"`
}

type facetResponse struct {
	Type       map[string]int `json:"type"`
	MatchRules map[string]int `json:"matchRules"`
}

// PotentialMatchStats returns counts of entities with more than minMatches
// potential matches, faceted by entity type and by match rule.
func (s *Service) PotentialMatchStats(ctx context.Context, minMatches int, tenantID string) (*Stats, error) {
	if minMatches < 0 {
		return nil, core.NewError(core.ErrValidationCode, "min_matches must not be negative")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	var facets facetResponse
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   "entities/_facets",
		Query: map[string]string{
			"filter":     fmt.Sprintf("(gt(matches,'%d'))", minMatches),
			"facet":      "matchRules,type",
			"activeness": "active",
			"options":    "searchByOv,ovOnly",
		},
	}, &facets)
	if err != nil {
		return nil, err
	}
	if facets.Type == nil {
		return nil, core.NewError(core.ErrUnavailableCode, "facet response did not contain entity type counts")
	}

	stats := &Stats{ByEntityType: facets.Type, ByMatchRule: facets.MatchRules}
	for _, count := range facets.Type {
		stats.Total += count
	}
	return stats, nil
}

// EntityMatchesRequest fetches one entity together with its top potential
// matches. Empty attribute lists select every attribute.
type EntityMatchesRequest struct {
	EntityID               string `validate:"required"`
	TenantID               string
	Attributes             []string
	IncludeMatchAttributes bool
	MatchAttributes        []string
	MatchLimit             int `validate:"min=1,max=5"`
}

// EntityMatch is one scored potential match of a source entity. Identity
// fields are always present; attributes appear only when requested.
type EntityMatch struct {
	URI        string             `json:"uri"                  yaml:"uri"`
	Label      any                `json:"label"                yaml:"label"`
	MatchRules any                `json:"matchRules"           yaml:"matchRules"`
	Relevance  any                `json:"relevance"            yaml:"relevance"`
	CreateTime any                `json:"createdTime"          yaml:"createdTime"`
	Attributes map[string]any     `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Crosswalks []entity.Crosswalk `json:"crosswalks,omitempty" yaml:"crosswalks,omitempty"`
}

// EntityMatches pairs the normalized source entity with its matches and the
// exact total match count.
type EntityMatches struct {
	SourceEntity *entity.Record `json:"source_entity" yaml:"source_entity"`
	Matches      []EntityMatch  `json:"matches"       yaml:"matches"`
	TotalMatches int            `json:"total_matches" yaml:"total_matches"`
}

// EntityWithMatches fetches the source entity, its top matches sorted by
// relevance, and the total match count in one operation. The match limit
// bounds how many matches come back, never which fields each match carries.
func (s *Service) EntityWithMatches(ctx context.Context, req EntityMatchesRequest) (*EntityMatches, error) {
	if req.MatchLimit == 0 {
		req.MatchLimit = 5
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid entity matches request", err)
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	source, err := s.entities.Fetch(ctx, req.EntityID, tenant, entity.SelectNames(req.Attributes))
	if err != nil {
		return nil, err
	}
	if source.URI == "" {
		source.URI = core.EntityURI(core.ObjectID(req.EntityID))
	}

	matchesPath := core.EntityURI(core.ObjectID(req.EntityID)) + "/_transitiveMatches"
	var rawMatches []map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   matchesPath,
		Query: map[string]string{
			"deep":              "1",
			"markMatchedValues": "true",
			"sort":              "relevance",
			"order":             "desc",
			"activeness":        "active",
			"limit":             strconv.Itoa(req.MatchLimit),
		},
	}, &rawMatches)
	if err != nil {
		return nil, err
	}

	total, err := s.totalMatchCount(ctx, tenant, matchesPath)
	if err != nil {
		// The headline matches are already in hand; fall back to their count
		// rather than failing the whole operation.
		logger.FromContext(ctx).Warn("total match count unavailable", "entity", req.EntityID, "error", err)
		total = len(rawMatches)
	}

	matches := make([]EntityMatch, 0, len(rawMatches))
	for _, raw := range rawMatches {
		m := formatMatch(raw)
		if req.IncludeMatchAttributes && m.URI != "" {
			detail, err := s.entities.Fetch(ctx, m.URI, tenant, entity.SelectNames(req.MatchAttributes))
			if err != nil {
				logger.FromContext(ctx).Warn("match entity detail unavailable", "uri", m.URI, "error", err)
			} else {
				m.Attributes = detail.Attributes
				m.Crosswalks = detail.Crosswalks
			}
		}
		matches = append(matches, m)
	}

	return &EntityMatches{SourceEntity: source, Matches: matches, TotalMatches: total}, nil
}

func (s *Service) totalMatchCount(ctx context.Context, tenant, path string) (int, error) {
	var all []map[string]any
	err := s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   path,
		Query: map[string]string{
			"deep":              "1",
			"markMatchedValues": "true",
			"activeness":        "active",
			"limit":             strconv.Itoa(mdm.ConnectionsCeiling),
		},
	}, &all)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func formatMatch(raw map[string]any) EntityMatch {
	m := EntityMatch{
		Label:      raw["label"],
		MatchRules: raw["matchRules"],
		Relevance:  raw["relevance"],
		CreateTime: raw["createdTime"],
	}
	if m.Relevance == nil {
		m.Relevance = "N/A"
	}
	if object, ok := raw["object"].(map[string]any); ok {
		m.URI, _ = object["uri"].(string)
		if m.Label == nil {
			m.Label = object["label"]
		}
	}
	return m
}
