package relation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/entity"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// DefaultCrosswalkSource is the source URI assigned to crosswalks created
// without an explicit source system.
const DefaultCrosswalkSource = "configuration/sources/MDM"

// Service exposes relationship operations against the platform.
type Service struct {
	client   *mdm.Client
	validate *validator.Validate
}

func NewService(client *mdm.Client) *Service {
	return &Service{client: client, validate: validator.New()}
}

// Details fetches one relation and simplifies its attributes.
func (s *Service) Details(ctx context.Context, relationID, tenantID string) (map[string]any, error) {
	if relationID == "" {
		return nil, core.NewError(core.ErrValidationCode, "relation_id is required")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   core.RelationURI(core.ObjectID(relationID)),
	}, &raw)
	if err != nil {
		return nil, err
	}
	simplifyRelationAttributes(raw)
	return raw, nil
}

// Crosswalk identifies a relation or endpoint within a source system. Zero
// fields are filled with the platform defaults before sending.
type Crosswalk struct {
	Type        string `json:"type"        yaml:"type"`
	SourceTable string `json:"sourceTable" yaml:"sourceTable"`
	Value       string `json:"value"       yaml:"value"`
}

// Object is one endpoint of a relation, addressed by URI or by crosswalks.
type Object struct {
	Type       string      `json:"type"                 validate:"required"`
	ObjectURI  string      `json:"objectURI,omitempty"`
	Crosswalks []Crosswalk `json:"crosswalks,omitempty"`
}

// Spec describes one relationship to create.
type Spec struct {
	Type        string         `json:"type"                 validate:"required"`
	StartObject Object         `json:"startObject"`
	EndObject   Object         `json:"endObject"`
	Crosswalks  []Crosswalk    `json:"crosswalks,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// CreateRequest creates one or more relationships in a single call.
type CreateRequest struct {
	Relations []Spec `validate:"required,min=1,dive"`
	Options   string
	TenantID  string
}

// Create posts the relationship specs, filling crosswalk defaults first: an
// omitted source becomes the platform default source and an omitted value
// becomes a fresh UUID, so every created relation stays addressable.
func (s *Service) Create(ctx context.Context, req CreateRequest) ([]map[string]any, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid relationship create request", err)
	}
	for i := range req.Relations {
		spec := &req.Relations[i]
		if spec.StartObject.ObjectURI == "" && len(spec.StartObject.Crosswalks) == 0 {
			return nil, core.NewError(core.ErrValidationCode,
				fmt.Sprintf("relation %d: startObject needs an objectURI or crosswalks", i))
		}
		if spec.EndObject.ObjectURI == "" && len(spec.EndObject.Crosswalks) == 0 {
			return nil, core.NewError(core.ErrValidationCode,
				fmt.Sprintf("relation %d: endObject needs an objectURI or crosswalks", i))
		}
		fillCrosswalkDefaults(spec.StartObject.Crosswalks)
		fillCrosswalkDefaults(spec.EndObject.Crosswalks)
		fillCrosswalkDefaults(spec.Crosswalks)
	}

	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}
	call := mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "relations",
		Body:   req.Relations,
	}
	if req.Options != "" {
		call.Query = map[string]string{"options": req.Options}
	}

	var result []map[string]any
	if err := s.client.DoAPI(ctx, call, &result); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("relationships created", "count", len(req.Relations))
	return result, nil
}

func fillCrosswalkDefaults(cws []Crosswalk) {
	for i := range cws {
		if cws[i].Type == "" {
			cws[i].Type = DefaultCrosswalkSource
		}
		if cws[i].Value == "" {
			cws[i].Value = uuid.NewString()
		}
	}
}

// Delete removes one relation.
func (s *Service) Delete(ctx context.Context, relationID, tenantID string) (map[string]any, error) {
	if relationID == "" {
		return nil, core.NewError(core.ErrValidationCode, "relation_id is required")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodDelete,
		Tenant: tenant,
		Path:   core.RelationURI(core.ObjectID(relationID)),
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConnectionsRequest queries the connections of one entity. The connections
// endpoint serves at most ConnectionsCeiling elements per group.
type ConnectionsRequest struct {
	EntityID       string   `validate:"required"`
	EntityTypes    []string `validate:"required,min=1"`
	SortBy         string
	InRelations    []string
	OutRelations   []string
	Offset         int `validate:"min=0"`
	Max            int `validate:"min=0"`
	Filter         string
	RelationFilter string
	ReturnObjects  bool
	ReturnDates    bool
	ReturnLabels   *bool
	TenantID       string
}

// Connections posts a single connection group and returns the raw result.
func (s *Service) Connections(ctx context.Context, req ConnectionsRequest) (map[string]any, error) {
	if req.Max == 0 {
		req.Max = 10
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid connections request", err)
	}
	if req.Offset+req.Max > mdm.ConnectionsCeiling {
		return nil, core.NewError(core.ErrValidationCode,
			fmt.Sprintf("the sum of offset and max must not exceed %d", mdm.ConnectionsCeiling))
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	group := map[string]any{"entityTypes": req.EntityTypes}
	if req.SortBy != "" {
		group["sortBy"] = req.SortBy
	}
	if len(req.InRelations) > 0 {
		group["inRelations"] = req.InRelations
	}
	if len(req.OutRelations) > 0 {
		group["outRelations"] = req.OutRelations
	}
	if req.Offset > 0 {
		group["offset"] = req.Offset
	}
	group["max"] = req.Max
	if req.Filter != "" {
		group["filter"] = req.Filter
	}
	if req.RelationFilter != "" {
		group["relationFilter"] = req.RelationFilter
	}
	if req.ReturnObjects {
		group["returnObjects"] = true
	}
	if req.ReturnDates {
		group["returnDates"] = true
	}
	if req.ReturnLabels != nil {
		group["returnLabels"] = *req.ReturnLabels
	}

	var result map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   core.EntityURI(core.ObjectID(req.EntityID)) + "/_connections",
		Body:   []map[string]any{group},
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SearchRequest queries the relation search index.
type SearchRequest struct {
	Filter     string
	Select     string
	Max        int `validate:"min=0"`
	Offset     int `validate:"min=0"`
	Sort       string
	Order      string `validate:"omitempty,oneof=asc desc"`
	Options    string
	Activeness string `validate:"omitempty,oneof=active all not_active"`
	TenantID   string
}

// SearchResult carries the found relations, tagged partial when the fetch
// stopped short of a complete answer.
type SearchResult struct {
	Relations []map[string]any `json:"relations"         yaml:"relations"`
	Partial   bool             `json:"partial,omitempty" yaml:"partial,omitempty"`
}

// Search pages through relations/_search up to the request bound. The
// search window ends at SearchCeiling; results past it are not
// addressable and the fetch stops there cleanly.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Max == 0 {
		req.Max = 10
	}
	if req.Activeness == "" {
		req.Activeness = "active"
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid relation search request", err)
	}
	if req.Offset+req.Max > mdm.SearchCeiling {
		return nil, core.NewError(core.ErrValidationCode,
			fmt.Sprintf("the sum of offset and max must not exceed %d", mdm.SearchCeiling))
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	page := func(ctx context.Context, offset, limit int) ([]map[string]any, error) {
		body := map[string]any{
			"filter":     req.Filter,
			"max":        limit,
			"offset":     req.Offset + offset,
			"activeness": req.Activeness,
		}
		if req.Select != "" {
			body["select"] = req.Select
		}
		if req.Sort != "" {
			body["sort"] = req.Sort
			if req.Order != "" {
				body["order"] = req.Order
			}
		}
		if req.Options != "" {
			body["options"] = req.Options
		}
		var relations []map[string]any
		err := s.client.DoAPI(ctx, mdm.Call{
			Method: http.MethodPost,
			Tenant: tenant,
			Path:   "relations/_search",
			Body:   body,
		}, &relations)
		if err != nil {
			return nil, err
		}
		for _, rel := range relations {
			simplifyRelationAttributes(rel)
		}
		return relations, nil
	}

	pageSize := req.Max
	if pageSize > 1000 {
		pageSize = 1000
	}
	res, err := mdm.FetchAll(ctx, page, mdm.FetchOptions{
		PageSize:    pageSize,
		MaxResults:  req.Max,
		HardCeiling: mdm.SearchCeiling - req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResult{Relations: res.Items, Partial: res.Partial}, nil
}

func simplifyRelationAttributes(rel map[string]any) {
	if attrs, ok := rel["attributes"].(map[string]any); ok {
		rel["attributes"] = entity.SimplifyAttributes(attrs)
	}
}
