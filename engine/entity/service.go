package entity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// Service exposes entity-level operations against the platform.
type Service struct {
	client   *mdm.Client
	validate *validator.Validate
}

func NewService(client *mdm.Client) *Service {
	return &Service{client: client, validate: validator.New()}
}

// Record is a normalized entity: identity fields plus simplified attributes
// and slimmed crosswalks.
type Record struct {
	URI        string         `json:"uri"                  yaml:"uri"`
	Label      string         `json:"label"                yaml:"label"`
	Type       string         `json:"type,omitempty"       yaml:"type,omitempty"`
	Attributes map[string]any `json:"attributes"           yaml:"attributes"`
	Crosswalks []Crosswalk    `json:"crosswalks,omitempty" yaml:"crosswalks,omitempty"`
}

// Fetch retrieves one entity and normalizes it through the selector.
func (s *Service) Fetch(ctx context.Context, entityID, tenantID string, sel AttributeSelector) (*Record, error) {
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   core.EntityURI(core.ObjectID(entityID)),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return Normalize(raw, sel), nil
}

// Normalize reduces a raw platform entity payload to a Record.
func Normalize(raw map[string]any, sel AttributeSelector) *Record {
	rec := &Record{Attributes: map[string]any{}}
	rec.URI, _ = raw["uri"].(string)
	rec.Label, _ = raw["label"].(string)
	if typ, _ := raw["type"].(string); typ != "" {
		rec.Type = typ[strings.LastIndex(typ, "/")+1:]
	}
	if attrs, ok := raw["attributes"].(map[string]any); ok {
		rec.Attributes = SimplifyAttributes(sel.Apply(attrs))
	}
	if cws, ok := raw["crosswalks"].([]any); ok {
		rec.Crosswalks = SlimCrosswalks(cws)
	}
	return rec
}

// UnmergeRequest detaches a contributor from a merged entity. Tree extends
// the detach to everything merged beneath the contributor.
type UnmergeRequest struct {
	Origin      string `validate:"required"`
	Contributor string `validate:"required"`
	TenantID    string
	Tree        bool
}

// UnmergeResult carries the two survivors of an unmerge: the origin minus
// the contribution, and the spawned entity.
type UnmergeResult struct {
	Origin map[string]any `json:"a" yaml:"a"`
	Spawn  map[string]any `json:"b" yaml:"b"`
}

// Unmerge performs the detach. The operation is not idempotent: repeating it
// for a contributor that no longer participates in the merge fails with an
// entity-not-merged error rather than silently succeeding.
func (s *Service) Unmerge(ctx context.Context, req UnmergeRequest) (*UnmergeResult, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid unmerge request", err)
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	path := core.EntityURI(core.ObjectID(req.Origin)) + "/_unmerge"
	if req.Tree {
		path = core.EntityURI(core.ObjectID(req.Origin)) + "/_treeUnmerge"
	}

	var result UnmergeResult
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   path,
		Query:  map[string]string{"contributorURI": core.EntityURI(core.ObjectID(req.Contributor))},
	}, &result)
	if err != nil {
		return nil, mapUnmergeError(ctx, req, err)
	}

	logger.FromContext(ctx).Info("entity unmerged",
		"origin", req.Origin, "contributor", req.Contributor, "tree", req.Tree)
	return &result, nil
}

// mapUnmergeError refines a downstream rejection: a 4xx naming a merge
// problem means the contributor has no merge contribution to detach.
func mapUnmergeError(ctx context.Context, req UnmergeRequest, err error) error {
	var status *mdm.StatusError
	if !errors.As(err, &status) {
		return err
	}
	if status.Status != http.StatusBadRequest && status.Status != http.StatusConflict {
		return err
	}
	message := gjson.GetBytes(status.Body, "errorMessage").String()
	if message == "" || strings.Contains(strings.ToLower(message), "merge") {
		logger.FromContext(ctx).Debug("unmerge rejected downstream",
			"origin", req.Origin, "contributor", req.Contributor, "message", message)
		return &core.Error{
			Code: core.ErrNotMergedCode,
			Message: fmt.Sprintf("entity %s is not a merge contributor of %s",
				core.EntityURI(core.ObjectID(req.Contributor)), core.EntityURI(core.ObjectID(req.Origin))),
			Err: core.ErrEntityNotMerged,
		}
	}
	return err
}
