package activity

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// maxActivityPage caps a single activities query.
const maxActivityPage = 100

// DefaultMergeEventTypes are the event types queried when a merge activity
// request does not name its own.
var DefaultMergeEventTypes = []string{
	"ENTITIES_MERGED_MANUALLY",
	"ENTITIES_MERGED",
	"ENTITIES_MERGED_ON_THE_FLY",
}

// userActivitySignals are the event shapes that count as user activity.
// Label prefixes cover UI events, items.data.type covers data mutations.
var userActivitySignals = []string{
	"startsWith(label, 'USER_LOGIN')",
	"startsWith(label, 'COMMENT_ADDED')",
	"startsWith(label, 'COMMENT_DELETED')",
	"startsWith(label, 'COMMENT_UPDATED')",
	"equals(items.data.type, NOT_MATCHES_SET)",
	"equals(items.data.type, NOT_MATCHES_RESET)",
	"equals(items.data.type, POTENTIAL_MATCHES_FOUND)",
	"equals(items.data.type, POTENTIAL_MATCHES_REMOVED)",
	"equals(items.data.type, ENTITY_CREATED)",
	"equals(items.data.type, ENTITIES_MERGED_MANUALLY)",
	"equals(items.data.type, ENTITY_REMOVED)",
	"equals(items.data.type, ENTITIES_SPLITTED)",
	"equals(items.data.type, ENTITY_CHANGED)",
	"startsWith(label, 'USER_PROFILE_VIEW')",
	"equals(items.data.type, RELATIONSHIP_CREATED)",
	"equals(items.data.type, RELATIONSHIP_REMOVED)",
	"equals(items.data.type, RELATIONSHIP_CHANGED)",
	"startsWith(label, 'USER_SEARCH')",
}

// Service queries the platform activity log.
type Service struct {
	client   *mdm.Client
	validate *validator.Validate
	now      func() time.Time
}

func NewService(client *mdm.Client) *Service {
	return &Service{client: client, validate: validator.New(), now: time.Now}
}

// MergeActivitiesRequest filters merge events from the activity log.
type MergeActivitiesRequest struct {
	TimestampGT int64 `validate:"required,min=1"`
	TimestampLT *int64
	EventTypes  []string
	EntityType  string
	User        string
	TenantID    string
	Offset      int `validate:"min=0"`
	Max         int `validate:"min=0,max=100"`
}

// MergeActivities lists merge events newer than the given timestamp,
// optionally bounded above and narrowed by event type, entity type or user.
func (s *Service) MergeActivities(ctx context.Context, req MergeActivitiesRequest) ([]map[string]any, error) {
	if req.Max == 0 {
		req.Max = maxActivityPage
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid merge activities request", err)
	}
	if req.TimestampLT != nil && *req.TimestampLT <= req.TimestampGT {
		return nil, core.NewError(core.ErrValidationCode,
			"timestamp_lt must be greater than timestamp_gt")
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	eventTypes := req.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = DefaultMergeEventTypes
	}
	parts := []string{fmt.Sprintf("gt(timestamp,%d)", req.TimestampGT)}
	if req.TimestampLT != nil {
		parts = append(parts, fmt.Sprintf("lt(timestamp,%d)", *req.TimestampLT))
	}
	typeFilters := make([]string, 0, len(eventTypes))
	for _, et := range eventTypes {
		typeFilters = append(typeFilters, fmt.Sprintf("equals(items.data.type,'%s')", et))
	}
	if len(typeFilters) == 1 {
		parts = append(parts, typeFilters[0])
	} else {
		parts = append(parts, "("+strings.Join(typeFilters, " OR ")+")")
	}
	if req.EntityType != "" {
		parts = append(parts,
			fmt.Sprintf("equals(items.objectType,'configuration/entityTypes/%s')", req.EntityType))
	}
	if req.User != "" {
		parts = append(parts, fmt.Sprintf("equals(user,'%s')", req.User))
	}

	var events []map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   "activities",
		Query: map[string]string{
			"filter": strings.Join(parts, " AND "),
			"offset": strconv.Itoa(req.Offset),
			"max":    strconv.Itoa(req.Max),
		},
	}, &events)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("fetched merge activities",
		"tenant", tenant, "count", len(events))
	if events == nil {
		events = []map[string]any{}
	}
	return events, nil
}

// UserActivity reports whether a user produced activity within the window.
type UserActivity struct {
	Username           string         `json:"username"            yaml:"username"`
	DaysChecked        int            `json:"days_checked"        yaml:"days_checked"`
	TimestampThreshold int64          `json:"timestamp_threshold" yaml:"timestamp_threshold"`
	IsActive           bool           `json:"is_active"           yaml:"is_active"`
	ActivityFound      int            `json:"activity_found"      yaml:"activity_found"`
	LastActivity       map[string]any `json:"last_activity"       yaml:"last_activity"`
}

// CheckUser probes the activity log for any qualifying event by the user in
// the last daysBack days. A single matching event is enough to call the
// user active; the most recent one is returned.
func (s *Service) CheckUser(ctx context.Context, username string, daysBack int, tenantID string) (*UserActivity, error) {
	if username == "" {
		return nil, core.NewError(core.ErrValidationCode, "username is required")
	}
	if daysBack <= 0 {
		daysBack = 7
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	threshold := s.now().UnixMilli() - int64(daysBack)*24*int64(time.Hour/time.Millisecond)
	filter := fmt.Sprintf(
		"(equals(user, '%s')) and (%s) and (gte(timestamp, %d)) and (not equals(user, 'collaboration-service'))",
		username, strings.Join(userActivitySignals, " or "), threshold)

	var events []map[string]any
	err = s.client.DoAPI(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   "activities",
		Query: map[string]string{
			"filter": filter,
			"max":    "1",
			"offset": "0",
		},
	}, &events)
	if err != nil {
		return nil, err
	}

	result := &UserActivity{
		Username:           username,
		DaysChecked:        daysBack,
		TimestampThreshold: threshold,
		IsActive:           len(events) > 0,
		ActivityFound:      len(events),
	}
	if len(events) > 0 {
		result.LastActivity = events[0]
	}
	return result, nil
}
