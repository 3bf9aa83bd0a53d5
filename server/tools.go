package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mdmgate/mdmgate/engine/activity"
	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/entity"
	"github.com/mdmgate/mdmgate/engine/match"
	"github.com/mdmgate/mdmgate/engine/relation"
	"github.com/mdmgate/mdmgate/engine/workflow"
)

// handlers holds the engine services every tool dispatches into.
type handlers struct {
	entities   *entity.Service
	matches    *match.Service
	relations  *relation.Service
	workflows  *workflow.Service
	activities *activity.Service
}

// renderResult marshals a tool result as a YAML document.
func renderResult(v any) (*mcp.CallToolResult, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError renders a taxonomy error as a YAML error payload. Errors never
// escape as protocol failures; clients always get a structured body.
func toolError(err error) *mcp.CallToolResult {
	var ge *core.Error
	if !errors.As(err, &ge) {
		ge = core.WrapError(core.ErrInternalCode, "unexpected error", err)
	}
	body := map[string]any{
		"code":    ge.Code,
		"message": ge.Message,
	}
	if ge.Details != "" {
		body["details"] = ge.Details
	}
	b, merr := yaml.Marshal(map[string]any{"error": body})
	if merr != nil {
		return mcp.NewToolResultError(ge.Error())
	}
	return mcp.NewToolResultError(string(b))
}

// decodeArg converts one raw argument into a typed value through JSON.
func decodeArg(args map[string]any, key string, out any) error {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return core.WrapError(core.ErrValidationCode, "invalid "+key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return core.WrapError(core.ErrValidationCode, "invalid "+key, err)
	}
	return nil
}

func mapArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func tenantParam() mcp.ToolOption {
	return mcp.WithString("tenant_id",
		mcp.Description("Tenant identifier; defaults to the configured tenant"))
}

func (h *handlers) register(s *mcpserver.MCPServer) {
	s.AddTool(mcp.NewTool("find_potential_matches",
		mcp.WithDescription("Search entities flagged as potential matches, filtered by match rule, relevance score range or confidence label"),
		mcp.WithString("search_type",
			mcp.Description("How to interpret the filter"),
			mcp.Enum("match_rule", "score", "confidence")),
		mcp.WithString("filter", mcp.Required(),
			mcp.Description("Match rule name or URI, 'start,end' percentage range, or confidence label")),
		mcp.WithString("entity_type",
			mcp.Description("Entity type to search, e.g. Individual or Organization")),
		mcp.WithNumber("max_results", mcp.Description("Total results to return; pages past the 10-record cap are aggregated")),
		mcp.WithNumber("offset", mcp.Description("Start position for pagination")),
		mcp.WithString("search_filters",
			mcp.Description("Extra filter expressions joined with AND")),
		tenantParam(),
	), h.findPotentialMatches)

	s.AddTool(mcp.NewTool("get_potential_matches_stats",
		mcp.WithDescription("Count entities with potential matches, faceted by entity type and match rule"),
		mcp.WithNumber("min_matches",
			mcp.Description("Count entities with more than this many potential matches; default 0")),
		tenantParam(),
	), h.potentialMatchStats)

	s.AddTool(mcp.NewTool("get_entity_with_matches",
		mcp.WithDescription("Fetch one entity together with its top potential matches and the exact total match count"),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity ID or URI")),
		mcp.WithArray("attributes",
			mcp.Description("Source entity attributes to return; empty returns all"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("include_match_attributes",
			mcp.Description("Fetch attributes and crosswalks for each match")),
		mcp.WithArray("match_attributes",
			mcp.Description("Attributes to return per match; empty returns all"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("match_limit", mcp.Description("Number of matches to return, 1 to 5")),
		tenantParam(),
	), h.entityWithMatches)

	s.AddTool(mcp.NewTool("unmerge_entity",
		mcp.WithDescription("Detach a contributor from a merged entity, returning the origin and the spawned entity"),
		mcp.WithString("entity_id", mcp.Required(),
			mcp.Description("Merged entity to unmerge from")),
		mcp.WithString("contributor_id", mcp.Required(),
			mcp.Description("Contributor entity to detach")),
		mcp.WithBoolean("tree",
			mcp.Description("Detach the contributor's whole merge tree instead of the single contributor")),
		tenantParam(),
	), h.unmergeEntity)

	s.AddTool(mcp.NewTool("get_relation_details",
		mcp.WithDescription("Fetch one relationship with simplified attributes"),
		mcp.WithString("relation_id", mcp.Required(), mcp.Description("Relation ID or URI")),
		tenantParam(),
	), h.relationDetails)

	s.AddTool(mcp.NewTool("create_relationships",
		mcp.WithDescription("Create one or more relationships between entities; missing crosswalk fields are defaulted"),
		mcp.WithArray("relations", mcp.Required(),
			mcp.Description("Relation specs with type, startObject, endObject and optional crosswalks and attributes"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("options", mcp.Description("Comma-separated platform options")),
		tenantParam(),
	), h.createRelationships)

	s.AddTool(mcp.NewTool("delete_relation",
		mcp.WithDescription("Delete one relationship"),
		mcp.WithString("relation_id", mcp.Required(), mcp.Description("Relation ID or URI")),
		tenantParam(),
	), h.deleteRelation)

	s.AddTool(mcp.NewTool("get_entity_relations",
		mcp.WithDescription("List the connections of one entity through a connection group query"),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity ID or URI")),
		mcp.WithArray("entity_types", mcp.Required(),
			mcp.Description("Connected entity types to include"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("sort_by", mcp.Description("Sort criteria for the group")),
		mcp.WithArray("in_relations", mcp.Description("Incoming relation types"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("out_relations", mcp.Description("Outgoing relation types"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("offset", mcp.Description("Start position, offset+max at most 1000")),
		mcp.WithNumber("max", mcp.Description("Page size; default 10")),
		mcp.WithString("filter", mcp.Description("Filter on connected entities")),
		mcp.WithString("relation_filter", mcp.Description("Filter on the relations themselves")),
		mcp.WithBoolean("return_objects", mcp.Description("Include full connected objects")),
		mcp.WithBoolean("return_dates", mcp.Description("Include relation dates")),
		mcp.WithBoolean("return_labels", mcp.Description("Include relation labels")),
		tenantParam(),
	), h.entityRelations)

	s.AddTool(mcp.NewTool("relation_search",
		mcp.WithDescription("Search relationships by filter expression with pagination"),
		mcp.WithString("filter", mcp.Description("Relation filter expression")),
		mcp.WithString("select", mcp.Description("Fields to return")),
		mcp.WithNumber("max", mcp.Description("Result bound; default 10")),
		mcp.WithNumber("offset", mcp.Description("Start position, offset+max at most 10000")),
		mcp.WithString("sort", mcp.Description("Sort field")),
		mcp.WithString("order", mcp.Description("Sort order"), mcp.Enum("asc", "desc")),
		mcp.WithString("options", mcp.Description("Comma-separated platform options")),
		mcp.WithString("activeness", mcp.Description("Relation activeness"),
			mcp.Enum("active", "all", "not_active")),
		tenantParam(),
	), h.relationSearch)

	s.AddTool(mcp.NewTool("get_user_workflow_tasks",
		mcp.WithDescription("List workflow tasks assigned to one user with the total count"),
		mcp.WithString("assignee", mcp.Required(), mcp.Description("Username to list tasks for")),
		mcp.WithNumber("offset", mcp.Description("Start position for pagination")),
		mcp.WithNumber("max_results", mcp.Description("Page size, at most 100; use 1 for just the total")),
		tenantParam(),
	), h.userWorkflowTasks)

	s.AddTool(mcp.NewTool("reassign_workflow_task",
		mcp.WithDescription("Reassign an open workflow task to another user"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to reassign")),
		mcp.WithString("assignee", mcp.Required(), mcp.Description("New assignee")),
		tenantParam(),
	), h.reassignWorkflowTask)

	s.AddTool(mcp.NewTool("get_possible_assignees",
		mcp.WithDescription("Resolve who may take a set of workflow tasks, by task IDs or by filter"),
		mcp.WithArray("tasks",
			mcp.Description("Task IDs; cannot be combined with task_filter or exclude"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("task_filter",
			mcp.Description("Task filter criteria; cannot be combined with tasks")),
		mcp.WithArray("exclude",
			mcp.Description("Task IDs to exclude; cannot be combined with tasks"),
			mcp.Items(map[string]any{"type": "string"})),
		tenantParam(),
	), h.possibleAssignees)

	s.AddTool(mcp.NewTool("retrieve_tasks",
		mcp.WithDescription("Retrieve workflow tasks by filter; all set filters are AND-combined"),
		mcp.WithString("assignee", mcp.Description("Task assignee; 'none' selects unassigned tasks")),
		mcp.WithString("process_instance_id", mcp.Description("Process instance ID")),
		mcp.WithString("process_type", mcp.Description("Single process type")),
		mcp.WithArray("process_types", mcp.Description("Multiple process types"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("offset", mcp.Description("Start position, offset+max at most 10000")),
		mcp.WithNumber("max_results", mcp.Description("Page size, at most 100")),
		mcp.WithBoolean("suspended", mcp.Description("Filter by suspended status")),
		mcp.WithString("created_by", mcp.Description("Task creator")),
		mcp.WithString("priority_class", mcp.Description("Task priority"),
			mcp.Enum("Urgent", "High", "Medium", "Low")),
		mcp.WithString("order_by", mcp.Description("Sort criteria"),
			mcp.Enum("createTime", "assignee", "dueDate", "priority")),
		mcp.WithBoolean("ascending", mcp.Description("Sort ascending; default descending")),
		mcp.WithString("task_type", mcp.Description("Task type, e.g. dcrReview")),
		mcp.WithNumber("created_after", mcp.Description("Created after, milliseconds since epoch")),
		mcp.WithNumber("created_before", mcp.Description("Created before, milliseconds since epoch")),
		mcp.WithString("state", mcp.Description("Validation state"),
			mcp.Enum("valid", "invalid", "all")),
		mcp.WithArray("object_uris", mcp.Description("Linked object URIs"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("show_task_variables", mcp.Description("Include task variables")),
		mcp.WithBoolean("show_task_local_variables", mcp.Description("Include task-local variables")),
		mcp.WithString("object_filter", mcp.Description("Search filter on linked entities")),
		tenantParam(),
	), h.retrieveTasks)

	s.AddTool(mcp.NewTool("get_task_details",
		mcp.WithDescription("Fetch the full record of one workflow task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithBoolean("show_task_variables", mcp.Description("Include task variables")),
		mcp.WithBoolean("show_task_local_variables", mcp.Description("Include task-local variables")),
		tenantParam(),
	), h.taskDetails)

	s.AddTool(mcp.NewTool("start_process_instance",
		mcp.WithDescription("Start a workflow process instance over a set of objects"),
		mcp.WithString("process_type", mcp.Required(),
			mcp.Description("Process type, e.g. dataChangeRequestReview")),
		mcp.WithArray("object_uris", mcp.Required(),
			mcp.Description("Object URIs the process operates on"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("comment", mcp.Description("Comment attached to the process instance")),
		mcp.WithObject("variables", mcp.Description("Process variables")),
		tenantParam(),
	), h.startProcessInstance)

	s.AddTool(mcp.NewTool("execute_task_action",
		mcp.WithDescription("Execute a lifecycle action such as Approve or Reject on a workflow task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("action", mcp.Required(),
			mcp.Description("Action to execute; must be offered by the task")),
		mcp.WithString("comment", mcp.Description("Comment attached to the process instance")),
		tenantParam(),
	), h.executeTaskAction)

	s.AddTool(mcp.NewTool("check_user_activity",
		mcp.WithDescription("Check whether a user produced activity within the last days"),
		mcp.WithString("username", mcp.Required(), mcp.Description("Username to check")),
		mcp.WithNumber("days_back", mcp.Description("Lookback window in days; default 7")),
		tenantParam(),
	), h.checkUserActivity)

	s.AddTool(mcp.NewTool("get_merge_activities",
		mcp.WithDescription("List merge activity events newer than a timestamp, optionally narrowed by event type, entity type or user"),
		mcp.WithNumber("timestamp_gt", mcp.Required(),
			mcp.Description("Events after this timestamp, milliseconds since epoch")),
		mcp.WithNumber("timestamp_lt",
			mcp.Description("Events before this timestamp, milliseconds since epoch")),
		mcp.WithArray("event_types", mcp.Description("Merge event types; defaults to all merge kinds"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("entity_type", mcp.Description("Entity type, e.g. Individual")),
		mcp.WithString("user", mcp.Description("Only merges performed by this user")),
		mcp.WithNumber("offset", mcp.Description("Start position for pagination")),
		mcp.WithNumber("max_results", mcp.Description("Page size, at most 100")),
		tenantParam(),
	), h.mergeActivities)

	s.AddTool(mcp.NewTool("health_check",
		mcp.WithDescription("Report server liveness without calling the platform"),
	), h.healthCheck)
}

func (h *handlers) findPotentialMatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.matches.FindPotentialMatches(ctx, match.FindMatchesRequest{
		SearchType:    match.SearchType(req.GetString("search_type", "")),
		Filter:        req.GetString("filter", ""),
		EntityType:    req.GetString("entity_type", ""),
		TenantID:      req.GetString("tenant_id", ""),
		MaxResults:    req.GetInt("max_results", 0),
		Offset:        req.GetInt("offset", 0),
		SearchFilters: req.GetString("search_filters", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) potentialMatchStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.matches.PotentialMatchStats(ctx,
		req.GetInt("min_matches", 0), req.GetString("tenant_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) entityWithMatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.matches.EntityWithMatches(ctx, match.EntityMatchesRequest{
		EntityID:               req.GetString("entity_id", ""),
		TenantID:               req.GetString("tenant_id", ""),
		Attributes:             req.GetStringSlice("attributes", nil),
		IncludeMatchAttributes: req.GetBool("include_match_attributes", false),
		MatchAttributes:        req.GetStringSlice("match_attributes", nil),
		MatchLimit:             req.GetInt("match_limit", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) unmergeEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.entities.Unmerge(ctx, entity.UnmergeRequest{
		Origin:      req.GetString("entity_id", ""),
		Contributor: req.GetString("contributor_id", ""),
		TenantID:    req.GetString("tenant_id", ""),
		Tree:        req.GetBool("tree", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) relationDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.relations.Details(ctx,
		req.GetString("relation_id", ""), req.GetString("tenant_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) createRelationships(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var specs []relation.Spec
	if err := decodeArg(req.GetArguments(), "relations", &specs); err != nil {
		return toolError(err), nil
	}
	res, err := h.relations.Create(ctx, relation.CreateRequest{
		Relations: specs,
		Options:   req.GetString("options", ""),
		TenantID:  req.GetString("tenant_id", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) deleteRelation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.relations.Delete(ctx,
		req.GetString("relation_id", ""), req.GetString("tenant_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) entityRelations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creq := relation.ConnectionsRequest{
		EntityID:       req.GetString("entity_id", ""),
		EntityTypes:    req.GetStringSlice("entity_types", nil),
		SortBy:         req.GetString("sort_by", ""),
		InRelations:    req.GetStringSlice("in_relations", nil),
		OutRelations:   req.GetStringSlice("out_relations", nil),
		Offset:         req.GetInt("offset", 0),
		Max:            req.GetInt("max", 0),
		Filter:         req.GetString("filter", ""),
		RelationFilter: req.GetString("relation_filter", ""),
		ReturnObjects:  req.GetBool("return_objects", false),
		ReturnDates:    req.GetBool("return_dates", false),
		TenantID:       req.GetString("tenant_id", ""),
	}
	if _, ok := req.GetArguments()["return_labels"]; ok {
		v := req.GetBool("return_labels", false)
		creq.ReturnLabels = &v
	}
	res, err := h.relations.Connections(ctx, creq)
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) relationSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.relations.Search(ctx, relation.SearchRequest{
		Filter:     req.GetString("filter", ""),
		Select:     req.GetString("select", ""),
		Max:        req.GetInt("max", 0),
		Offset:     req.GetInt("offset", 0),
		Sort:       req.GetString("sort", ""),
		Order:      req.GetString("order", ""),
		Options:    req.GetString("options", ""),
		Activeness: req.GetString("activeness", ""),
		TenantID:   req.GetString("tenant_id", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) userWorkflowTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.UserTasks(ctx, workflow.UserTasksRequest{
		Assignee: req.GetString("assignee", ""),
		TenantID: req.GetString("tenant_id", ""),
		Offset:   req.GetInt("offset", 0),
		Max:      req.GetInt("max_results", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) reassignWorkflowTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.Reassign(ctx,
		req.GetString("task_id", ""),
		req.GetString("assignee", ""),
		req.GetString("tenant_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) possibleAssignees(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.PossibleAssignees(ctx, workflow.PossibleAssigneesRequest{
		TenantID:   req.GetString("tenant_id", ""),
		Tasks:      req.GetStringSlice("tasks", nil),
		TaskFilter: mapArg(req.GetArguments(), "task_filter"),
		Exclude:    req.GetStringSlice("exclude", nil),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) retrieveTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	wreq := workflow.RetrieveTasksRequest{
		TenantID:               req.GetString("tenant_id", ""),
		Assignee:               req.GetString("assignee", ""),
		ProcessInstanceID:      req.GetString("process_instance_id", ""),
		ProcessType:            req.GetString("process_type", ""),
		ProcessTypes:           req.GetStringSlice("process_types", nil),
		Offset:                 req.GetInt("offset", 0),
		Max:                    req.GetInt("max_results", 0),
		CreatedBy:              req.GetString("created_by", ""),
		PriorityClass:          req.GetString("priority_class", ""),
		OrderBy:                req.GetString("order_by", ""),
		Ascending:              req.GetBool("ascending", false),
		TaskType:               req.GetString("task_type", ""),
		State:                  req.GetString("state", ""),
		ObjectURIs:             req.GetStringSlice("object_uris", nil),
		ShowTaskVariables:      req.GetBool("show_task_variables", false),
		ShowTaskLocalVariables: req.GetBool("show_task_local_variables", false),
		ObjectFilter:           req.GetString("object_filter", ""),
	}
	if _, ok := args["suspended"]; ok {
		v := req.GetBool("suspended", false)
		wreq.Suspended = &v
	}
	if _, ok := args["created_after"]; ok {
		v := int64(req.GetInt("created_after", 0))
		wreq.CreatedAfter = &v
	}
	if _, ok := args["created_before"]; ok {
		v := int64(req.GetInt("created_before", 0))
		wreq.CreatedBefore = &v
	}
	res, err := h.workflows.RetrieveTasks(ctx, wreq)
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) taskDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.TaskDetails(ctx,
		req.GetString("task_id", ""),
		req.GetString("tenant_id", ""),
		req.GetBool("show_task_variables", false),
		req.GetBool("show_task_local_variables", false))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) startProcessInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.StartProcess(ctx, workflow.StartProcessRequest{
		ProcessType: req.GetString("process_type", ""),
		ObjectURIs:  req.GetStringSlice("object_uris", nil),
		TenantID:    req.GetString("tenant_id", ""),
		Comment:     req.GetString("comment", ""),
		Variables:   mapArg(req.GetArguments(), "variables"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) executeTaskAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.workflows.ExecuteAction(ctx,
		req.GetString("task_id", ""),
		req.GetString("action", ""),
		req.GetString("tenant_id", ""),
		req.GetString("comment", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) checkUserActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.activities.CheckUser(ctx,
		req.GetString("username", ""),
		req.GetInt("days_back", 0),
		req.GetString("tenant_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) mergeActivities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	areq := activity.MergeActivitiesRequest{
		TimestampGT: int64(req.GetInt("timestamp_gt", 0)),
		EventTypes:  req.GetStringSlice("event_types", nil),
		EntityType:  req.GetString("entity_type", ""),
		User:        req.GetString("user", ""),
		TenantID:    req.GetString("tenant_id", ""),
		Offset:      req.GetInt("offset", 0),
		Max:         req.GetInt("max_results", 0),
	}
	if _, ok := req.GetArguments()["timestamp_lt"]; ok {
		v := int64(req.GetInt("timestamp_lt", 0))
		areq.TimestampLT = &v
	}
	res, err := h.activities.MergeActivities(ctx, areq)
	if err != nil {
		return toolError(err), nil
	}
	return renderResult(res)
}

func (h *handlers) healthCheck(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return renderResult(map[string]any{
		"status":    "ok",
		"message":   serverName + " is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
