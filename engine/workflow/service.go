package workflow

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// MaxTaskPage caps the page size accepted by the workflow task endpoints.
const MaxTaskPage = 100

// taskWindow is the deepest task offset+max the workflow service pages over.
const taskWindow = 10000

// Service drives the workflow task lifecycle: listing, reassignment,
// action execution and process instance creation.
type Service struct {
	client   *mdm.Client
	validate *validator.Validate
}

func NewService(client *mdm.Client) *Service {
	return &Service{client: client, validate: validator.New()}
}

// envelope is the common response shape of the workflow task endpoints.
type envelope struct {
	Status  string           `json:"status"`
	Error   *serviceError    `json:"error,omitempty"`
	Warning string           `json:"warning,omitempty"`
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	Size    int              `json:"size"`
	Data    []map[string]any `json:"data"`
}

type serviceError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// failedError maps a 200 response carrying status "failed" onto the error
// taxonomy. The workflow service reports rejections this way instead of
// using HTTP status codes.
func failedError(op string, e *serviceError) error {
	code, msg := "Unknown", "Unknown error"
	if e != nil {
		if e.ErrorCode != "" {
			code = e.ErrorCode
		}
		if e.ErrorMessage != "" {
			msg = e.ErrorMessage
		}
	}
	return &core.Error{
		Code:    core.ErrUnavailableCode,
		Message: fmt.Sprintf("workflow service rejected %s", op),
		Details: fmt.Sprintf("%s: %s", code, msg),
	}
}

// Task is the trimmed per-task view returned by UserTasks.
type Task struct {
	TaskID                       string   `json:"taskId"                       yaml:"taskId"`
	ProcessType                  string   `json:"processType"                  yaml:"processType"`
	TaskType                     string   `json:"taskType"                     yaml:"taskType"`
	CreateTime                   any      `json:"createTime"                   yaml:"createTime"`
	DueDate                      any      `json:"dueDate"                      yaml:"dueDate"`
	DisplayName                  string   `json:"displayName"                  yaml:"displayName"`
	PriorityClass                string   `json:"priorityClass"                yaml:"priorityClass"`
	ProcessDefinitionDisplayName string   `json:"processDefinitionDisplayName" yaml:"processDefinitionDisplayName"`
	ObjectURIs                   []string `json:"objectURIs"                   yaml:"objectURIs"`
}

// UserTasksRequest lists the open tasks assigned to one user.
type UserTasksRequest struct {
	Assignee string `validate:"required"`
	TenantID string
	Offset   int `validate:"min=0"`
	Max      int `validate:"min=0,max=100"`
}

// TaskList pairs a page of tasks with the assignee's total count.
type TaskList struct {
	Assignee      string `json:"assignee"       yaml:"assignee"`
	TotalTasks    int    `json:"total_tasks"    yaml:"total_tasks"`
	ReturnedCount int    `json:"returned_count" yaml:"returned_count"`
	Offset        int    `json:"offset"         yaml:"offset"`
	Status        string `json:"status"         yaml:"status"`
	Tasks         []Task `json:"tasks"          yaml:"tasks"`
}

// UserTasks lists tasks assigned to one user together with the total count.
// Callers wanting only the total can request a single row.
func (s *Service) UserTasks(ctx context.Context, req UserTasksRequest) (*TaskList, error) {
	if req.Max == 0 {
		req.Max = 10
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid user tasks request", err)
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	var env envelope
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "tasks",
		Body: map[string]any{
			"assignee": req.Assignee,
			"offset":   req.Offset,
			"max":      req.Max,
		},
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Status == "failed" {
		return nil, failedError("user task listing", env.Error)
	}

	tasks := make([]Task, 0, len(env.Data))
	for _, raw := range env.Data {
		tasks = append(tasks, summarizeTask(raw))
	}
	logger.FromContext(ctx).Debug("listed user tasks",
		"assignee", req.Assignee, "total", env.Total, "returned", len(tasks))
	return &TaskList{
		Assignee:      req.Assignee,
		TotalTasks:    env.Total,
		ReturnedCount: len(tasks),
		Offset:        env.Offset,
		Status:        env.Status,
		Tasks:         tasks,
	}, nil
}

func summarizeTask(raw map[string]any) Task {
	t := Task{
		TaskID:                       stringField(raw, "taskId"),
		ProcessType:                  stringField(raw, "processType"),
		TaskType:                     stringField(raw, "taskType"),
		CreateTime:                   raw["createTime"],
		DueDate:                      raw["dueDate"],
		DisplayName:                  stringField(raw, "displayName"),
		PriorityClass:                stringField(raw, "priorityClass"),
		ProcessDefinitionDisplayName: stringField(raw, "processDefinitionDisplayName"),
		ObjectURIs:                   []string{},
	}
	if uris, ok := raw["objectURIs"].([]any); ok {
		for _, u := range uris {
			if s, ok := u.(string); ok {
				t.ObjectURIs = append(t.ObjectURIs, s)
			}
		}
	}
	return t
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// RetrieveTasksRequest filters the task inventory. All set filters are
// AND-combined by the workflow service.
type RetrieveTasksRequest struct {
	TenantID               string
	Assignee               string   // "none" selects unassigned tasks
	ProcessInstanceID      string
	ProcessType            string
	ProcessTypes           []string
	Offset                 int `validate:"min=0"`
	Max                    int `validate:"min=0,max=100"`
	Suspended              *bool
	CreatedBy              string
	PriorityClass          string `validate:"omitempty,oneof=Urgent High Medium Low"`
	OrderBy                string `validate:"omitempty,oneof=createTime assignee dueDate priority"`
	Ascending              bool
	TaskType               string
	CreatedAfter           *int64 `validate:"omitempty,min=0"`
	CreatedBefore          *int64 `validate:"omitempty,min=0"`
	State                  string `validate:"omitempty,oneof=valid invalid all"`
	ObjectURIs             []string
	ShowTaskVariables      bool
	ShowTaskLocalVariables bool
	ObjectFilter           string
}

// TaskPage is a filtered page of raw task records with pagination info.
type TaskPage struct {
	Offset  int              `json:"offset"            yaml:"offset"`
	Size    int              `json:"size"              yaml:"size"`
	Total   int              `json:"total"             yaml:"total"`
	Data    []map[string]any `json:"data"              yaml:"data"`
	Status  string           `json:"status"            yaml:"status"`
	Warning string           `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// RetrieveTasks queries tasks by arbitrary filter combinations.
func (s *Service) RetrieveTasks(ctx context.Context, req RetrieveTasksRequest) (*TaskPage, error) {
	if req.Max == 0 {
		req.Max = 10
	}
	if req.OrderBy == "" {
		req.OrderBy = "createTime"
	}
	if req.State == "" {
		req.State = "valid"
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid task retrieval request", err)
	}
	if req.CreatedAfter != nil && req.CreatedBefore != nil && *req.CreatedBefore <= *req.CreatedAfter {
		return nil, core.NewError(core.ErrValidationCode,
			"created_before must be greater than created_after")
	}
	if req.Offset+req.Max > taskWindow {
		return nil, core.NewError(core.ErrValidationCode,
			fmt.Sprintf("offset plus max must not exceed %d", taskWindow))
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"offset":                 req.Offset,
		"max":                    req.Max,
		"orderBy":                req.OrderBy,
		"ascending":              req.Ascending,
		"state":                  req.State,
		"showTaskVariables":      req.ShowTaskVariables,
		"showTaskLocalVariables": req.ShowTaskLocalVariables,
	}
	setIfNotEmpty := func(key, value string) {
		if value != "" {
			body[key] = value
		}
	}
	setIfNotEmpty("assignee", req.Assignee)
	setIfNotEmpty("processInstanceId", req.ProcessInstanceID)
	setIfNotEmpty("processType", req.ProcessType)
	setIfNotEmpty("createdBy", req.CreatedBy)
	setIfNotEmpty("priorityClass", req.PriorityClass)
	setIfNotEmpty("taskType", req.TaskType)
	setIfNotEmpty("objectFilter", req.ObjectFilter)
	if len(req.ProcessTypes) > 0 {
		body["processTypes"] = req.ProcessTypes
	}
	if req.Suspended != nil {
		body["suspended"] = *req.Suspended
	}
	if req.CreatedAfter != nil {
		body["createdAfter"] = *req.CreatedAfter
	}
	if req.CreatedBefore != nil {
		body["createdBefore"] = *req.CreatedBefore
	}
	if len(req.ObjectURIs) > 0 {
		body["objectURIs"] = req.ObjectURIs
	}

	var env envelope
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "tasks",
		Query:  map[string]string{"checkAccess": "true"},
		Body:   body,
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Status == "failed" {
		return nil, failedError("task retrieval", env.Error)
	}

	data := env.Data
	if data == nil {
		data = []map[string]any{}
	}
	size := env.Size
	if size == 0 {
		size = len(data)
	}
	return &TaskPage{
		Offset:  env.Offset,
		Size:    size,
		Total:   env.Total,
		Data:    data,
		Status:  env.Status,
		Warning: env.Warning,
	}, nil
}

// TaskDetails fetches the full record of one task, optionally including its
// process and task-local variables.
func (s *Service) TaskDetails(ctx context.Context, taskID, tenantID string, showVars, showLocalVars bool) (map[string]any, error) {
	if taskID == "" {
		return nil, core.NewError(core.ErrValidationCode, "task_id is required")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	query := map[string]string{}
	if showVars {
		query["showTaskVariables"] = "true"
	}
	if showLocalVars {
		query["showTaskLocalVariables"] = "true"
	}
	var detail map[string]any
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodGet,
		Tenant: tenant,
		Path:   "tasks/" + taskID,
		Query:  query,
	}, &detail)
	if err != nil {
		return nil, err
	}
	if status, _ := detail["status"].(string); status == "failed" {
		return nil, failedError("task details lookup", detailError(detail))
	}
	return detail, nil
}

func detailError(detail map[string]any) *serviceError {
	raw, ok := detail["error"].(map[string]any)
	if !ok {
		return nil
	}
	return &serviceError{
		ErrorCode:    stringField(raw, "errorCode"),
		ErrorMessage: stringField(raw, "errorMessage"),
	}
}

// terminalTask reports whether the detail record describes a task that has
// already reached a terminal action and accepts no further transitions.
func terminalTask(detail map[string]any) bool {
	if v, ok := detail["endDate"]; ok && v != nil {
		if n, ok := asMillis(v); !ok || n > 0 {
			return true
		}
	}
	if state, ok := detail["state"].(string); ok && state != "" && !strings.EqualFold(state, "open") {
		return true
	}
	return false
}

func asMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func possibleActions(detail map[string]any) []string {
	raw, ok := detail["possibleActions"].([]any)
	if !ok {
		return nil
	}
	actions := make([]string, 0, len(raw))
	for _, a := range raw {
		switch v := a.(type) {
		case string:
			actions = append(actions, v)
		case map[string]any:
			if name := stringField(v, "action"); name != "" {
				actions = append(actions, name)
			}
		}
	}
	return actions
}

// ReassignResult reports the outcome of a task reassignment.
type ReassignResult struct {
	TaskID   string `json:"taskId"   yaml:"taskId"`
	Assignee string `json:"assignee" yaml:"assignee"`
	Status   string `json:"status"   yaml:"status"`
	Success  bool   `json:"success"  yaml:"success"`
}

// Reassign moves an open task to a new assignee. Tasks that already reached
// a terminal action are rejected before any mutating call is made.
func (s *Service) Reassign(ctx context.Context, taskID, assignee, tenantID string) (*ReassignResult, error) {
	if taskID == "" {
		return nil, core.NewError(core.ErrValidationCode, "task_id is required")
	}
	if assignee == "" {
		return nil, core.NewError(core.ErrValidationCode, "assignee is required")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	detail, err := s.TaskDetails(ctx, taskID, tenant, false, false)
	if err != nil {
		return nil, err
	}
	if terminalTask(detail) {
		return nil, core.InvalidState(
			fmt.Sprintf("task %s has already been actioned and cannot be reassigned", taskID))
	}

	var env envelope
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPut,
		Tenant: tenant,
		Path:   "tasks",
		Body: []map[string]string{
			{"taskId": taskID, "assignee": assignee},
		},
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Status == "failed" {
		return nil, failedError("task reassignment", env.Error)
	}
	return &ReassignResult{
		TaskID:   taskID,
		Assignee: assignee,
		Status:   env.Status,
		Success:  strings.EqualFold(env.Status, "OK"),
	}, nil
}

// PossibleAssigneesRequest resolves who may take a set of tasks. Either
// name the tasks directly, or describe them with a filter and an optional
// exclusion list. The two modes are mutually exclusive.
type PossibleAssigneesRequest struct {
	TenantID   string
	Tasks      []string
	TaskFilter map[string]any
	Exclude    []string
}

// PossibleAssignees fetches the candidate assignees for tasks selected by ID
// or by filter.
func (s *Service) PossibleAssignees(ctx context.Context, req PossibleAssigneesRequest) (map[string]any, error) {
	hasTasks := len(req.Tasks) > 0
	hasFilter := len(req.TaskFilter) > 0
	hasExclude := len(req.Exclude) > 0
	if hasTasks && (hasFilter || hasExclude) {
		return nil, core.NewError(core.ErrValidationCode,
			"tasks cannot be combined with task_filter or exclude")
	}
	if !hasTasks && !hasFilter && !hasExclude {
		return nil, core.NewError(core.ErrValidationCode,
			"one of tasks, task_filter or exclude is required")
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	if hasTasks {
		body["tasks"] = req.Tasks
	} else {
		// Filter mode always carries a filter object, empty when the caller
		// only excludes tasks.
		filter := req.TaskFilter
		if filter == nil {
			filter = map[string]any{}
		}
		body["filter"] = filter
		if hasExclude {
			body["exclude"] = req.Exclude
		}
	}

	var out map[string]any
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "assignee",
		Body:   body,
	}, &out)
	if err != nil {
		return nil, err
	}
	if status, _ := out["status"].(string); status == "failed" {
		return nil, failedError("assignee lookup", detailError(out))
	}
	return out, nil
}

// ActionResult reports a task action execution.
type ActionResult struct {
	TaskID  string `json:"taskId"            yaml:"taskId"`
	Action  string `json:"action"            yaml:"action"`
	Status  string `json:"status"            yaml:"status"`
	Success bool   `json:"success"           yaml:"success"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// ExecuteAction performs a lifecycle action such as Approve or Reject on a
// task. The action must be offered by the task's current possibleActions;
// tasks that already reached a terminal action are rejected up front.
func (s *Service) ExecuteAction(ctx context.Context, taskID, action, tenantID, comment string) (*ActionResult, error) {
	if taskID == "" {
		return nil, core.NewError(core.ErrValidationCode, "task_id is required")
	}
	if action == "" {
		return nil, core.NewError(core.ErrValidationCode, "action is required")
	}
	tenant, err := s.client.ResolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	detail, err := s.TaskDetails(ctx, taskID, tenant, false, false)
	if err != nil {
		return nil, err
	}
	if terminalTask(detail) {
		return nil, core.InvalidState(
			fmt.Sprintf("task %s has already been actioned", taskID))
	}
	if actions := possibleActions(detail); len(actions) > 0 && !containsFold(actions, action) {
		return nil, core.InvalidAction(
			fmt.Sprintf("action %q is not available for task %s; possible actions: %s",
				action, taskID, strings.Join(actions, ", ")))
	}

	body := map[string]any{"action": action}
	if comment != "" {
		body["processInstanceComment"] = comment
	}
	var env envelope
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "tasks/" + taskID + "/_action",
		Body:   body,
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Status == "failed" {
		return nil, failedError("task action", env.Error)
	}
	logger.FromContext(ctx).Info("executed task action",
		"task", taskID, "action", action, "status", env.Status)
	return &ActionResult{
		TaskID:  taskID,
		Action:  action,
		Status:  env.Status,
		Success: strings.EqualFold(env.Status, "OK"),
		Comment: comment,
	}, nil
}

func containsFold(items []string, want string) bool {
	for _, item := range items {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}

// StartProcessRequest creates a new process instance over a set of objects.
type StartProcessRequest struct {
	ProcessType string   `validate:"required"`
	ObjectURIs  []string `validate:"required,min=1"`
	TenantID    string
	Comment     string
	Variables   map[string]any
}

// ProcessInstance is the handle returned for a newly started process.
type ProcessInstance struct {
	ProcessInstanceID string   `json:"processInstanceId" yaml:"processInstanceId"`
	ProcessType       string   `json:"processType"       yaml:"processType"`
	ObjectURIs        []string `json:"objectURIs"        yaml:"objectURIs"`
	Status            string   `json:"status"            yaml:"status"`
}

// StartProcess starts a workflow process instance and returns its handle.
// It does not wait for the tasks the process spawns.
func (s *Service) StartProcess(ctx context.Context, req StartProcessRequest) (*ProcessInstance, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, core.WrapError(core.ErrValidationCode, "invalid process instance request", err)
	}
	tenant, err := s.client.ResolveTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"processType": req.ProcessType,
		"objectURIs":  req.ObjectURIs,
	}
	if req.Comment != "" {
		body["comment"] = req.Comment
	}
	if len(req.Variables) > 0 {
		body["variables"] = req.Variables
	}
	var out map[string]any
	err = s.client.DoWorkflow(ctx, mdm.Call{
		Method: http.MethodPost,
		Tenant: tenant,
		Path:   "processInstances",
		Body:   body,
	}, &out)
	if err != nil {
		return nil, err
	}
	if status, _ := out["status"].(string); status == "failed" {
		return nil, failedError("process instance creation", detailError(out))
	}

	status := stringField(out, "status")
	if status == "" {
		status = "STARTED"
	}
	instance := &ProcessInstance{
		ProcessInstanceID: stringField(out, "processInstanceId"),
		ProcessType:       req.ProcessType,
		ObjectURIs:        req.ObjectURIs,
		Status:            status,
	}
	logger.FromContext(ctx).Info("started process instance",
		"process", instance.ProcessInstanceID, "type", req.ProcessType, "objects", len(req.ObjectURIs))
	return instance, nil
}
