package mdm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/pkg/config"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// Client provides access to the MDM platform's core and workflow REST APIs.
// It owns auth token acquisition and the mapping from transport failures to
// the gateway error taxonomy. It performs no internal retries; a failed
// request surfaces to the caller as-is.
type Client struct {
	http *resty.Client
	cfg  *config.MDM
	auth *tokenSource
}

// NewClient creates a platform client from the gateway configuration.
func NewClient(cfg *config.Config) *Client {
	client := resty.New().
		SetTimeout(cfg.MDM.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{
		http: client,
		cfg:  &cfg.MDM,
		auth: newTokenSource(&cfg.Auth),
	}
}

// ResolveTenant canonicalizes the caller-supplied tenant identifier against
// the registry, mapping rejection into the taxonomy. An absent tenant with
// no configured default is a request defect, not an unknown tenant.
func (c *Client) ResolveTenant(tenantID string) (string, error) {
	tenant, err := c.cfg.ResolveTenant(tenantID)
	if err != nil {
		if tenantID == "" {
			return "", core.NewError(core.ErrValidationCode,
				"tenant_id is required when no default tenant is configured")
		}
		return "", core.TenantNotFound(tenantID)
	}
	return tenant, nil
}

// Call describes a single downstream request against the core API.
type Call struct {
	Method string
	Tenant string
	// Path is relative to the tenant API base, e.g. "entities/_search".
	Path  string
	Query map[string]string
	Body  any
}

// DoAPI executes a core API call, decoding the JSON response into out when
// out is non-nil.
func (c *Client) DoAPI(ctx context.Context, call Call, out any) error {
	base := c.cfg.APIBase(call.Tenant)
	return c.do(ctx, call, base, nil, out)
}

// DoWorkflow executes a workflow API call. The workflow service requires the
// originating environment URL as a header on every request.
func (c *Client) DoWorkflow(ctx context.Context, call Call, out any) error {
	base := c.cfg.WorkflowBase(call.Tenant)
	headers := map[string]string{"EnvironmentURL": c.cfg.ServerURL}
	return c.do(ctx, call, base, headers, out)
}

func (c *Client) do(ctx context.Context, call Call, base string, headers map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if token, err := c.auth.Token(ctx, c.http); err != nil {
		return err
	} else if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	if len(call.Query) > 0 {
		req.SetQueryParams(call.Query)
	}
	if call.Body != nil {
		req.SetBody(call.Body)
	}
	if out != nil {
		req.SetResult(out).ForceContentType("application/json")
	}

	url := base + "/" + call.Path
	log := logger.FromContext(ctx)
	log.Debug("downstream request", "method", call.Method, "url", url)

	resp, err := req.Execute(call.Method, url)
	if err != nil {
		return mapTransportError(call, err)
	}
	if resp.IsError() {
		return mapStatusError(call, resp)
	}
	return nil
}

func mapTransportError(call Call, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return core.WrapError(core.ErrTimeoutCode,
			fmt.Sprintf("%s %s timed out", call.Method, call.Path), err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.WrapError(core.ErrUnavailableCode,
		fmt.Sprintf("%s %s failed", call.Method, call.Path), err)
}

// StatusError carries the downstream HTTP status and body so callers can
// map platform-specific rejections onto precise taxonomy kinds.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned %d", e.Status)
}

func mapStatusError(call Call, resp *resty.Response) error {
	status := resp.StatusCode()
	msg := fmt.Sprintf("%s %s returned %d", call.Method, call.Path, status)
	var code string
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = core.ErrTimeoutCode
	case status >= http.StatusInternalServerError:
		code = core.ErrUnavailableCode
	default:
		code = core.ErrValidationCode
	}
	return &core.Error{
		Code:    code,
		Message: msg,
		Err:     &StatusError{Status: status, Body: resp.Body()},
		Details: string(resp.Body()),
	}
}
