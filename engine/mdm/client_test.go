package mdm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.MDM.ServerURL = srv.URL
	cfg.MDM.WorkflowURL = srv.URL
	cfg.MDM.DefaultTenant = "acme"
	return NewClient(cfg), srv
}

func TestClientDoAPI(t *testing.T) {
	t.Run("Should hit the tenant-scoped path and decode the response", func(t *testing.T) {
		var gotPath, gotQuery string
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			_ = json.NewEncoder(w).Encode(map[string]any{"total": 3})
		}))

		var out struct {
			Total int `json:"total"`
		}
		err := client.DoAPI(t.Context(), Call{
			Method: http.MethodGet,
			Tenant: "acme",
			Path:   "entities/_facets",
			Query:  map[string]string{"facet": "matchRules,type"},
		}, &out)

		require.NoError(t, err)
		assert.Equal(t, "/api/acme/entities/_facets", gotPath)
		assert.Contains(t, gotQuery, "facet=matchRules")
		assert.Equal(t, 3, out.Total)
	})

	t.Run("Should send the environment header on workflow calls", func(t *testing.T) {
		var gotHeader, gotPath string
		client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("EnvironmentURL")
			gotPath = r.URL.Path
			w.Write([]byte(`{}`))
		}))

		err := client.DoWorkflow(t.Context(), Call{
			Method: http.MethodPost,
			Tenant: "acme",
			Path:   "tasks",
			Body:   map[string]any{"max": 25},
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, srv.URL, gotHeader)
		assert.Equal(t, "/services/workflow/acme/tasks", gotPath)
	})

	t.Run("Should map 5xx to downstream unavailable", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))

		err := client.DoAPI(t.Context(), Call{Method: http.MethodGet, Tenant: "acme", Path: "entities/abc"}, nil)
		require.Error(t, err)
		assert.Equal(t, core.ErrUnavailableCode, core.CodeOf(err))
	})

	t.Run("Should expose status and body for 4xx rejections", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errorMessage":"Entity is not merged"}`))
		}))

		err := client.DoAPI(t.Context(), Call{Method: http.MethodPost, Tenant: "acme", Path: "entities/abc/_unmerge"}, nil)
		require.Error(t, err)

		var status *StatusError
		require.ErrorAs(t, err, &status)
		assert.Equal(t, http.StatusBadRequest, status.Status)
		assert.Contains(t, string(status.Body), "not merged")
	})

	t.Run("Should map an exceeded deadline to downstream timeout", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.Write([]byte(`{}`))
		}))
		client.http.SetTimeout(50 * time.Millisecond)

		err := client.DoAPI(t.Context(), Call{Method: http.MethodGet, Tenant: "acme", Path: "entities/abc"}, nil)
		require.Error(t, err)
		assert.Equal(t, core.ErrTimeoutCode, core.CodeOf(err))
	})

	t.Run("Should reject an unknown tenant before any request", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))
		client.cfg.Tenants = []string{"acme"}

		_, err := client.ResolveTenant("globex")
		require.Error(t, err)
		assert.Equal(t, core.ErrTenantNotFoundCode, core.CodeOf(err))
	})

	t.Run("Should treat a missing tenant without a default as a request defect", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Error("no request expected")
		}))
		client.cfg.DefaultTenant = ""

		_, err := client.ResolveTenant("")
		require.Error(t, err)
		assert.Equal(t, core.ErrValidationCode, core.CodeOf(err))
		assert.Contains(t, err.Error(), "tenant_id is required")
	})
}

func TestTokenSource(t *testing.T) {
	t.Run("Should stay inert without configured credentials", func(t *testing.T) {
		ts := newTokenSource(&config.Auth{})
		token, err := ts.Token(t.Context(), nil)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("Should fetch and cache a client-credentials token", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "svc", user)
			assert.Equal(t, "secret", pass)
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
		}))
		t.Cleanup(srv.Close)

		cfg := config.Default()
		cfg.MDM.ServerURL = srv.URL
		cfg.Auth = config.Auth{TokenURL: srv.URL + "/oauth/token", ClientID: "svc", ClientSecret: "secret"}
		client := NewClient(cfg)

		for range 3 {
			tok, err := client.auth.Token(t.Context(), client.http)
			require.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}
		assert.Equal(t, 1, calls)
	})
}
