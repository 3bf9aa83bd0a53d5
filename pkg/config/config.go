package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete configuration for the gateway.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Server Server `koanf:"server" validate:"required"`
	MDM    MDM    `koanf:"mdm"    validate:"required"`
	Auth   Auth   `koanf:"auth"`
}

// Server contains MCP server configuration.
type Server struct {
	// Transport selects how the server speaks MCP: "stdio" or "sse".
	Transport string        `koanf:"transport" validate:"oneof=stdio sse"  env:"SERVER_TRANSPORT"`
	Host      string        `koanf:"host"                                  env:"SERVER_HOST"`
	Port      int           `koanf:"port"      validate:"min=1,max=65535"  env:"SERVER_PORT"`
	Timeout   time.Duration `koanf:"timeout"                               env:"SERVER_TIMEOUT"`
}

// MDM contains the downstream platform configuration.
type MDM struct {
	// ServerURL is the platform API host, e.g. https://dev.example-mdm.com.
	ServerURL string `koanf:"server_url" validate:"required,url" env:"MDM_SERVER_URL"`
	// WorkflowURL is the workflow API host. Empty means derive it from
	// ServerURL by inserting the "-workflowui" environment suffix.
	WorkflowURL    string        `koanf:"workflow_url"    validate:"omitempty,url" env:"MDM_WORKFLOW_URL"`
	DefaultTenant  string        `koanf:"default_tenant"                           env:"MDM_DEFAULT_TENANT"`
	RequestTimeout time.Duration `koanf:"request_timeout"                          env:"MDM_REQUEST_TIMEOUT"`
	// Tenants restricts which tenant identifiers the gateway will serve.
	// Empty means any tenant is passed through to the platform.
	Tenants []string `koanf:"tenants" env:"MDM_TENANTS"`
}

// Auth contains client-credential configuration for the platform.
type Auth struct {
	TokenURL     string          `koanf:"token_url"     validate:"omitempty,url" env:"AUTH_TOKEN_URL"`
	ClientID     string          `koanf:"client_id"                              env:"AUTH_CLIENT_ID"`
	ClientSecret SensitiveString `koanf:"client_secret" sensitive:"true"         env:"AUTH_CLIENT_SECRET"`
}

// SensitiveString is a string that masks itself in logs and dumps.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s SensitiveString) Value() string {
	return string(s)
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			Transport: "stdio",
			Host:      "127.0.0.1",
			Port:      8095,
			Timeout:   30 * time.Second,
		},
		MDM: MDM{
			ServerURL:      "https://dev.example-mdm.com",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// APIBase returns the tenant-scoped REST base, e.g.
// https://dev.example-mdm.com/api/<tenant>.
func (m *MDM) APIBase(tenantID string) string {
	return fmt.Sprintf("%s/api/%s", strings.TrimRight(m.ServerURL, "/"), tenantID)
}

// WorkflowBase returns the tenant-scoped workflow REST base. When no
// explicit workflow host is configured it is derived from the server host:
// https://<env>.host becomes https://<env>-workflowui.host.
func (m *MDM) WorkflowBase(tenantID string) string {
	host := m.WorkflowURL
	if host == "" {
		host = strings.Replace(m.ServerURL, ".", "-workflowui.", 1)
	}
	return fmt.Sprintf("%s/services/workflow/%s", strings.TrimRight(host, "/"), tenantID)
}

// ResolveTenant canonicalizes a caller-supplied tenant identifier. An empty
// identifier falls back to the configured default; an identifier outside the
// configured allow list is rejected.
func (m *MDM) ResolveTenant(tenantID string) (string, error) {
	if tenantID == "" {
		tenantID = m.DefaultTenant
	}
	if tenantID == "" {
		return "", fmt.Errorf("no tenant provided and no default tenant configured")
	}
	if len(m.Tenants) > 0 {
		for _, allowed := range m.Tenants {
			if allowed == tenantID {
				return tenantID, nil
			}
		}
		return "", fmt.Errorf("tenant %q is not configured", tenantID)
	}
	return tenantID, nil
}
