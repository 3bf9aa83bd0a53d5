package mdm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/pkg/config"
)

// tokenSource acquires and caches an OAuth client-credentials token for the
// platform. When no credentials are configured it stays inert and requests
// go out unauthenticated, which suits local doubles and tests.
type tokenSource struct {
	cfg *config.Auth

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(cfg *config.Auth) *tokenSource {
	return &tokenSource{cfg: cfg}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, refreshing when the cached one is
// within a minute of expiry.
func (t *tokenSource) Token(ctx context.Context, client *resty.Client) (string, error) {
	if t.cfg.TokenURL == "" || t.cfg.ClientID == "" {
		return "", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Until(t.expires) > time.Minute {
		return t.token, nil
	}

	var body tokenResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBasicAuth(t.cfg.ClientID, t.cfg.ClientSecret.Value()).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&body).
		ForceContentType("application/json").
		Post(t.cfg.TokenURL)
	if err != nil {
		return "", core.WrapError(core.ErrUnavailableCode, "token request failed", err)
	}
	if resp.IsError() {
		return "", core.NewError(core.ErrUnavailableCode,
			fmt.Sprintf("token request returned %d", resp.StatusCode()))
	}
	if body.AccessToken == "" {
		return "", core.NewError(core.ErrUnavailableCode, "token response missing access_token")
	}

	t.token = body.AccessToken
	t.expires = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return t.token, nil
}
