package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

type hostedSessionResponse struct {
	User *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Image string `json:"image"`
	} `json:"user"`
}

// HostedSession asks the provider-hosted session endpoint who owns the
// forwarded cookie.
type HostedSession struct {
	url        string
	httpClient *http.Client
}

func NewHostedSession(url string, client *http.Client) *HostedSession {
	return &HostedSession{url: url, httpClient: client}
}

func (h *HostedSession) Strategy() model.AuthStrategy {
	return model.StrategyHostedSession
}

func (h *HostedSession) CompleteLogin(ctx context.Context, cred Credential) (*model.Identity, error) {
	if cred.Cookie == "" {
		return nil, apperrors.InvalidCredential("session cookie is required")
	}

	ctx, cancel := context.WithTimeout(ctx, config.UpstreamRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, apperrors.ProviderUnavailable("hosted session", err)
	}
	req.Header.Set("Cookie", cred.Cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ProviderUnavailable("hosted session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.ProviderUnavailable("hosted session", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body hostedSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.ProviderUnavailable("hosted session", err)
	}
	if body.User == nil || body.User.Email == "" {
		return nil, apperrors.InvalidCredential("No active hosted session")
	}

	return normalize(body.User.Name, body.User.Email, body.User.Image), nil
}
