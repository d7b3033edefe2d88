package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

type proxyRequest struct {
	Room        string `json:"room"`
	Identity    string `json:"identity"`
	Name        string `json:"name"`
	Voice       string `json:"voice,omitempty"`
	AgentName   string `json:"agent_name,omitempty"`
	SessionGUID string `json:"session_guid,omitempty"`
}

type proxyResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// ProxyIssuer delegates signing to an external token endpoint, such as the
// voice agent backend.
type ProxyIssuer struct {
	endpoint   string
	serverURL  string
	policy     model.ParticipantPolicy
	httpClient *http.Client
}

func NewProxyIssuer(endpoint, serverURL string, policy model.ParticipantPolicy, client *http.Client) *ProxyIssuer {
	if client == nil {
		client = &http.Client{Timeout: config.UpstreamRequestTimeout}
	}
	return &ProxyIssuer{endpoint: endpoint, serverURL: serverURL, policy: policy, httpClient: client}
}

func (p *ProxyIssuer) IssueRoomGrant(ctx context.Context, caller *auth.Claims, req GrantRequest) (*ConnectionDetails, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("Unauthorized")
	}

	part, err := resolveParticipant(p.policy, caller, req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(proxyRequest{
		Room:        part.Room,
		Identity:    part.Identity,
		Name:        part.Name,
		Voice:       req.Voice,
		AgentName:   req.AgentName(),
		SessionGUID: caller.SessionGUID,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode token request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.UpstreamIssuerFailure(http.StatusBadGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.UpstreamIssuerFailure(http.StatusBadGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(detail)).
			Msg("token endpoint rejected request")
		return nil, apperrors.UpstreamIssuerFailure(resp.StatusCode, fmt.Errorf("token endpoint status %d", resp.StatusCode))
	}

	var out proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return nil, apperrors.UpstreamIssuerFailure(http.StatusBadGateway, fmt.Errorf("malformed token response: %v", err))
	}

	serverURL := out.URL
	if serverURL == "" {
		serverURL = p.serverURL
	}
	return &ConnectionDetails{
		ServerURL:        serverURL,
		RoomName:         part.Room,
		ParticipantName:  part.Name,
		ParticipantToken: out.Token,
	}, nil
}
