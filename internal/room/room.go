// Package room mints short-lived access grants for the real-time media room.
// Tokens use the LiveKit access-token claim layout so any LiveKit-compatible
// server accepts them.
package room

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/config"
	"github.com/teknolabs/vocameet-server/internal/model"
)

type AgentDispatch struct {
	AgentName string `json:"agent_name,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
}

type RoomConfig struct {
	Agents []AgentDispatch `json:"agents,omitempty"`
}

// GrantRequest is the optional client input; every field may be empty.
type GrantRequest struct {
	RoomName            string      `json:"room_name,omitempty"`
	ParticipantName     string      `json:"participant_name,omitempty"`
	ParticipantIdentity string      `json:"participant_identity,omitempty"`
	RoomConfig          *RoomConfig `json:"room_config,omitempty"`
	Voice               string      `json:"voice,omitempty"`
}

// AgentName returns the first requested agent, if any.
func (r GrantRequest) AgentName() string {
	if r.RoomConfig == nil || len(r.RoomConfig.Agents) == 0 {
		return ""
	}
	return r.RoomConfig.Agents[0].AgentName
}

type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

type Issuer interface {
	IssueRoomGrant(ctx context.Context, caller *auth.Claims, req GrantRequest) (*ConnectionDetails, error)
}

// VideoGrant lists what the participant may do in the room.
type VideoGrant struct {
	Room           string `json:"room,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
}

type TokenAgent struct {
	AgentName string `json:"agentName,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
}

type TokenRoomConfig struct {
	Agents []TokenAgent `json:"agents,omitempty"`
}

type GrantClaims struct {
	Name       string           `json:"name,omitempty"`
	Metadata   string           `json:"metadata,omitempty"`
	Video      *VideoGrant      `json:"video,omitempty"`
	RoomConfig *TokenRoomConfig `json:"roomConfig,omitempty"`
	jwt.RegisteredClaims
}

// Metadata is embedded in the grant as a JSON string.
type Metadata struct {
	AgentName   string `json:"agentName,omitempty"`
	SessionGUID string `json:"session_guid,omitempty"`
	Voice       string `json:"voice,omitempty"`
}

// New returns the proxy issuer when a token endpoint is configured, the
// local signer otherwise.
func New(sig config.Signing, client *http.Client) Issuer {
	policy := model.ParticipantPolicy(sig.ParticipantPolicy)
	if sig.LiveKitTokenEndpoint != "" {
		return NewProxyIssuer(sig.LiveKitTokenEndpoint, sig.LiveKitURL, policy, client)
	}
	return NewLocalIssuer(sig.LiveKitURL, sig.LiveKitAPIKey, sig.LiveKitAPISecret, policy)
}

func boolPtr(b bool) *bool {
	return &b
}
