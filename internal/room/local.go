package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

// LocalIssuer signs grants with the media server's API key and secret.
type LocalIssuer struct {
	serverURL string
	apiKey    string
	apiSecret string
	policy    model.ParticipantPolicy
	ttl       time.Duration
	now       func() time.Time
}

func NewLocalIssuer(serverURL, apiKey, apiSecret string, policy model.ParticipantPolicy) *LocalIssuer {
	return &LocalIssuer{
		serverURL: serverURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		policy:    policy,
		ttl:       config.RoomGrantTTL,
		now:       time.Now,
	}
}

func (i *LocalIssuer) configured() error {
	switch {
	case i.serverURL == "":
		return apperrors.MisconfiguredIssuer("LIVEKIT_URL is not defined")
	case i.apiKey == "":
		return apperrors.MisconfiguredIssuer("LIVEKIT_API_KEY is not defined")
	case i.apiSecret == "":
		return apperrors.MisconfiguredIssuer("LIVEKIT_API_SECRET is not defined")
	}
	return nil
}

func (i *LocalIssuer) IssueRoomGrant(_ context.Context, caller *auth.Claims, req GrantRequest) (*ConnectionDetails, error) {
	if err := i.configured(); err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, apperrors.Unauthorized("Unauthorized")
	}

	p, err := resolveParticipant(i.policy, caller, req)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(Metadata{
		AgentName:   req.AgentName(),
		SessionGUID: caller.SessionGUID,
		Voice:       req.Voice,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode grant metadata", err)
	}

	now := i.now()
	claims := &GrantClaims{
		Name:     p.Name,
		Metadata: string(metadata),
		Video: &VideoGrant{
			Room:           p.Room,
			RoomJoin:       true,
			CanPublish:     boolPtr(true),
			CanSubscribe:   boolPtr(true),
			CanPublishData: boolPtr(true),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   p.Identity,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	if agent := req.AgentName(); agent != "" {
		claims.RoomConfig = &TokenRoomConfig{Agents: []TokenAgent{{AgentName: agent}}}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to sign room grant", err)
	}

	return &ConnectionDetails{
		ServerURL:        i.serverURL,
		RoomName:         p.Room,
		ParticipantName:  p.Name,
		ParticipantToken: token,
	}, nil
}

// Verify decodes a participant token signed by this issuer.
func (i *LocalIssuer) Verify(token string) (*GrantClaims, error) {
	if err := i.configured(); err != nil {
		return nil, err
	}

	claims := &GrantClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(i.apiSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(i.apiKey), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("Invalid room grant").WithCause(err)
	}
	return claims, nil
}
