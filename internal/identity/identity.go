// Package identity completes a browser login against Google and returns the
// normalized identity, whichever login flow the deployment uses.
package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/teknolabs/vocameet-server/internal/config"
	"github.com/teknolabs/vocameet-server/internal/model"
)

// Credential is what the browser hands over after the provider's UI. Which
// field is read depends on the strategy.
type Credential struct {
	IDToken     string `json:"idToken,omitempty"`
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`
	Cookie      string `json:"-"`
}

type Authenticator interface {
	Strategy() model.AuthStrategy
	CompleteLogin(ctx context.Context, cred Credential) (*model.Identity, error)
}

type Options struct {
	Strategy         model.AuthStrategy
	ClientID         string
	ClientSecret     string
	JWKSURL          string
	HostedSessionURL string
	HTTPClient       *http.Client
}

// New builds the authenticator for the configured strategy.
func New(opts Options) (Authenticator, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.UpstreamRequestTimeout}
	}

	switch opts.Strategy {
	case model.StrategyLocalDecode:
		return NewLocalDecoder(opts.ClientID, opts.JWKSURL, client)
	case model.StrategyCodeExchange:
		return NewCodeExchanger(opts.ClientID, opts.ClientSecret, client), nil
	case model.StrategyHostedSession:
		return NewHostedSession(opts.HostedSessionURL, client), nil
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", opts.Strategy)
	}
}

func normalize(name, email, picture string) *model.Identity {
	return &model.Identity{Name: name, Email: email, Picture: picture}
}
