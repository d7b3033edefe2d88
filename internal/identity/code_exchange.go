package identity

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

// Scopes requested by the web front-end. calendar.readonly lets the
// meetings view read the caller's calendar with the delegated token.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// popup flows send the code without a redirect
const defaultRedirectURI = "postmessage"

// badCodeErrors are token endpoint replies that blame the code, not Google.
var badCodeErrors = map[string]bool{
	"invalid_grant":   true,
	"invalid_request": true,
}

type CodeExchanger struct {
	oauth       oauth2.Config
	httpClient  *http.Client
	apiEndpoint string
}

func NewCodeExchanger(clientID, clientSecret string, client *http.Client) *CodeExchanger {
	return &CodeExchanger{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		},
		httpClient: client,
	}
}

// OAuthConfig returns the client configuration used for exchanges, for
// callers that need a token source from a stored credential.
func (c *CodeExchanger) OAuthConfig() *oauth2.Config {
	cfg := c.oauth
	return &cfg
}

func (c *CodeExchanger) Strategy() model.AuthStrategy {
	return model.StrategyCodeExchange
}

func (c *CodeExchanger) CompleteLogin(ctx context.Context, cred Credential) (*model.Identity, error) {
	if cred.Code == "" {
		return nil, apperrors.InvalidCredential("code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, config.UpstreamRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	cfg := c.oauth
	cfg.RedirectURL = cred.RedirectURI
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = defaultRedirectURI
	}

	token, err := cfg.Exchange(ctx, cred.Code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && badCodeErrors[retrieveErr.ErrorCode] {
			return nil, apperrors.InvalidCredential("Authorization code rejected").WithCause(err)
		}
		return nil, apperrors.ProviderUnavailable("google token endpoint", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, cfg.TokenSource(ctx, token)))}
	if c.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.apiEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.ProviderUnavailable("google userinfo", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, apperrors.ProviderUnavailable("google userinfo", err)
	}
	if info.Email == "" {
		return nil, apperrors.InvalidCredential("Google profile has no email")
	}

	identity := normalize(info.Name, info.Email, info.Picture)
	identity.Delegated = &model.DelegatedAccess{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	return identity, nil
}
