package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type googleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// LocalDecoder verifies a Google ID token without calling Google, using
// the cached JWKS.
type LocalDecoder struct {
	clientID string
	keyfunc  jwt.Keyfunc
	jwks     *keyfunc.JWKS
	now      func() time.Time
}

func NewLocalDecoder(clientID, jwksURL string, client *http.Client) (*LocalDecoder, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client: client,
		RefreshErrorHandler: func(err error) {
			log.Warn().Err(err).Msg("failed to refresh google jwks")
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load google jwks: %w", err)
	}
	d := newLocalDecoder(clientID, jwks.Keyfunc)
	d.jwks = jwks
	return d, nil
}

func newLocalDecoder(clientID string, kf jwt.Keyfunc) *LocalDecoder {
	return &LocalDecoder{clientID: clientID, keyfunc: kf, now: time.Now}
}

func (d *LocalDecoder) Strategy() model.AuthStrategy {
	return model.StrategyLocalDecode
}

func (d *LocalDecoder) CompleteLogin(_ context.Context, cred Credential) (*model.Identity, error) {
	if cred.IDToken == "" {
		return nil, apperrors.InvalidCredential("idToken is required")
	}

	claims := &googleIDClaims{}
	_, err := jwt.ParseWithClaims(cred.IDToken, claims, d.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(d.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, apperrors.InvalidCredential("Invalid ID token").WithCause(err)
	}

	if !validIssuer(claims.Issuer) {
		return nil, apperrors.InvalidCredential("Invalid ID token issuer")
	}
	if claims.Email == "" {
		return nil, apperrors.InvalidCredential("ID token has no email")
	}
	if !claims.EmailVerified {
		return nil, apperrors.InvalidCredential("ID token email is not verified")
	}

	return normalize(claims.Name, claims.Email, claims.Picture), nil
}

// Close stops the background JWKS refresh.
func (d *LocalDecoder) Close() {
	if d.jwks != nil {
		d.jwks.EndBackground()
	}
}

func validIssuer(iss string) bool {
	for _, allowed := range googleIssuers {
		if iss == allowed {
			return true
		}
	}
	return false
}
