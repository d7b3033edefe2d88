package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
)

// Claims is the payload of a session token. The field names match what the
// web front-end reads from the token.
type Claims struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Picture     string `json:"picture"`
	SessionGUID string `json:"session_guid"`
	jwt.RegisteredClaims
}

// Identity returns the login identity carried by the claims.
func (c *Claims) Identity() *model.Identity {
	return &model.Identity{Name: c.Name, Email: c.Email, Picture: c.Picture}
}

type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signer mints and verifies HS256 session tokens with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, apperrors.SigningKeyMissing()
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    config.SessionTokenTTL,
		now:    time.Now,
	}, nil
}

// Issue signs a token for identity bound to sessionID. iat and exp are taken
// from the current time, so two calls never return the same signature once
// the clock has moved.
func (s *Signer) Issue(identity *model.Identity, sessionID string) (*IssuedToken, error) {
	if identity == nil || identity.Email == "" {
		return nil, apperrors.ValidationError("identity with email is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Email:       identity.Email,
		Name:        identity.Name,
		Picture:     identity.Picture,
		SessionGUID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to sign session token", err)
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, apperrors.Unauthorized("Missing authentication token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.InvalidToken("Unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("Invalid token").WithCause(err)
	}
	if !token.Valid || claims.Email == "" {
		return nil, apperrors.InvalidToken("Invalid token")
	}
	return claims, nil
}

// Refresh signs the verified claims again with an expiry relative to now.
func (s *Signer) Refresh(claims *Claims) (*IssuedToken, error) {
	if claims == nil {
		return nil, apperrors.Unauthorized("Unauthorized")
	}
	return s.Issue(claims.Identity(), claims.SessionGUID)
}
