package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/database"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/identity"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/repository"
	"github.com/teknolabs/vocameet-server/internal/util"
)

// TxRunner is satisfied by *database.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type LoginResult struct {
	Token       string          `json:"token"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	SessionGUID string          `json:"sessionGuid"`
	User        *model.Identity `json:"user"`
}

type AuthService struct {
	authenticator identity.Authenticator
	signer        *auth.Signer
	db            TxRunner
	users         repository.UserRepository
	credentials   repository.CredentialRepository
	sealer        *util.Sealer
	metrics       *metrics.Metrics
}

func NewAuthService(
	authenticator identity.Authenticator,
	signer *auth.Signer,
	db TxRunner,
	users repository.UserRepository,
	credentials repository.CredentialRepository,
	sealer *util.Sealer,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		signer:        signer,
		db:            db,
		users:         users,
		credentials:   credentials,
		sealer:        sealer,
		metrics:       m,
	}
}

func (s *AuthService) Strategy() model.AuthStrategy {
	return s.authenticator.Strategy()
}

// Login completes the provider flow, records the user and any delegated
// credential, and signs a session token bound to sessionGUID.
func (s *AuthService) Login(ctx context.Context, cred identity.Credential, sessionGUID string) (*LoginResult, error) {
	strategy := string(s.authenticator.Strategy())

	started := time.Now()
	id, err := s.authenticator.CompleteLogin(ctx, cred)
	s.metrics.UpstreamLatency.WithLabelValues(strategy).Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.Logins.WithLabelValues(strategy, "failure").Inc()
		return nil, err
	}

	if err := s.persist(ctx, id, sessionGUID); err != nil {
		s.metrics.Logins.WithLabelValues(strategy, "failure").Inc()
		return nil, err
	}

	issued, err := s.signer.Issue(id, sessionGUID)
	if err != nil {
		s.metrics.Logins.WithLabelValues(strategy, "failure").Inc()
		return nil, err
	}
	s.metrics.Logins.WithLabelValues(strategy, "success").Inc()
	s.metrics.SessionTokens.Inc()

	return &LoginResult{
		Token:       issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		SessionGUID: sessionGUID,
		User:        id,
	}, nil
}

func (s *AuthService) persist(ctx context.Context, id *model.Identity, sessionGUID string) error {
	var picture *string
	if id.Picture != "" {
		picture = &id.Picture
	}
	params := model.UpsertUserParams{Email: id.Email, Name: id.Name, Picture: picture}

	var credParams *model.SaveCredentialParams
	if id.Delegated != nil && sessionGUID != "" {
		p, err := s.sealCredential(id, sessionGUID)
		if err != nil {
			return err
		}
		credParams = p
	}

	save := func(users repository.UserRepository, creds repository.CredentialRepository) error {
		if _, err := users.UpsertLogin(ctx, params); err != nil {
			return apperrors.Database(err)
		}
		if credParams != nil {
			if err := creds.Save(ctx, *credParams); err != nil {
				return apperrors.Database(err)
			}
		}
		return nil
	}

	if s.db == nil {
		return save(s.users, s.credentials)
	}
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return save(s.users.WithTx(tx), s.credentials.WithTx(tx))
	})
}

func (s *AuthService) sealCredential(id *model.Identity, sessionGUID string) (*model.SaveCredentialParams, error) {
	access, err := s.sealer.Seal(id.Delegated.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to seal access token")
		return nil, apperrors.Internal("Failed to store credential")
	}

	var refresh *string
	if id.Delegated.RefreshToken != "" {
		refresh, err = s.sealer.SealOptional(&id.Delegated.RefreshToken)
		if err != nil {
			log.Error().Err(err).Msg("failed to seal refresh token")
			return nil, apperrors.Internal("Failed to store credential")
		}
	}

	var expires *time.Time
	if !id.Delegated.Expiry.IsZero() {
		e := id.Delegated.Expiry
		expires = &e
	}

	return &model.SaveCredentialParams{
		SessionGUID:  sessionGUID,
		Email:        id.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}, nil
}

// Refresh re-issues a fresh token for an already verified caller.
func (s *AuthService) Refresh(claims *auth.Claims) (*LoginResult, error) {
	issued, err := s.signer.Refresh(claims)
	if err != nil {
		return nil, err
	}
	s.metrics.SessionTokens.Inc()

	return &LoginResult{
		Token:       issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		SessionGUID: claims.SessionGUID,
		User:        claims.Identity(),
	}, nil
}

// Logout forgets the caller's delegated credential and stamps the logout.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return apperrors.Unauthorized("Not signed in")
	}
	if err := s.users.MarkLogout(ctx, claims.Email); err != nil {
		return apperrors.Database(err)
	}
	if claims.SessionGUID != "" {
		if err := s.credentials.DeleteBySessionGUID(ctx, claims.SessionGUID); err != nil {
			return apperrors.Database(err)
		}
	}
	return nil
}
