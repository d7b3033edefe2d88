package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teknolabs/vocameet-server/internal/calendar"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/repository"
	"github.com/teknolabs/vocameet-server/internal/util"
)

type CalendarService struct {
	credentials repository.CredentialRepository
	sealer      *util.Sealer
	oauth       *oauth2.Config
	httpClient  *http.Client
	endpoint    string
	maxResults  int64
	metrics     *metrics.Metrics
}

// NewCalendarService takes the OAuth client config used at login so expired
// access tokens can be refreshed. A nil config uses stored tokens as is.
func NewCalendarService(
	credentials repository.CredentialRepository,
	sealer *util.Sealer,
	oauth *oauth2.Config,
	httpClient *http.Client,
	maxResults int,
	m *metrics.Metrics,
) *CalendarService {
	return &CalendarService{
		credentials: credentials,
		sealer:      sealer,
		oauth:       oauth,
		httpClient:  httpClient,
		maxResults:  int64(maxResults),
		metrics:     m,
	}
}

// WithEndpoint points the service at a different Calendar API base URL.
func (s *CalendarService) WithEndpoint(endpoint string) *CalendarService {
	s.endpoint = endpoint
	return s
}

func (s *CalendarService) Upcoming(ctx context.Context, sessionGUID, email string) ([]*gcal.Event, error) {
	var events []*gcal.Event
	err := s.withClient(ctx, sessionGUID, email, func(c *calendar.Client) error {
		var err error
		events, err = c.ListUpcoming(ctx, s.maxResults)
		return err
	})
	return events, err
}

func (s *CalendarService) Availability(ctx context.Context, sessionGUID, email string, start, end time.Time, timezone string) ([]model.CalendarEvent, error) {
	var events []model.CalendarEvent
	err := s.withClient(ctx, sessionGUID, email, func(c *calendar.Client) error {
		var err error
		events, err = c.Availability(ctx, start, end, timezone, s.maxResults)
		return err
	})
	return events, err
}

// withClient only uses a stored credential that belongs to email. Another
// account may have signed in from the same browser session since.
func (s *CalendarService) withClient(ctx context.Context, sessionGUID, email string, fn func(*calendar.Client) error) error {
	if sessionGUID == "" {
		return apperrors.Unauthorized("No calendar access token found")
	}

	stored, err := s.credentials.FindBySessionGUID(ctx, sessionGUID)
	if err != nil {
		return apperrors.Database(err)
	}
	if stored == nil {
		return apperrors.Unauthorized("No calendar access token found")
	}
	if !strings.EqualFold(stored.Email, email) {
		log.Warn().Str("sessionGuid", sessionGUID).Msg("stored credential belongs to another account")
		return apperrors.Unauthorized("No calendar access token found")
	}

	token, err := s.openToken(stored)
	if err != nil {
		log.Error().Err(err).Str("sessionGuid", sessionGUID).Msg("failed to open stored credential")
		return apperrors.Internal("Could not validate stored credentials")
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	var source oauth2.TokenSource = oauth2.StaticTokenSource(token)
	if s.oauth != nil {
		source = s.oauth.TokenSource(oauthCtx, token)
	}

	client, err := calendar.NewClient(ctx, oauth2.NewClient(oauthCtx, source), s.endpoint)
	if err != nil {
		return apperrors.External("google calendar", err)
	}

	started := time.Now()
	err = fn(client)
	s.metrics.UpstreamLatency.WithLabelValues("google_calendar").Observe(time.Since(started).Seconds())

	s.persistRefreshed(ctx, stored, token, source)
	return err
}

func (s *CalendarService) openToken(stored *model.StoredCredential) (*oauth2.Token, error) {
	access, err := s.sealer.Open(stored.AccessToken)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if stored.RefreshToken != nil {
		refresh, err := s.sealer.Open(*stored.RefreshToken)
		if err != nil {
			return nil, err
		}
		token.RefreshToken = refresh
	}
	if stored.ExpiresAt != nil {
		token.Expiry = *stored.ExpiresAt
	}
	return token, nil
}

// persistRefreshed saves the access token if the source refreshed it.
func (s *CalendarService) persistRefreshed(ctx context.Context, stored *model.StoredCredential, original *oauth2.Token, source oauth2.TokenSource) {
	current, err := source.Token()
	if err != nil || current.AccessToken == original.AccessToken {
		return
	}

	access, err := s.sealer.Seal(current.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to seal refreshed access token")
		return
	}
	var refresh *string
	if current.RefreshToken != "" && current.RefreshToken != original.RefreshToken {
		refresh, err = s.sealer.SealOptional(&current.RefreshToken)
		if err != nil {
			log.Error().Err(err).Msg("failed to seal refreshed refresh token")
			return
		}
	}
	var expires *time.Time
	if !current.Expiry.IsZero() {
		expires = &current.Expiry
	}

	if err := s.credentials.Save(ctx, model.SaveCredentialParams{
		SessionGUID:  stored.SessionGUID,
		Email:        stored.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}); err != nil {
		log.Warn().Err(err).Str("sessionGuid", stored.SessionGUID).Msg("failed to persist refreshed credential")
	}
}
