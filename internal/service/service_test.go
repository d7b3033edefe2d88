package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/database"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/identity"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/repository"
	"github.com/teknolabs/vocameet-server/internal/util"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type mockAuthenticator struct {
	strategy model.AuthStrategy
	identity *model.Identity
	err      error
}

func (m *mockAuthenticator) Strategy() model.AuthStrategy { return m.strategy }

func (m *mockAuthenticator) CompleteLogin(ctx context.Context, cred identity.Credential) (*model.Identity, error) {
	return m.identity, m.err
}

type mockUserRepo struct {
	upsertFn     func(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
	markLogoutFn func(ctx context.Context, email string) error
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) UpsertLogin(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, params)
	}
	return &model.User{Email: params.Email, Name: params.Name}, nil
}

func (m *mockUserRepo) MarkLogout(ctx context.Context, email string) error {
	if m.markLogoutFn != nil {
		return m.markLogoutFn(ctx, email)
	}
	return nil
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository { return m }

type mockCredentialRepo struct {
	mu      sync.Mutex
	saved   map[string]model.SaveCredentialParams
	deleted []string
	findErr error
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{saved: make(map[string]model.SaveCredentialParams)}
}

func (m *mockCredentialRepo) FindBySessionGUID(ctx context.Context, sessionGUID string) (*model.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.saved[sessionGUID]
	if !ok {
		return nil, nil
	}
	return &model.StoredCredential{
		SessionGUID:  p.SessionGUID,
		Email:        p.Email,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}, nil
}

func (m *mockCredentialRepo) Save(ctx context.Context, params model.SaveCredentialParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if params.RefreshToken == nil {
		if prev, ok := m.saved[params.SessionGUID]; ok && prev.Email == params.Email {
			params.RefreshToken = prev.RefreshToken
		}
	}
	m.saved[params.SessionGUID] = params
	return nil
}

func (m *mockCredentialRepo) DeleteBySessionGUID(ctx context.Context, sessionGUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, sessionGUID)
	m.deleted = append(m.deleted, sessionGUID)
	return nil
}

func (m *mockCredentialRepo) DeleteExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	return 0, nil
}

func (m *mockCredentialRepo) WithTx(tx *sqlx.Tx) repository.CredentialRepository { return m }

type recordingTx struct{ calls int }

func (r *recordingTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	r.calls++
	return fn(nil)
}

func newSigner(t *testing.T) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner("test-signing-secret-that-is-long-enough")
	require.NoError(t, err)
	return signer
}

func newSealer(t *testing.T) *util.Sealer {
	t.Helper()
	sealer, err := util.NewSealer(testKey)
	require.NoError(t, err)
	return sealer
}

func TestAuthService_Login(t *testing.T) {
	delegated := &model.Identity{
		Name:  "Ada",
		Email: "ada@example.com",
		Delegated: &model.DelegatedAccess{
			AccessToken:  "ya29.access",
			RefreshToken: "1//refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
	}

	t.Run("issues token and stores sealed credential", func(t *testing.T) {
		signer := newSigner(t)
		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		tx := &recordingTx{}
		svc := NewAuthService(
			&mockAuthenticator{strategy: model.StrategyCodeExchange, identity: delegated},
			signer, tx, &mockUserRepo{}, creds, sealer, metrics.New(),
		)

		result, err := svc.Login(context.Background(), identity.Credential{Code: "abc"}, "guid-1")
		require.NoError(t, err)
		assert.Equal(t, "guid-1", result.SessionGUID)
		assert.Equal(t, "ada@example.com", result.User.Email)
		assert.Equal(t, 1, tx.calls)

		claims, err := signer.Verify(result.Token)
		require.NoError(t, err)
		assert.Equal(t, "guid-1", claims.SessionGUID)
		assert.Equal(t, "Ada", claims.Name)

		saved := creds.saved["guid-1"]
		assert.NotEqual(t, "ya29.access", saved.AccessToken)
		opened, err := sealer.Open(saved.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "ya29.access", opened)
		require.NotNil(t, saved.RefreshToken)
		require.NotNil(t, saved.ExpiresAt)
	})

	t.Run("no delegated access stores no credential", func(t *testing.T) {
		creds := newMockCredentialRepo()
		svc := NewAuthService(
			&mockAuthenticator{strategy: model.StrategyLocalDecode, identity: &model.Identity{Email: "ada@example.com"}},
			newSigner(t), nil, &mockUserRepo{}, creds, newSealer(t), metrics.New(),
		)

		_, err := svc.Login(context.Background(), identity.Credential{IDToken: "x"}, "guid-2")
		require.NoError(t, err)
		assert.Empty(t, creds.saved)
	})

	t.Run("second account on the same session does not inherit refresh token", func(t *testing.T) {
		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		bob := &model.Identity{
			Name:      "Bob",
			Email:     "bob@example.com",
			Delegated: &model.DelegatedAccess{AccessToken: "ya29.bob", Expiry: time.Now().Add(time.Hour)},
		}

		_, err := NewAuthService(
			&mockAuthenticator{strategy: model.StrategyCodeExchange, identity: delegated},
			newSigner(t), nil, &mockUserRepo{}, creds, sealer, metrics.New(),
		).Login(context.Background(), identity.Credential{Code: "ada"}, "shared")
		require.NoError(t, err)
		_, err = NewAuthService(
			&mockAuthenticator{strategy: model.StrategyCodeExchange, identity: bob},
			newSigner(t), nil, &mockUserRepo{}, creds, sealer, metrics.New(),
		).Login(context.Background(), identity.Credential{Code: "bob"}, "shared")
		require.NoError(t, err)

		saved := creds.saved["shared"]
		assert.Equal(t, "bob@example.com", saved.Email)
		assert.Nil(t, saved.RefreshToken)
	})

	t.Run("propagates provider errors", func(t *testing.T) {
		svc := NewAuthService(
			&mockAuthenticator{strategy: model.StrategyCodeExchange, err: apperrors.InvalidCredential("bad code")},
			newSigner(t), nil, &mockUserRepo{}, newMockCredentialRepo(), newSealer(t), metrics.New(),
		)

		_, err := svc.Login(context.Background(), identity.Credential{Code: "bad"}, "guid-3")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredential))
	})

	t.Run("database failure is a database error", func(t *testing.T) {
		users := &mockUserRepo{upsertFn: func(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
			return nil, errors.New("connection refused")
		}}
		svc := NewAuthService(
			&mockAuthenticator{strategy: model.StrategyCodeExchange, identity: delegated},
			newSigner(t), nil, users, newMockCredentialRepo(), newSealer(t), metrics.New(),
		)

		_, err := svc.Login(context.Background(), identity.Credential{Code: "abc"}, "guid-4")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
	})
}

func TestAuthService_RefreshAndLogout(t *testing.T) {
	signer := newSigner(t)
	creds := newMockCredentialRepo()
	var loggedOut string
	users := &mockUserRepo{markLogoutFn: func(ctx context.Context, email string) error {
		loggedOut = email
		return nil
	}}
	svc := NewAuthService(&mockAuthenticator{strategy: model.StrategyCodeExchange}, signer, nil, users, creds, newSealer(t), metrics.New())

	issued, err := signer.Issue(&model.Identity{Name: "Ada", Email: "ada@example.com"}, "guid-5")
	require.NoError(t, err)
	claims, err := signer.Verify(issued.Token)
	require.NoError(t, err)

	t.Run("refresh keeps identity and session", func(t *testing.T) {
		result, err := svc.Refresh(claims)
		require.NoError(t, err)
		assert.Equal(t, "guid-5", result.SessionGUID)
		assert.Equal(t, "Ada", result.User.Name)

		again, err := signer.Verify(result.Token)
		require.NoError(t, err)
		assert.Equal(t, claims.Email, again.Email)
	})

	t.Run("refresh without caller", func(t *testing.T) {
		_, err := svc.Refresh(nil)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("logout forgets credential", func(t *testing.T) {
		require.NoError(t, svc.Logout(context.Background(), claims))
		assert.Equal(t, "ada@example.com", loggedOut)
		assert.Equal(t, []string{"guid-5"}, creds.deleted)
	})

	t.Run("logout without caller", func(t *testing.T) {
		err := svc.Logout(context.Background(), nil)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})
}

func TestCalendarService(t *testing.T) {
	calendarServer := func(t *testing.T, wantToken string) *httptest.Server {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+wantToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":401,"message":"bad token"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"id":"e1","summary":"Sync","start":{"dateTime":"2024-06-03T09:00:00Z"},"end":{"dateTime":"2024-06-03T10:00:00Z"}}]}`))
		}))
		t.Cleanup(server.Close)
		return server
	}

	seed := func(t *testing.T, creds *mockCredentialRepo, sealer *util.Sealer, access string, expiry time.Time) {
		sealedAccess, err := sealer.Seal(access)
		require.NoError(t, err)
		refresh := "1//refresh"
		sealedRefresh, err := sealer.SealOptional(&refresh)
		require.NoError(t, err)
		require.NoError(t, creds.Save(context.Background(), model.SaveCredentialParams{
			SessionGUID: "guid", Email: "ada@example.com",
			AccessToken: sealedAccess, RefreshToken: sealedRefresh, ExpiresAt: &expiry,
		}))
	}

	t.Run("uses stored access token", func(t *testing.T) {
		server := calendarServer(t, "ya29.live")
		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		seed(t, creds, sealer, "ya29.live", time.Now().Add(time.Hour))

		svc := NewCalendarService(creds, sealer, nil, server.Client(), 25, metrics.New()).WithEndpoint(server.URL + "/")

		events, err := svc.Upcoming(context.Background(), "guid", "ada@example.com")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Sync", events[0].Summary)

		availability, err := svc.Availability(context.Background(), "guid", "ada@example.com", time.Time{}, time.Time{}, "UTC")
		require.NoError(t, err)
		require.Len(t, availability, 1)
		assert.Equal(t, "2024-06-03T09:00:00Z", availability[0].Start)
	})

	t.Run("refreshes expired token and persists it", func(t *testing.T) {
		server := calendarServer(t, "ya29.fresh")
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`))
		}))
		defer tokenServer.Close()

		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		seed(t, creds, sealer, "ya29.stale", time.Now().Add(-time.Hour))

		cfg := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: tokenServer.URL}}
		svc := NewCalendarService(creds, sealer, cfg, server.Client(), 25, metrics.New()).WithEndpoint(server.URL + "/")

		_, err := svc.Upcoming(context.Background(), "guid", "ada@example.com")
		require.NoError(t, err)

		stored, err := creds.FindBySessionGUID(context.Background(), "guid")
		require.NoError(t, err)
		access, err := sealer.Open(stored.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "ya29.fresh", access)
		require.NotNil(t, stored.RefreshToken)
		refresh, err := sealer.Open(*stored.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "1//refresh", refresh)
	})

	t.Run("credential of another account is refused", func(t *testing.T) {
		server := calendarServer(t, "ya29.live")
		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		seed(t, creds, sealer, "ya29.live", time.Now().Add(time.Hour))
		svc := NewCalendarService(creds, sealer, nil, server.Client(), 25, metrics.New()).WithEndpoint(server.URL + "/")

		_, err := svc.Upcoming(context.Background(), "guid", "bob@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("no stored credential", func(t *testing.T) {
		svc := NewCalendarService(newMockCredentialRepo(), newSealer(t), nil, http.DefaultClient, 25, metrics.New())
		_, err := svc.Upcoming(context.Background(), "missing", "ada@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("upstream rejection keeps status", func(t *testing.T) {
		server := calendarServer(t, "other")
		sealer := newSealer(t)
		creds := newMockCredentialRepo()
		seed(t, creds, sealer, "ya29.live", time.Now().Add(time.Hour))
		svc := NewCalendarService(creds, sealer, nil, server.Client(), 25, metrics.New()).WithEndpoint(server.URL + "/")

		_, err := svc.Upcoming(context.Background(), "guid", "ada@example.com")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, appErr.Status)
		assert.True(t, strings.HasPrefix(appErr.Message, "Google API error: "))
	})
}
