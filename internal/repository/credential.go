package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/teknolabs/vocameet-server/internal/database"
	"github.com/teknolabs/vocameet-server/internal/model"
)

// CredentialRepository stores delegated provider tokens per browser session.
// Token columns hold ciphertext; callers encrypt before saving.
type CredentialRepository interface {
	FindBySessionGUID(ctx context.Context, sessionGUID string) (*model.StoredCredential, error)
	Save(ctx context.Context, params model.SaveCredentialParams) error
	DeleteBySessionGUID(ctx context.Context, sessionGUID string) error
	DeleteExpired(ctx context.Context, staleBefore time.Time) (int64, error)
	WithTx(tx *sqlx.Tx) CredentialRepository
}

type credentialRepo struct {
	db database.DBTX
}

func NewCredentialRepository(db *sqlx.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) WithTx(tx *sqlx.Tx) CredentialRepository {
	return &credentialRepo{db: tx}
}

func (r *credentialRepo) FindBySessionGUID(ctx context.Context, sessionGUID string) (*model.StoredCredential, error) {
	var cred model.StoredCredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT * FROM oauth_credentials WHERE session_guid = $1
	`, sessionGUID)
	return HandleNotFound(&cred, err)
}

// Save keeps an existing refresh token when the provider did not send a new
// one, as long as the row still belongs to the same email.
func (r *credentialRepo) Save(ctx context.Context, params model.SaveCredentialParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_credentials (session_guid, email, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_guid) DO UPDATE SET
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE
				WHEN oauth_credentials.email = EXCLUDED.email
					THEN COALESCE(EXCLUDED.refresh_token, oauth_credentials.refresh_token)
				ELSE EXCLUDED.refresh_token
			END,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, params.SessionGUID, params.Email, params.AccessToken, params.RefreshToken, params.ExpiresAt)
	return err
}

func (r *credentialRepo) DeleteBySessionGUID(ctx context.Context, sessionGUID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM oauth_credentials WHERE session_guid = $1
	`, sessionGUID)
	return err
}

// DeleteExpired removes credentials that can no longer be used: access
// token expired with no refresh token, or untouched since staleBefore.
func (r *credentialRepo) DeleteExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM oauth_credentials
		WHERE (refresh_token IS NULL AND expires_at IS NOT NULL AND expires_at < NOW())
		   OR updated_at < $1
	`, staleBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
