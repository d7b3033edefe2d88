package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/teknolabs/vocameet-server/internal/database"
	"github.com/teknolabs/vocameet-server/internal/model"
)

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertLogin(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
	MarkLogout(ctx context.Context, email string) error
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE email = $1
	`, email)
	return HandleNotFound(&user, err)
}

// UpsertLogin creates the user on first login and refreshes the profile
// fields the provider returned on later ones.
func (r *userRepo) UpsertLogin(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (email, name, picture, last_login_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			picture = COALESCE(EXCLUDED.picture, users.picture),
			last_login_at = NOW()
		RETURNING *
	`, params.Email, params.Name, params.Picture)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) MarkLogout(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_logout_at = NOW() WHERE email = $1
	`, email)
	return err
}
