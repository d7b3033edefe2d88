package model

import (
	"time"
)

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name" json:"name"`
	Picture      *string    `db:"picture" json:"picture,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	LastLogoutAt *time.Time `db:"last_logout_at" json:"lastLogoutAt,omitempty"`
}

type UpsertUserParams struct {
	Email   string
	Name    string
	Picture *string
}

type StoredCredential struct {
	SessionGUID  string     `db:"session_guid"`
	Email        string     `db:"email"`
	AccessToken  string     `db:"access_token"`
	RefreshToken *string    `db:"refresh_token"`
	ExpiresAt    *time.Time `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

type SaveCredentialParams struct {
	SessionGUID  string
	Email        string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}
