package model

import "time"

// Identity is the normalized result of a completed login.
type Identity struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`

	Delegated *DelegatedAccess `json:"-"`
}

// DisplayName falls back to the email when the provider sent no name.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// DelegatedAccess is the Google credential obtained by a code exchange.
type DelegatedAccess struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
