package sessionid

import (
	"context"
	"net/http"
	"net/url"

	"github.com/teknolabs/vocameet-server/internal/config"
)

// CookieStorage persists values as browser cookies for the lifetime of one
// request/response pair. Values written during the request are visible to
// later reads in the same request.
type CookieStorage struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	pending map[string]*string
}

func NewCookieStorage(w http.ResponseWriter, r *http.Request, secure bool) *CookieStorage {
	return &CookieStorage{w: w, r: r, secure: secure, pending: make(map[string]*string)}
}

func (c *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	cookie, err := c.r.Cookie(key)
	if err != nil {
		return "", false, nil
	}
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return cookie.Value, true, nil
	}
	return value, true, nil
}

func (c *CookieStorage) Set(_ context.Context, key, value string) error {
	c.pending[key] = &value
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		MaxAge:   int(config.SessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *CookieStorage) Delete(_ context.Context, key string) error {
	c.pending[key] = nil
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
