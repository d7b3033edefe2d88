package middleware

import (
	"net/http"

	"github.com/teknolabs/vocameet-server/internal/httputil"
)

// ErrorWriter renders an error response. Room grant routes answer in plain
// text, everything else in JSON.
type ErrorWriter func(w http.ResponseWriter, err error)

var (
	JSONErrors ErrorWriter = httputil.WriteError
	TextErrors ErrorWriter = httputil.WriteTextError
)
