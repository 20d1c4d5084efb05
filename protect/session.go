package protect

import (
	"net/http"
	"strings"
)

const (
	csrfHeader   = "X-CSRF-Token"
	cookieHeader = "Cookie"
)

// Session is the token and cookie pair issued by a successful login.
// Both fields are set or both are empty.
type Session struct {
	CSRFToken string
	Cookie    string
}

// Valid reports whether the session can be used for a request.
func (s Session) Valid() bool {
	return s.CSRFToken != "" && s.Cookie != ""
}

// ParseSessionFromHeaders extracts the session from the headers of a login response.
// Several Set-Cookie headers are folded into a single Cookie header value.
func ParseSessionFromHeaders(h http.Header) (Session, error) {
	token := h.Get(csrfHeader)
	if token == "" {
		return Session{}, &AuthError{Status: http.StatusOK, Reason: "missing x-csrf-token header"}
	}

	cookies := (&http.Response{Header: h}).Cookies()
	if len(cookies) == 0 {
		return Session{}, &AuthError{Status: http.StatusOK, Reason: "missing set-cookie header"}
	}

	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}

	return Session{CSRFToken: token, Cookie: strings.Join(pairs, "; ")}, nil
}
