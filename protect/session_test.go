package protect

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Csrf-Token", "tok")
	h.Add("Set-Cookie", "TOKEN=abc; Path=/; HttpOnly; Secure")
	h.Add("Set-Cookie", "UOS=1; Path=/")

	s, err := ParseSessionFromHeaders(h)
	require.NoError(t, err)
	assert.Equal(t, Session{CSRFToken: "tok", Cookie: "TOKEN=abc; UOS=1"}, s)
	assert.True(t, s.Valid())
}

func TestParseSessionFromHeaders_Missing(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{"no headers", http.Header{}},
		{"no token", http.Header{"Set-Cookie": {"TOKEN=abc"}}},
		{"no cookie", http.Header{"X-Csrf-Token": {"tok"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSessionFromHeaders(tt.header)
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
			assert.Equal(t, Session{}, s)
		})
	}
}

func TestSessionValid(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.False(t, Session{CSRFToken: "tok"}.Valid())
	assert.False(t, Session{Cookie: "c"}.Valid())
	assert.True(t, Session{CSRFToken: "tok", Cookie: "c"}.Valid())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("https://nvr.local", "admin", "pw").Validate())
	assert.Error(t, DefaultConfig("", "admin", "pw").Validate())
	assert.Error(t, DefaultConfig("ftp://nvr.local", "admin", "pw").Validate())
	assert.Error(t, DefaultConfig("https://", "admin", "pw").Validate())
	assert.Error(t, DefaultConfig("https://nvr.local", "", "pw").Validate())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&AuthError{Status: 401}))
	assert.True(t, IsRetryable(&ServerError{Op: "x", Status: 500}))
	assert.True(t, IsRetryable(&TransportError{Op: "x", Err: errors.New("refused")}))
	assert.False(t, IsRetryable(&ParseError{Op: "x", Err: errors.New("bad json")}))
	assert.False(t, IsRetryable(errors.New("other")))
}
