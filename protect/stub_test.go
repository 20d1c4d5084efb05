package protect

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	stubToken  = "csrf-123"
	stubCookie = "TOKEN=abc"
)

// stubNVR is an in-memory NVR. Status queues are consumed one entry per
// request; once empty the stub answers 200.
type stubNVR struct {
	server *httptest.Server

	mutex         sync.Mutex
	logins        int
	loginStatuses []int
	omitToken     bool
	chimeStatuses []int
	chimeRequests int
	listBody      string
	chimes        map[string]map[string]interface{}
	lastHeaders   http.Header
	delay         time.Duration
	chimeDelay    time.Duration
}

func newStubNVR(t *testing.T) *stubNVR {
	t.Helper()
	return startStubNVR(t, false)
}

func newTLSStubNVR(t *testing.T) *stubNVR {
	t.Helper()
	return startStubNVR(t, true)
}

func startStubNVR(t *testing.T, useTLS bool) *stubNVR {
	t.Helper()

	s := &stubNVR{
		listBody: `[{"id":"c1","name":"Front","volume":40}]`,
		chimes: map[string]map[string]interface{}{
			"c1": {"id": "c1", "name": "Front", "volume": 40},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, s.handleLogin)
	mux.HandleFunc(chimesPath, s.handleChimes)
	mux.HandleFunc(chimesPath+"/", s.handleChimes)

	if useTLS {
		s.server = httptest.NewTLSServer(mux)
	} else {
		s.server = httptest.NewServer(mux)
	}
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubNVR) config() Config {
	cfg := DefaultConfig(s.server.URL, "admin", "secret")
	cfg.BackoffDelay = time.Millisecond
	return cfg
}

// update runs fn with the stub locked.
func (s *stubNVR) update(fn func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	fn()
}

func (s *stubNVR) headers() http.Header {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastHeaders
}

func (s *stubNVR) loginCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.logins
}

func (s *stubNVR) chimeRequestCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.chimeRequests
}

func pop(queue *[]int) int {
	if len(*queue) == 0 {
		return http.StatusOK
	}
	status := (*queue)[0]
	*queue = (*queue)[1:]
	return status
}

func (s *stubNVR) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	s.logins++
	status := pop(&s.loginStatuses)
	omitToken := s.omitToken
	delay := s.delay
	s.mutex.Unlock()

	time.Sleep(delay)

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&creds) != nil ||
		creds.Username != "admin" || creds.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	if !omitToken {
		w.Header().Set("X-CSRF-Token", stubToken)
	}
	w.Header().Add("Set-Cookie", stubCookie+"; Path=/; HttpOnly")
	w.WriteHeader(http.StatusOK)
}

func (s *stubNVR) handleChimes(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	delay := s.chimeDelay
	s.mutex.Unlock()

	time.Sleep(delay)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.chimeRequests++
	s.lastHeaders = r.Header.Clone()

	if r.Header.Get("Cookie") != stubCookie || r.Header.Get("X-CSRF-Token") != stubToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status := pop(&s.chimeStatuses); status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, chimesPath), "/")
	if id == "" {
		io.WriteString(w, s.listBody)
		return
	}

	chime, ok := s.chimes[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPatch:
		var patch map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range patch {
			chime[k] = v
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(chime)
}
