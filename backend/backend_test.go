package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()

	b := InitBackend(filepath.Join(t.TempDir(), "history.sqlite"), "127.0.0.1:0")
	require.NoError(t, b.Open())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInsertAndHistory(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.InsertVolumeChange("c1", "Front", 40))
	require.NoError(t, b.InsertVolumeChange("c2", "Back", 0))

	changes, err := b.History(10)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "c2", changes[0].ChimeID)
	assert.Equal(t, 0, changes[0].Volume)
	assert.Equal(t, "Front", changes[1].ChimeName)
	assert.Equal(t, 40, changes[1].Volume)
	assert.NotEmpty(t, changes[1].DateTime)
}

func TestHistoryIsTrimmed(t *testing.T) {
	b := openTestBackend(t)

	for i := 0; i < maxHistory+5; i++ {
		require.NoError(t, b.InsertVolumeChange("c1", "Front", i%101))
	}

	changes, err := b.History(0)
	require.NoError(t, err)
	assert.Len(t, changes, maxHistory)
}

func TestReopenKeepsHistory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "history.sqlite")

	b := InitBackend(file, "")
	require.NoError(t, b.Open())
	require.NoError(t, b.InsertVolumeChange("c1", "Front", 30))
	require.NoError(t, b.Close())

	b = InitBackend(file, "")
	require.NoError(t, b.Open())
	defer b.Close()

	changes, err := b.History(1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 30, changes[0].Volume)
}

func TestClosedBackend(t *testing.T) {
	b := InitBackend(filepath.Join(t.TempDir(), "history.sqlite"), "")

	assert.Error(t, b.InsertVolumeChange("c1", "Front", 1))
	_, err := b.History(1)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.InsertVolumeChange("c1", "<Front>", 55))
	h := b.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var changes []VolumeChange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, 55, changes[0].Volume)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "&lt;Front&gt;")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
