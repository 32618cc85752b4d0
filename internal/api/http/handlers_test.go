package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelbrowser/shellhost/internal/domain/download"
	"github.com/kestrelbrowser/shellhost/internal/domain/session"
	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/engine/sim"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager, *download.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := sim.New()
	sessions := session.NewManager(eng, logging.NewNop())
	downloads := download.NewManager(afero.NewMemMapFs(), "/downloads", logging.NewNop())

	go func() {
		for range sessions.Events() {
		}
	}()
	go func() {
		for range downloads.Events() {
		}
	}()
	t.Cleanup(sessions.Close)

	start := func(url, filename, mime string, totalBytes int64) *types.DownloadRecord {
		return downloads.Register(sim.NewTransfer(url, filename, mime, totalBytes))
	}
	h := NewHandlers(sessions, downloads, start, logging.NewNop())

	r := gin.New()
	r.GET("/health", h.Health)
	r.POST("/windows", h.CreateWindow)
	r.GET("/windows/:id", h.GetWindow)
	r.DELETE("/windows/:id", h.CloseWindow)
	r.POST("/windows/:id/mode", h.SwitchMode)
	r.POST("/windows/:id/views", h.CreateView)
	r.POST("/windows/:id/views/:tab/activate", h.ActivateView)
	r.DELETE("/windows/:id/views/:tab", h.DestroyView)
	r.GET("/downloads", h.ListDownloads)
	r.POST("/downloads", h.StartDownload)
	r.POST("/downloads/:id/action", h.DownloadAction)
	r.DELETE("/downloads/completed", h.ClearCompleted)
	return r, sessions, downloads
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWindowLifecycleOverHTTP(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/windows", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var win types.WindowInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &win))
	require.NotEmpty(t, win.ID)
	assert.Equal(t, types.ModeStandard, win.Mode)

	w = doJSON(t, r, http.MethodPost, "/windows/"+win.ID+"/views", map[string]string{
		"tab_id": "tab-1",
		"url":    "https://example.org",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/windows/"+win.ID+"/views/tab-1/activate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/windows/"+win.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &win))
	require.NotNil(t, win.ActiveTabID)
	assert.Equal(t, "tab-1", *win.ActiveTabID)

	w = doJSON(t, r, http.MethodDelete, "/windows/"+win.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/windows/"+win.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaleIDsAreNotFoundNeverErrors(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/windows/win_missing/views", map[string]string{
		"tab_id": "tab-1",
		"url":    "https://example.org",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/windows/win_missing/views/tab-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/downloads/dl_missing/action", map[string]string{
		"action": "pause",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwitchModeRejectsUnknownMode(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/windows", nil)
	var win types.WindowInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &win))

	w = doJSON(t, r, http.MethodPost, "/windows/"+win.ID+"/mode", map[string]string{
		"mode": "cinematic",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/windows/"+win.ID+"/mode", map[string]string{
		"mode": "immersive",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadActionConflictOnInvalidTransition(t *testing.T) {
	r, _, downloads := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/downloads", map[string]interface{}{
		"url":         "https://example.org/report.pdf",
		"filename":    "report.pdf",
		"total_bytes": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rec types.DownloadRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))

	// Pausing an in-progress download applies
	w = doJSON(t, r, http.MethodPost, "/downloads/"+rec.ID+"/action", map[string]string{
		"action": "pause",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Pausing again conflicts; the record still exists
	w = doJSON(t, r, http.MethodPost, "/downloads/"+rec.ID+"/action", map[string]string{
		"action": "pause",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	_, ok := downloads.Get(rec.ID)
	assert.True(t, ok)
}

func TestClearCompletedOverHTTP(t *testing.T) {
	r, _, downloads := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/downloads", map[string]interface{}{
		"url":         "https://example.org/a.bin",
		"filename":    "a.bin",
		"total_bytes": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var rec types.DownloadRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))

	w = doJSON(t, r, http.MethodDelete, "/downloads/completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cleared":0}`, w.Body.String())

	require.True(t, downloads.Action(rec.ID, types.ActionCancel))
	// Simulated engine confirms cancellation immediately in tests
	downloads.OnTerminal(rec.ID, engine.TransferCancelled)

	w = doJSON(t, r, http.MethodDelete, "/downloads/completed", nil)
	assert.JSONEq(t, `{"cleared":1}`, w.Body.String())
}
