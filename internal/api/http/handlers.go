package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelbrowser/shellhost/internal/domain/download"
	"github.com/kestrelbrowser/shellhost/internal/domain/session"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

// StartTransfer begins a new engine transfer for a URL; wired by the
// server against whichever engine backs the process
type StartTransfer func(url, filename, mime string, totalBytes int64) *types.DownloadRecord

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	sessions      *session.Manager
	downloads     *download.Manager
	startTransfer StartTransfer
	logger        *logging.Logger
	started       time.Time
}

// NewHandlers creates the HTTP handler set
func NewHandlers(sessions *session.Manager, downloads *download.Manager, start StartTransfer, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handlers{
		sessions:      sessions,
		downloads:     downloads,
		startTransfer: start,
		logger:        logger,
		started:       time.Now(),
	}
}

// Root returns service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "shellhost",
		"status":  "running",
	})
}

// Health returns liveness plus table sizes
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(h.started).Seconds(),
		"windows":   len(h.sessions.ListWindows()),
		"downloads": len(h.downloads.List()),
	})
}

// CreateWindow registers a new window and returns its id
func (h *Handlers) CreateWindow(c *gin.Context) {
	info := h.sessions.CreateWindow()
	c.JSON(http.StatusCreated, info)
}

// ListWindows returns every registered window
func (h *Handlers) ListWindows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"windows": h.sessions.ListWindows()})
}

// GetWindow returns one window's session state
func (h *Handlers) GetWindow(c *gin.Context) {
	info, ok := h.sessions.Window(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// CloseWindow tears down a window and all of its views
func (h *Handlers) CloseWindow(c *gin.Context) {
	if !h.sessions.CloseWindow(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// SetBounds updates a window's content bounds
func (h *Handlers) SetBounds(c *gin.Context) {
	var req types.Rect
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.sessions.SetBounds(c.Param("id"), req) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// SwitchMode toggles a window between standard and immersive display
func (h *Handlers) SwitchMode(c *gin.Context) {
	var req struct {
		Mode types.DisplayMode `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown display mode"})
		return
	}
	if !h.sessions.SwitchMode(c.Param("id"), req.Mode) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// CreateView creates a detached view for a tab
func (h *Handlers) CreateView(c *gin.Context) {
	var req struct {
		TabID string `json:"tab_id" binding:"required"`
		URL   string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, ok := h.sessions.CreateView(c.Param("id"), req.TabID, req.URL)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusCreated, info)
}

// ActivateView makes a tab's view the window's visible one
func (h *Handlers) ActivateView(c *gin.Context) {
	if !h.sessions.SetActiveView(c.Param("id"), c.Param("tab")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window or tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": c.Param("tab")})
}

// DestroyView releases a tab's view
func (h *Handlers) DestroyView(c *gin.Context) {
	if !h.sessions.DestroyView(c.Param("id"), c.Param("tab")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"destroyed": true})
}

// Navigate loads a URL in a tab's view
func (h *Handlers) Navigate(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.sessions.LoadURL(c.Param("id"), c.Param("tab"), req.URL) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window or tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"navigating": req.URL})
}

// Reload reloads a tab's view
func (h *Handlers) Reload(c *gin.Context) {
	var req struct {
		IgnoreCache bool `json:"ignore_cache"`
	}
	// Body is optional; an empty reload uses the cache
	c.ShouldBindJSON(&req)
	if !h.sessions.Reload(c.Param("id"), c.Param("tab"), req.IgnoreCache) {
		c.JSON(http.StatusNotFound, gin.H{"error": "window or tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloading": true})
}

// GetURL returns a view's current URL
func (h *Handlers) GetURL(c *gin.Context) {
	url, ok := h.sessions.GetURL(c.Param("id"), c.Param("tab"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window or tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// ExecuteScript runs a script in a view and returns its result
func (h *Handlers) ExecuteScript(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, ok := h.sessions.ExecuteScript(c.Param("id"), c.Param("tab"), req.Code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window or tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListDownloads returns every tracked download
func (h *Handlers) ListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"downloads": h.downloads.List()})
}

// GetDownload returns one download record
func (h *Handlers) GetDownload(c *gin.Context) {
	rec, ok := h.downloads.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartDownload begins a transfer through the engine boundary
func (h *Handlers) StartDownload(c *gin.Context) {
	if h.startTransfer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "engine does not start transfers here"})
		return
	}
	var req struct {
		URL        string `json:"url" binding:"required"`
		Filename   string `json:"filename" binding:"required"`
		Mime       string `json:"mime"`
		TotalBytes int64  `json:"total_bytes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := h.startTransfer(req.URL, req.Filename, req.Mime, req.TotalBytes)
	c.JSON(http.StatusCreated, rec)
}

// DownloadAction applies a control command to a download. A stale or
// invalid command conflicts rather than erring: the authoritative state
// comes back over the event feed.
func (h *Handlers) DownloadAction(c *gin.Context) {
	var req struct {
		Action types.DownloadAction `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if _, ok := h.downloads.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if !h.downloads.Action(id, req.Action) {
		c.JSON(http.StatusConflict, gin.H{"error": "action not applicable in current state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": string(req.Action)})
}

// ClearCompleted removes all terminal downloads from the registry
func (h *Handlers) ClearCompleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": h.downloads.ClearCompleted()})
}
