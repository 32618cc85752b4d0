package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/monitoring"
	"github.com/kestrelbrowser/shellhost/internal/shared/id"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

// eventBuffer bounds the manager-wide feed; pumps block rather than
// drop once the consumer falls this far behind
const eventBuffer = 256

// Manager owns the per-window view sessions
type Manager struct {
	mu      sync.RWMutex
	eng     engine.Engine
	windows map[string]*window
	events  chan types.ViewEvent
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// window is one window's session state. Protected by Manager.mu.
type window struct {
	id      string
	surface engine.Surface
	mode    types.DisplayMode
	views   map[string]*view
	active  *string
	bounds  *types.Rect
	// reattach holds the tab waiting for the standard document to finish
	// loading after an immersive switch-back
	reattach *string
}

// view is one tab's context handle. Protected by Manager.mu.
type view struct {
	tabID    string
	ctx      engine.Context
	attached bool
}

// NewManager creates a new view session manager
func NewManager(eng engine.Engine, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		eng:     eng,
		windows: make(map[string]*window),
		events:  make(chan types.ViewEvent, eventBuffer),
		logger:  logger,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Events returns the single ordered view event feed
func (m *Manager) Events() <-chan types.ViewEvent {
	return m.events
}

// RegisterWindow adds a window and its surface to the manager and
// returns the new window ID
func (m *Manager) RegisterWindow(surface engine.Surface) string {
	w := &window{
		id:      id.NewWindowID().String(),
		surface: surface,
		mode:    types.ModeStandard,
		views:   make(map[string]*view),
	}

	m.mu.Lock()
	m.windows[w.id] = w
	m.mu.Unlock()

	go m.pumpSurface(w.id, surface)

	m.updateViewGauge()
	m.logger.Info("window registered", zap.String("window_id", w.id))
	return w.id
}

// CreateWindow allocates a surface from the engine and registers a
// window for it
func (m *Manager) CreateWindow() *types.WindowInfo {
	windowID := m.RegisterWindow(m.eng.NewSurface())
	info, _ := m.Window(windowID)
	return info
}

// CloseWindow tears down a window and releases all of its views
func (m *Manager) CloseWindow(windowID string) bool {
	m.mu.Lock()
	w, ok := m.windows[windowID]
	if !ok {
		m.mu.Unlock()
		return false
	}

	// Detach before releasing so no path can reference a freed context
	// through a stale active pointer
	w.surface.Detach()
	w.active = nil
	w.reattach = nil
	for _, v := range w.views {
		v.ctx.Close()
	}
	w.surface.Close()
	delete(m.windows, windowID)
	m.mu.Unlock()

	m.updateViewGauge()
	m.logger.Info("window closed", zap.String("window_id", windowID))
	return true
}

// CreateView creates a browsing context for tabID in the window's
// session. Idempotent: if the tab already exists, the existing view is
// returned and no duplicate context is created. The view has no visible
// effect until activated.
func (m *Manager) CreateView(windowID, tabID, url string) (*types.ViewInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}

	if existing, ok := w.views[tabID]; ok {
		m.logger.Debug("duplicate create-view",
			zap.String("window_id", windowID),
			zap.String("tab_id", tabID),
		)
		return w.viewInfo(existing), true
	}

	ctx, err := m.eng.NewContext(url)
	if err != nil {
		m.logger.Warn("context creation failed",
			zap.String("window_id", windowID),
			zap.String("tab_id", tabID),
			zap.Error(err),
		)
		return nil, false
	}

	v := &view{tabID: tabID, ctx: ctx}
	w.views[tabID] = v

	go m.pumpContext(windowID, tabID, ctx)

	if m.metrics != nil {
		m.metrics.IncViewsCreated()
	}
	m.updateViewGaugeLocked()

	return w.viewInfo(v), true
}

// SetActiveView attaches tabID's context to the window's visible
// surface. The previously active context is detached with its content
// state retained. Fails soft if the window or tab is unknown, leaving
// the prior active view untouched.
//
// While the window is immersive only the active pointer moves: the
// immersive document always owns the surface, so the selected view is
// attached when the window next returns to standard mode.
func (m *Manager) SetActiveView(windowID, tabID string) bool {
	m.mu.Lock()
	w, ok := m.windows[windowID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	target, ok := w.views[tabID]
	if !ok {
		// Soft race: the caller's view of existence may lag by one message
		m.mu.Unlock()
		m.logger.Debug("set-active-view on unknown tab",
			zap.String("window_id", windowID),
			zap.String("tab_id", tabID),
		)
		return false
	}

	if w.mode == types.ModeImmersive {
		m.selectLocked(w, target)
	} else {
		m.activateLocked(w, target)
	}
	m.mu.Unlock()

	m.emit(types.ViewEvent{WindowID: windowID, TabID: tabID, Type: types.ViewEventFocus})
	return true
}

// selectLocked records target as the window's active view without
// touching the surface. Used while immersive mode holds the surface.
// Caller must hold m.mu.
func (m *Manager) selectLocked(w *window, target *view) {
	if w.active != nil && *w.active != target.tabID {
		if prev, ok := w.views[*w.active]; ok {
			prev.attached = false
		}
	}
	tab := target.tabID
	w.active = &tab
}

// activateLocked attaches target as the window's visible view.
// Caller must hold m.mu.
func (m *Manager) activateLocked(w *window, target *view) {
	if w.active != nil && *w.active != target.tabID {
		if prev, ok := w.views[*w.active]; ok {
			prev.attached = false
		}
	}
	w.reattach = nil

	w.surface.Attach(target.ctx)
	target.attached = true
	if w.bounds != nil {
		target.ctx.SetBounds(*w.bounds)
	}
	target.ctx.Focus()
	tab := target.tabID
	w.active = &tab
}

// DestroyView removes tabID from the session and releases its context.
// If it was active the surface is detached and the active pointer
// cleared first. Idempotent if the tab is absent.
func (m *Manager) DestroyView(windowID, tabID string) bool {
	m.mu.Lock()
	w, ok := m.windows[windowID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	v, ok := w.views[tabID]
	if !ok {
		m.mu.Unlock()
		return true
	}

	if w.active != nil && *w.active == tabID {
		w.surface.Detach()
		w.active = nil
	}
	if w.reattach != nil && *w.reattach == tabID {
		w.reattach = nil
	}
	delete(w.views, tabID)
	v.ctx.Close()
	m.mu.Unlock()

	m.updateViewGauge()
	return true
}

// SetBounds stores the layout rectangle on the session and applies it
// to the active view immediately. Inactive views are resized on their
// next activation, avoiding redundant layout work for background tabs.
func (m *Manager) SetBounds(windowID string, bounds types.Rect) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return false
	}

	b := bounds
	w.bounds = &b
	if w.active != nil {
		if v, ok := w.views[*w.active]; ok && v.attached {
			v.ctx.SetBounds(bounds)
		}
	}
	return true
}

// SwitchMode switches the window between standard and immersive mode.
// Entering immersive detaches the active context without destroying it.
// Returning to standard reattaches it only after the standard document
// signals load-complete; if that signal never arrives the view stays
// detached until the next explicit SetActiveView.
func (m *Manager) SwitchMode(windowID string, mode types.DisplayMode) bool {
	if !mode.Valid() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return false
	}
	if w.mode == mode {
		return true
	}
	w.mode = mode

	switch mode {
	case types.ModeImmersive:
		if w.active != nil {
			if v, ok := w.views[*w.active]; ok {
				v.attached = false
			}
		}
		w.surface.Detach()
		w.reattach = nil
		w.surface.LoadDocument(engine.DocImmersive)

	case types.ModeStandard:
		if w.active != nil {
			tab := *w.active
			w.reattach = &tab
		}
		w.surface.LoadDocument(engine.DocStandard)
	}

	if m.metrics != nil {
		m.metrics.IncModeSwitch(string(mode))
	}
	m.logger.Info("display mode switched",
		zap.String("window_id", windowID),
		zap.String("mode", string(mode)),
	)
	return true
}

// LoadURL navigates tabID's context to url
func (m *Manager) LoadURL(windowID, tabID, url string) bool {
	v, ok := m.lookupView(windowID, tabID)
	if !ok {
		return false
	}
	v.ctx.LoadURL(url)
	return true
}

// Reload reloads tabID's context
func (m *Manager) Reload(windowID, tabID string, ignoreCache bool) bool {
	v, ok := m.lookupView(windowID, tabID)
	if !ok {
		return false
	}
	v.ctx.Reload(ignoreCache)
	return true
}

// GetURL returns tabID's current URL
func (m *Manager) GetURL(windowID, tabID string) (string, bool) {
	v, ok := m.lookupView(windowID, tabID)
	if !ok {
		return "", false
	}
	return v.ctx.URL(), true
}

// ExecuteScript runs code in tabID's context and returns its result
func (m *Manager) ExecuteScript(windowID, tabID, code string) (string, bool) {
	v, ok := m.lookupView(windowID, tabID)
	if !ok {
		return "", false
	}
	result, err := v.ctx.ExecuteScript(code)
	if err != nil {
		m.logger.Warn("script execution failed",
			zap.String("window_id", windowID),
			zap.String("tab_id", tabID),
			zap.Error(err),
		)
		return "", false
	}
	return result, true
}

// Window returns a snapshot of one window's session state
func (m *Manager) Window(windowID string) (*types.WindowInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}
	return w.info(), true
}

// ListWindows returns snapshots of every window's session state
func (m *Manager) ListWindows() []*types.WindowInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]*types.WindowInfo, 0, len(m.windows))
	for _, w := range m.windows {
		infos = append(infos, w.info())
	}
	return infos
}

// Close tears down every window. Called on process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.windows))
	for wid := range m.windows {
		ids = append(ids, wid)
	}
	m.mu.Unlock()

	for _, wid := range ids {
		m.CloseWindow(wid)
	}
}

// lookupView resolves a view under the read lock
func (m *Manager) lookupView(windowID, tabID string) (*view, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[windowID]
	if !ok {
		return nil, false
	}
	v, ok := w.views[tabID]
	return v, ok
}

// pumpContext forwards one context's events into the manager feed,
// tagged with the owning window and tab. Exits when the context closes.
func (m *Manager) pumpContext(windowID, tabID string, ctx engine.Context) {
	for ev := range ctx.Events() {
		m.emit(types.ViewEvent{
			WindowID:  windowID,
			TabID:     tabID,
			Type:      viewEventType(ev.Type),
			URL:       ev.URL,
			Title:     ev.Title,
			Favicon:   ev.Favicon,
			ErrorCode: ev.ErrorCode,
			ErrorText: ev.ErrorText,
		})
	}
}

// pumpSurface watches one window's surface events and completes any
// pending reattach once the standard document finished loading. Exits
// when the surface closes on window teardown.
func (m *Manager) pumpSurface(windowID string, surface engine.Surface) {
	for ev := range surface.Events() {
		if ev.Type == engine.EventDocumentLoaded && ev.Document == engine.DocStandard {
			m.completeStandardSwitch(windowID)
		}
	}
}

// completeStandardSwitch reattaches the view that was active before an
// immersive switch, now that the standard document is ready. The view
// may have been destroyed or replaced in the meantime; read current
// state and decide.
func (m *Manager) completeStandardSwitch(windowID string) {
	m.mu.Lock()
	w, ok := m.windows[windowID]
	if !ok || w.mode != types.ModeStandard || w.reattach == nil {
		m.mu.Unlock()
		return
	}
	tabID := *w.reattach
	w.reattach = nil
	v, ok := w.views[tabID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.activateLocked(w, v)
	m.mu.Unlock()

	m.emit(types.ViewEvent{WindowID: windowID, TabID: tabID, Type: types.ViewEventFocus})
}

func (m *Manager) emit(ev types.ViewEvent) {
	m.events <- ev
}

func (m *Manager) updateViewGauge() {
	if m.metrics == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.updateViewGaugeLocked()
}

func (m *Manager) updateViewGaugeLocked() {
	if m.metrics == nil {
		return
	}
	total := 0
	for _, w := range m.windows {
		total += len(w.views)
	}
	m.metrics.SetWindowsActive(len(m.windows))
	m.metrics.SetViewsActive(total)
}

// viewInfo builds the external snapshot of one view.
// Caller must hold m.mu.
func (w *window) viewInfo(v *view) *types.ViewInfo {
	return &types.ViewInfo{
		WindowID: w.id,
		TabID:    v.tabID,
		URL:      v.ctx.URL(),
		Title:    v.ctx.Title(),
		Attached: v.attached,
		Active:   w.active != nil && *w.active == v.tabID,
	}
}

// info builds the external snapshot of the whole window.
// Caller must hold m.mu.
func (w *window) info() *types.WindowInfo {
	views := make([]types.ViewInfo, 0, len(w.views))
	for _, v := range w.views {
		views = append(views, *w.viewInfo(v))
	}

	wi := &types.WindowInfo{
		ID:    w.id,
		Mode:  w.mode,
		Views: views,
	}
	if w.active != nil {
		tab := *w.active
		wi.ActiveTabID = &tab
	}
	if w.bounds != nil {
		b := *w.bounds
		wi.Bounds = &b
	}
	return wi
}

func viewEventType(t engine.ContextEventType) types.ViewEventType {
	switch t {
	case engine.EventNavigate:
		return types.ViewEventNavigate
	case engine.EventTitle:
		return types.ViewEventTitle
	case engine.EventFavicon:
		return types.ViewEventFavicon
	case engine.EventLoadStart:
		return types.ViewEventLoadStart
	case engine.EventLoadFinish:
		return types.ViewEventLoadFinish
	case engine.EventLoadFail:
		return types.ViewEventLoadFail
	default:
		return types.ViewEventType(t)
	}
}
