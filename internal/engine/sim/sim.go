// Package sim provides an in-process simulated rendering engine.
//
// The simulator implements the full engine boundary without any native
// embedder: contexts emit a realistic load-start/navigate/title/
// load-finish sequence, surfaces acknowledge document loads, and
// transfers step their byte counts on demand. It backs the dev-mode
// server wiring and the domain manager tests.
package sim

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

const eventBuffer = 64

// Engine is a simulated rendering engine
type Engine struct {
	mu      sync.Mutex
	failing map[string]int // url -> error code emitted instead of load-finish
}

// New creates a simulated engine
func New() *Engine {
	return &Engine{
		failing: make(map[string]int),
	}
}

// FailURL makes future loads of url emit load-fail with the given code
func (e *Engine) FailURL(url string, code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing[url] = code
}

// NewContext creates a detached simulated context and starts loading url
func (e *Engine) NewContext(rawURL string) (engine.Context, error) {
	ctx := &Context{
		id:     uuid.New().String(),
		eng:    e,
		events: make(chan engine.ContextEvent, eventBuffer),
	}
	ctx.LoadURL(rawURL)
	return ctx, nil
}

// NewSurface allocates a simulated window surface
func (e *Engine) NewSurface() engine.Surface {
	return NewSurface()
}

// StartTransfer begins a simulated transfer. It does not progress until
// driven, so the caller can record it first.
func (e *Engine) StartTransfer(url, filename, mime string, totalBytes int64) engine.Transfer {
	return NewTransfer(url, filename, mime, totalBytes)
}

func (e *Engine) failCode(url string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.failing[url]
	return code, ok
}

// Context is a simulated browsing context
type Context struct {
	id  string
	eng *Engine

	mu      sync.Mutex
	url     string
	title   string
	bounds  types.Rect
	focused bool
	scripts []string
	closed  bool
	events  chan engine.ContextEvent
}

// ID returns the simulated context handle ID
func (c *Context) ID() string { return c.id }

// LoadURL simulates a navigation and its event sequence
func (c *Context) LoadURL(rawURL string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.url = rawURL
	c.title = titleFor(rawURL)
	title := c.title
	c.mu.Unlock()

	c.emit(engine.ContextEvent{Type: engine.EventLoadStart, URL: rawURL})
	if code, ok := c.eng.failCode(rawURL); ok {
		c.emit(engine.ContextEvent{
			Type:      engine.EventLoadFail,
			URL:       rawURL,
			ErrorCode: code,
			ErrorText: fmt.Sprintf("simulated load failure (%d)", code),
		})
		return
	}
	c.emit(engine.ContextEvent{Type: engine.EventNavigate, URL: rawURL})
	c.emit(engine.ContextEvent{Type: engine.EventTitle, URL: rawURL, Title: title})
	c.emit(engine.ContextEvent{Type: engine.EventFavicon, URL: rawURL, Favicon: rawURL + "/favicon.ico"})
	c.emit(engine.ContextEvent{Type: engine.EventLoadFinish, URL: rawURL})
}

// Reload replays the load sequence for the current URL
func (c *Context) Reload(ignoreCache bool) {
	c.mu.Lock()
	current := c.url
	c.mu.Unlock()
	if current != "" {
		c.LoadURL(current)
	}
}

// URL returns the current URL
func (c *Context) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Title returns the current page title
func (c *Context) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// ExecuteScript records the script and returns an empty result
func (c *Context) ExecuteScript(code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("context closed")
	}
	c.scripts = append(c.scripts, code)
	return "", nil
}

// SetBounds records the layout rectangle
func (c *Context) SetBounds(bounds types.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bounds = bounds
}

// Bounds returns the last applied rectangle
func (c *Context) Bounds() types.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds
}

// Focus marks the context as input-focused
func (c *Context) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = true
}

// Focused reports whether Focus was called since creation
func (c *Context) Focused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Scripts returns the scripts executed so far
func (c *Context) Scripts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.scripts...)
}

// Events delivers the context's event stream
func (c *Context) Events() <-chan engine.ContextEvent {
	return c.events
}

// Close releases the context and closes its event stream
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Closed reports whether the context was released
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) emit(ev engine.ContextEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// Drop when nobody drains; the simulator never blocks callers
	}
}

func titleFor(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
