package sim

import (
	"sync"

	"github.com/kestrelbrowser/shellhost/internal/engine"
)

// Surface is a simulated window surface
type Surface struct {
	mu       sync.Mutex
	attached engine.Context
	document engine.Document
	held     map[engine.Document]bool
	closed   bool
	events   chan engine.SurfaceEvent
}

// NewSurface creates a simulated surface showing the standard document
func NewSurface() *Surface {
	return &Surface{
		document: engine.DocStandard,
		held:     make(map[engine.Document]bool),
		events:   make(chan engine.SurfaceEvent, eventBuffer),
	}
}

// HoldDocument suppresses the document-loaded event for doc, simulating
// a shell document that never signals completion
func (s *Surface) HoldDocument(doc engine.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[doc] = true
}

// Attach makes ctx the visible context
func (s *Surface) Attach(ctx engine.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = ctx
}

// Detach removes the visible context
func (s *Surface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = nil
}

// Attached returns the currently attached context, or nil
func (s *Surface) Attached() engine.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// LoadDocument switches the shell document and signals completion
// asynchronously unless the document is held
func (s *Surface) LoadDocument(doc engine.Document) {
	s.mu.Lock()
	s.document = doc
	held := s.held[doc]
	closed := s.closed
	s.mu.Unlock()

	if held || closed {
		return
	}
	s.emit(engine.SurfaceEvent{Type: engine.EventDocumentLoaded, Document: doc})
}

// Document returns the currently loaded shell document
func (s *Surface) Document() engine.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Events delivers the surface's event stream
func (s *Surface) Events() <-chan engine.SurfaceEvent {
	return s.events
}

// Closed reports whether the surface has been torn down
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the surface down and closes its event stream
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *Surface) emit(ev engine.SurfaceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
