// Package engine defines the boundary to the embedded page-rendering
// engine. The shell host never renders pages itself; it drives opaque
// browsing contexts, window surfaces, and transfers through these
// interfaces and consumes their discriminated event streams.
//
// Each entity emits one tagged event stream instead of per-event
// callback registration, so owners can match events exhaustively and
// forward them through a single ordered feed.
package engine

import "github.com/kestrelbrowser/shellhost/internal/shared/types"

// Engine creates isolated browsing contexts and window surfaces
type Engine interface {
	// NewContext creates a detached context loading the given URL
	NewContext(url string) (Context, error)
	// NewSurface allocates a rendering surface for a new window
	NewSurface() Surface
}

// Context is one isolated browsing context, exclusively owned by the
// session that created it
type Context interface {
	LoadURL(url string)
	Reload(ignoreCache bool)
	URL() string
	Title() string
	// ExecuteScript runs code in the page and returns its string result
	ExecuteScript(code string) (string, error)
	SetBounds(bounds types.Rect)
	Focus()
	// Events delivers this context's lifecycle events in order.
	// The channel is closed by Close.
	Events() <-chan ContextEvent
	// Close releases the underlying context; idempotent
	Close()
}

// ContextEventType discriminates context events
type ContextEventType string

const (
	EventNavigate   ContextEventType = "navigate"
	EventTitle      ContextEventType = "title"
	EventFavicon    ContextEventType = "favicon"
	EventLoadStart  ContextEventType = "load-start"
	EventLoadFinish ContextEventType = "load-finish"
	EventLoadFail   ContextEventType = "load-fail"
)

// ContextEvent is one tagged lifecycle event from a browsing context
type ContextEvent struct {
	Type      ContextEventType
	URL       string
	Title     string
	Favicon   string
	ErrorCode int
	ErrorText string
}

// Document selects which shell document a surface displays
type Document string

const (
	DocStandard  Document = "standard"
	DocImmersive Document = "immersive"
)

// Surface is a window's visible rendering surface. At most one context
// is attached to a surface at any time.
type Surface interface {
	// Attach makes the context visible on this surface
	Attach(ctx Context)
	// Detach removes the attached context, retaining its content state
	Detach()
	// LoadDocument loads a shell document; completion is signalled via
	// a SurfaceEvent, never synchronously
	LoadDocument(doc Document)
	// Events delivers surface events in order; closed by Close
	Events() <-chan SurfaceEvent
	// Close releases the surface and ends its event stream; idempotent
	Close()
}

// SurfaceEventType discriminates surface events
type SurfaceEventType string

const (
	// EventDocumentLoaded fires when a shell document finished loading
	EventDocumentLoaded SurfaceEventType = "document-loaded"
)

// SurfaceEvent is one tagged event from a window surface
type SurfaceEvent struct {
	Type     SurfaceEventType
	Document Document
}

// TransferState is the engine's raw view of a transfer
type TransferState string

const (
	TransferInProgress  TransferState = "in-progress"
	TransferCompleted   TransferState = "completed"
	TransferCancelled   TransferState = "cancelled"
	TransferInterrupted TransferState = "interrupted"
)

// TransferStarter is implemented by engines that can initiate a
// transfer on request rather than only surfacing page-initiated ones
type TransferStarter interface {
	StartTransfer(url, filename, mime string, totalBytes int64) Transfer
}

// TransferDriver is implemented by transfers that drive their own
// progress once the registry has recorded them. The registry id is
// bound into the callbacks by the caller.
type TransferDriver interface {
	Drive(onProgress func(received int64), onDone func(state TransferState))
}

// Transfer is a live engine-owned download. The registry holds it only
// while the transfer is in progress; control calls are fire-and-forget
// and their effects are observed via later progress/terminal callbacks.
type Transfer interface {
	URL() string
	SuggestedFilename() string
	Mime() string
	TotalBytes() int64
	ReceivedBytes() int64
	Paused() bool
	CanResume() bool
	Pause()
	Resume()
	Cancel()
}
