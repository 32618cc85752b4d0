package types

// DisplayMode represents a window's display mode
type DisplayMode string

const (
	// ModeStandard shows the regular chrome document with an attached view
	ModeStandard DisplayMode = "standard"
	// ModeImmersive shows the full-window immersive document, no view attached
	ModeImmersive DisplayMode = "immersive"
)

// Valid reports whether the mode is one of the known display modes
func (m DisplayMode) Valid() bool {
	return m == ModeStandard || m == ModeImmersive
}

// Rect represents a view's layout rectangle within a window
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ViewInfo is the externally visible state of one view handle
type ViewInfo struct {
	WindowID string `json:"window_id"`
	TabID    string `json:"tab_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Attached bool   `json:"attached"`
	Active   bool   `json:"active"`
}

// WindowInfo is the externally visible state of one window's session
type WindowInfo struct {
	ID          string      `json:"id"`
	Mode        DisplayMode `json:"mode"`
	ActiveTabID *string     `json:"active_tab_id,omitempty"`
	Bounds      *Rect       `json:"bounds,omitempty"`
	Views       []ViewInfo  `json:"views"`
}
