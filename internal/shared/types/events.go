package types

// ViewEventType discriminates engine events forwarded per view
type ViewEventType string

const (
	ViewEventNavigate   ViewEventType = "navigate"
	ViewEventTitle      ViewEventType = "title"
	ViewEventFavicon    ViewEventType = "favicon"
	ViewEventLoadStart  ViewEventType = "load_start"
	ViewEventLoadFinish ViewEventType = "load_finish"
	ViewEventLoadFail   ViewEventType = "load_fail"
	ViewEventFocus      ViewEventType = "focus"
)

// ViewEvent is one engine event tagged with its owning window and tab.
// All views of a window share a single ordered feed; the front-end never
// registers per-tab listeners.
type ViewEvent struct {
	WindowID  string        `json:"window_id"`
	TabID     string        `json:"tab_id"`
	Type      ViewEventType `json:"type"`
	URL       string        `json:"url,omitempty"`
	Title     string        `json:"title,omitempty"`
	Favicon   string        `json:"favicon,omitempty"`
	ErrorCode int           `json:"error_code,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
}

// DownloadEventType discriminates download registry events
type DownloadEventType string

const (
	DownloadEventStarted     DownloadEventType = "download_started"
	DownloadEventUpdated     DownloadEventType = "download_updated"
	DownloadEventDone        DownloadEventType = "download_done"
	DownloadEventScanStarted DownloadEventType = "download_scan_started"
	DownloadEventScanResult  DownloadEventType = "download_scan_result"
	DownloadEventCleared     DownloadEventType = "download_cleared"
)

// DownloadProgress carries only the fields that change on a progress tick,
// keeping event volume bounded on fast transfers
type DownloadProgress struct {
	ReceivedBytes int64 `json:"received_bytes"`
	TotalBytes    int64 `json:"total_bytes"`
	Paused        bool  `json:"paused"`
	CanResume     bool  `json:"can_resume"`
}

// DownloadEvent is one download registry event. Record is set for
// started/done/scan events, Progress for updated, neither for cleared.
type DownloadEvent struct {
	Type     DownloadEventType `json:"type"`
	ID       string            `json:"id"`
	Record   *DownloadRecord   `json:"record,omitempty"`
	Progress *DownloadProgress `json:"progress,omitempty"`
}
