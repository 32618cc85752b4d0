package types

import "time"

// DownloadState represents a transfer's lifecycle state
type DownloadState string

const (
	DownloadInProgress  DownloadState = "in_progress"
	DownloadInterrupted DownloadState = "interrupted"
	DownloadCompleted   DownloadState = "completed"
	DownloadCancelled   DownloadState = "cancelled"
	// DownloadDeleted marks a completed download whose artifact was removed
	// from disk while the history entry is preserved
	DownloadDeleted DownloadState = "deleted"
)

// Terminal reports whether no further byte updates can occur
func (s DownloadState) Terminal() bool {
	return s == DownloadInterrupted || s == DownloadCompleted ||
		s == DownloadCancelled || s == DownloadDeleted
}

// ScanStatus represents the integrity scan sub-state
type ScanStatus string

const (
	// ScanUnavailable means no scanner exists on this platform; permanent
	ScanUnavailable ScanStatus = "unavailable"
	ScanPending     ScanStatus = "pending"
	ScanScanning    ScanStatus = "scanning"
	ScanClean       ScanStatus = "clean"
	ScanInfected    ScanStatus = "infected"
	ScanError       ScanStatus = "error"
)

// ScanState tracks the optional post-download integrity check,
// independent of the download's own completion state
type ScanState struct {
	Status   ScanStatus `json:"status"`
	Engine   string     `json:"engine,omitempty"`
	Details  string     `json:"details,omitempty"`
	ExitCode *int       `json:"exit_code,omitempty"`
}

// DownloadRecord represents one tracked transfer
type DownloadRecord struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Filename      string        `json:"filename"`
	SavePath      string        `json:"save_path,omitempty"`
	TotalBytes    int64         `json:"total_bytes"`
	ReceivedBytes int64         `json:"received_bytes"`
	State         DownloadState `json:"state"`
	Paused        bool          `json:"paused"`
	CanResume     bool          `json:"can_resume"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	Mime          string        `json:"mime,omitempty"`
	Scan          ScanState     `json:"scan"`
}

// Clone returns a copy safe to hand outside the registry lock
func (r *DownloadRecord) Clone() *DownloadRecord {
	cp := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		cp.EndedAt = &t
	}
	if r.Scan.ExitCode != nil {
		c := *r.Scan.ExitCode
		cp.Scan.ExitCode = &c
	}
	return &cp
}

// DownloadAction is a user-initiated control command on a download
type DownloadAction string

const (
	ActionPause        DownloadAction = "pause"
	ActionResume       DownloadAction = "resume"
	ActionCancel       DownloadAction = "cancel"
	ActionDeleteFile   DownloadAction = "delete-file"
	ActionRescan       DownloadAction = "rescan"
	ActionOpenFile     DownloadAction = "open-file"
	ActionShowInFolder DownloadAction = "show-in-folder"
)
