package download

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kestrelbrowser/shellhost/internal/domain/download/scan"
	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/monitoring"
	"github.com/kestrelbrowser/shellhost/internal/shared/id"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

const (
	eventBuffer = 256
	scanTimeout = 5 * time.Minute
)

// Opener delegates file reveal actions to the host shell
type Opener interface {
	OpenFile(path string) error
	ShowInFolder(path string) error
}

// Manager owns the process-wide download registry
type Manager struct {
	mu        sync.Mutex
	fs        afero.Fs
	dir       string
	records   map[string]*types.DownloadRecord
	transfers map[string]engine.Transfer
	scanner   scan.Scanner
	opener    Opener
	events    chan types.DownloadEvent
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewManager creates a download registry saving into dir on fs
func NewManager(fs afero.Fs, dir string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		fs:        fs,
		dir:       dir,
		records:   make(map[string]*types.DownloadRecord),
		transfers: make(map[string]engine.Transfer),
		events:    make(chan types.DownloadEvent, eventBuffer),
		logger:    logger,
	}
}

// WithScanner enables post-completion integrity scanning
func (m *Manager) WithScanner(scanner scan.Scanner) *Manager {
	m.scanner = scanner
	return m
}

// WithOpener wires the host-shell delegate for open/reveal actions
func (m *Manager) WithOpener(opener Opener) *Manager {
	m.opener = opener
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Events returns the registry's ordered event feed
func (m *Manager) Events() <-chan types.DownloadEvent {
	return m.events
}

// Register tracks a new engine-initiated transfer. It reserves a
// collision-free save path and returns the new record.
func (m *Manager) Register(transfer engine.Transfer) *types.DownloadRecord {
	rec := &types.DownloadRecord{
		ID:         id.NewDownloadID().String(),
		URL:        transfer.URL(),
		Filename:   sanitizeFilename(transfer.SuggestedFilename()),
		TotalBytes: transfer.TotalBytes(),
		State:      types.DownloadInProgress,
		CanResume:  transfer.CanResume(),
		StartedAt:  time.Now(),
		Mime:       transfer.Mime(),
		Scan:       types.ScanState{Status: types.ScanUnavailable},
	}
	if m.scanner != nil {
		rec.Scan = types.ScanState{Status: types.ScanPending, Engine: m.scanner.Name()}
	}

	path, err := reservePath(m.fs, m.dir, rec.Filename)
	if err != nil {
		m.logger.Warn("save path reservation failed",
			zap.String("filename", rec.Filename),
			zap.Error(err),
		)
		path = filepath.Join(m.dir, rec.Filename)
	}
	rec.SavePath = path
	rec.Filename = filepath.Base(path)

	m.mu.Lock()
	m.records[rec.ID] = rec
	m.transfers[rec.ID] = transfer
	clone := rec.Clone()
	m.updateGaugesLocked()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncDownloadsTotal()
	}
	m.logger.Info("download registered",
		zap.String("download_id", rec.ID),
		zap.String("save_path", path),
	)

	m.emit(types.DownloadEvent{Type: types.DownloadEventStarted, ID: clone.ID, Record: clone})
	return clone
}

// OnProgress applies a progress tick from the engine. Updates for ids
// no longer in the registry are discarded silently, and only the
// changed fields are broadcast to bound event volume on fast transfers.
func (m *Manager) OnProgress(downloadID string, receivedBytes int64) {
	m.mu.Lock()
	rec, ok := m.records[downloadID]
	if !ok || rec.State.Terminal() {
		m.mu.Unlock()
		return
	}

	// Bytes are monotonically non-decreasing while in progress
	if receivedBytes > rec.ReceivedBytes {
		rec.ReceivedBytes = receivedBytes
	}
	if transfer, ok := m.transfers[downloadID]; ok {
		rec.Paused = transfer.Paused()
		rec.CanResume = transfer.CanResume()
		if rec.TotalBytes == 0 {
			rec.TotalBytes = transfer.TotalBytes()
		}
	}
	progress := &types.DownloadProgress{
		ReceivedBytes: rec.ReceivedBytes,
		TotalBytes:    rec.TotalBytes,
		Paused:        rec.Paused,
		CanResume:     rec.CanResume,
	}
	m.mu.Unlock()

	m.emit(types.DownloadEvent{Type: types.DownloadEventUpdated, ID: downloadID, Progress: progress})
}

// OnTerminal finalizes a transfer. The live handle is dropped so engine
// resources are released promptly, and only plain record data remains.
// Completed downloads kick off an asynchronous integrity scan when a
// scanner is available.
func (m *Manager) OnTerminal(downloadID string, state engine.TransferState) {
	m.mu.Lock()
	rec, ok := m.records[downloadID]
	if !ok || rec.State.Terminal() {
		// Terminal events for ids no longer present are discarded
		m.mu.Unlock()
		return
	}

	switch state {
	case engine.TransferCompleted:
		rec.State = types.DownloadCompleted
		if rec.TotalBytes > 0 {
			rec.ReceivedBytes = rec.TotalBytes
		}
	case engine.TransferCancelled:
		rec.State = types.DownloadCancelled
	default:
		rec.State = types.DownloadInterrupted
	}
	now := time.Now()
	rec.EndedAt = &now
	rec.Paused = false
	delete(m.transfers, downloadID)

	if rec.State == types.DownloadCompleted && rec.Mime == "" {
		rec.Mime = m.sniffMime(rec.SavePath)
	}

	clone := rec.Clone()
	startScan := rec.State == types.DownloadCompleted && m.scanner != nil
	if startScan {
		rec.Scan.Status = types.ScanScanning
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.logger.Info("download finished",
		zap.String("download_id", downloadID),
		zap.String("state", string(clone.State)),
	)
	m.emit(types.DownloadEvent{Type: types.DownloadEventDone, ID: downloadID, Record: clone})

	if startScan {
		m.announceScan(downloadID)
		go m.runScan(downloadID, clone.SavePath)
	}
}

// Action applies a user control command. Unknown ids and invalid
// transitions return false; nothing here raises.
func (m *Manager) Action(downloadID string, action types.DownloadAction) bool {
	m.mu.Lock()
	rec, ok := m.records[downloadID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	transfer := m.transfers[downloadID]

	switch action {
	case types.ActionPause:
		if rec.State != types.DownloadInProgress || rec.Paused || transfer == nil {
			m.mu.Unlock()
			return false
		}
		transfer.Pause()
		rec.Paused = true
		progress := &types.DownloadProgress{
			ReceivedBytes: rec.ReceivedBytes,
			TotalBytes:    rec.TotalBytes,
			Paused:        true,
			CanResume:     rec.CanResume,
		}
		m.mu.Unlock()
		m.emit(types.DownloadEvent{Type: types.DownloadEventUpdated, ID: downloadID, Progress: progress})
		return true

	case types.ActionResume:
		if !rec.CanResume || transfer == nil {
			m.mu.Unlock()
			return false
		}
		transfer.Resume()
		rec.Paused = false
		progress := &types.DownloadProgress{
			ReceivedBytes: rec.ReceivedBytes,
			TotalBytes:    rec.TotalBytes,
			Paused:        false,
			CanResume:     rec.CanResume,
		}
		m.mu.Unlock()
		m.emit(types.DownloadEvent{Type: types.DownloadEventUpdated, ID: downloadID, Progress: progress})
		return true

	case types.ActionCancel:
		if rec.State != types.DownloadInProgress || transfer == nil {
			m.mu.Unlock()
			return false
		}
		// Fire-and-forget: completion is confirmed by the terminal callback
		transfer.Cancel()
		m.mu.Unlock()
		return true

	case types.ActionDeleteFile:
		return m.deleteFileLocked(rec)

	case types.ActionRescan:
		return m.rescanLocked(rec)

	case types.ActionOpenFile, types.ActionShowInFolder:
		path := rec.SavePath
		opener := m.opener
		m.mu.Unlock()
		if path == "" || opener == nil {
			return false
		}
		var err error
		if action == types.ActionOpenFile {
			err = opener.OpenFile(path)
		} else {
			err = opener.ShowInFolder(path)
		}
		if err != nil {
			m.logger.Warn("shell delegate failed",
				zap.String("download_id", rec.ID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
		return true

	default:
		m.mu.Unlock()
		return false
	}
}

// deleteFileLocked removes the artifact from disk, preserving the
// history entry. Caller must hold m.mu; the lock is released here.
func (m *Manager) deleteFileLocked(rec *types.DownloadRecord) bool {
	if rec.SavePath == "" {
		m.mu.Unlock()
		return false
	}
	if err := m.fs.Remove(rec.SavePath); err != nil {
		m.logger.Warn("artifact removal failed",
			zap.String("download_id", rec.ID),
			zap.Error(err),
		)
	}
	if rec.State == types.DownloadCompleted {
		rec.State = types.DownloadDeleted
	}
	rec.SavePath = ""
	clone := rec.Clone()
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.emit(types.DownloadEvent{Type: types.DownloadEventDone, ID: clone.ID, Record: clone})
	return true
}

// rescanLocked re-invokes the scan if the artifact still exists. A
// missing file resolves to a scan error with a "not found" detail
// rather than failing the action. Caller must hold m.mu; the lock is
// released here.
func (m *Manager) rescanLocked(rec *types.DownloadRecord) bool {
	if m.scanner == nil || rec.Scan.Status == types.ScanScanning {
		m.mu.Unlock()
		return false
	}

	downloadID := rec.ID
	path := rec.SavePath
	present := false
	if path != "" {
		ok, err := afero.Exists(m.fs, path)
		present = err == nil && ok
	}

	if !present {
		rec.Scan = types.ScanState{
			Status:  types.ScanError,
			Engine:  m.scanner.Name(),
			Details: "file not found: " + path,
		}
		clone := rec.Clone()
		m.mu.Unlock()
		m.emit(types.DownloadEvent{Type: types.DownloadEventScanResult, ID: downloadID, Record: clone})
		if m.metrics != nil {
			m.metrics.IncScanResult(string(types.ScanError))
		}
		return true
	}

	rec.Scan.Status = types.ScanScanning
	rec.Scan.Details = ""
	rec.Scan.ExitCode = nil
	m.mu.Unlock()

	m.announceScan(downloadID)
	go m.runScan(downloadID, path)
	return true
}

// List returns a snapshot of every record, merging any still-live
// transfer state so callers see current bytes without a subscription
func (m *Manager) List() []*types.DownloadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.DownloadRecord, 0, len(m.records))
	for downloadID, rec := range m.records {
		clone := rec.Clone()
		if transfer, ok := m.transfers[downloadID]; ok {
			if received := transfer.ReceivedBytes(); received > clone.ReceivedBytes {
				clone.ReceivedBytes = received
			}
			clone.Paused = transfer.Paused()
			clone.CanResume = transfer.CanResume()
		}
		out = append(out, clone)
	}

	// Monotonic ULIDs sort in registration order, same-millisecond
	// registrations included
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a snapshot of one record
func (m *Manager) Get(downloadID string) (*types.DownloadRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[downloadID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ClearCompleted removes every completed, cancelled, or deleted record.
// Interrupted downloads stay: they may still be resumed. The key set is
// snapshotted first so the sweep cannot race an in-flight progress
// event for an id being concurrently finalized.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.records))
	for downloadID := range m.records {
		ids = append(ids, downloadID)
	}
	m.mu.Unlock()

	cleared := 0
	for _, downloadID := range ids {
		m.mu.Lock()
		rec, ok := m.records[downloadID]
		if !ok || !clearable(rec.State) {
			m.mu.Unlock()
			continue
		}
		delete(m.records, downloadID)
		m.updateGaugesLocked()
		m.mu.Unlock()

		m.emit(types.DownloadEvent{Type: types.DownloadEventCleared, ID: downloadID})
		cleared++
	}
	return cleared
}

// announceScan broadcasts the pending-to-scanning transition
func (m *Manager) announceScan(downloadID string) {
	m.mu.Lock()
	rec, ok := m.records[downloadID]
	if !ok {
		m.mu.Unlock()
		return
	}
	clone := rec.Clone()
	m.mu.Unlock()
	m.emit(types.DownloadEvent{Type: types.DownloadEventScanStarted, ID: downloadID, Record: clone})
}

// runScan invokes the scanner off the control path and merges the
// result back only if the record still exists, guarding against a
// concurrent ClearCompleted
func (m *Manager) runScan(downloadID, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	result := m.scanner.Scan(ctx, path)

	m.mu.Lock()
	rec, ok := m.records[downloadID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("scan result for cleared download dropped",
			zap.String("download_id", downloadID),
		)
		return
	}
	code := result.ExitCode
	rec.Scan = types.ScanState{
		Status:   scanStatus(result.Verdict),
		Engine:   m.scanner.Name(),
		Details:  result.Details,
		ExitCode: &code,
	}
	clone := rec.Clone()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncScanResult(string(clone.Scan.Status))
	}
	m.logger.Info("scan finished",
		zap.String("download_id", downloadID),
		zap.String("verdict", string(clone.Scan.Status)),
	)
	m.emit(types.DownloadEvent{Type: types.DownloadEventScanResult, ID: downloadID, Record: clone})
}

// sniffMime detects the MIME type of a completed artifact when the
// engine supplied none
func (m *Manager) sniffMime(path string) string {
	f, err := m.fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

func (m *Manager) emit(ev types.DownloadEvent) {
	m.events <- ev
}

// updateGaugesLocked refreshes the in-progress gauge.
// Caller must hold m.mu.
func (m *Manager) updateGaugesLocked() {
	if m.metrics == nil {
		return
	}
	active := 0
	for _, rec := range m.records {
		if rec.State == types.DownloadInProgress {
			active++
		}
	}
	m.metrics.SetDownloadsActive(active)
}

func clearable(s types.DownloadState) bool {
	return s == types.DownloadCompleted || s == types.DownloadCancelled ||
		s == types.DownloadDeleted
}

func scanStatus(v scan.Verdict) types.ScanStatus {
	switch v {
	case scan.VerdictClean:
		return types.ScanClean
	case scan.VerdictInfected:
		return types.ScanInfected
	default:
		return types.ScanError
	}
}
