package download

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelbrowser/shellhost/internal/domain/download/scan"
	"github.com/kestrelbrowser/shellhost/internal/engine"
	"github.com/kestrelbrowser/shellhost/internal/engine/sim"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/logging"
	"github.com/kestrelbrowser/shellhost/internal/shared/types"
)

// eventLog collects the registry feed so tests can assert on broadcast
// order without racing the emitter
type eventLog struct {
	mu     sync.Mutex
	events []types.DownloadEvent
}

func (l *eventLog) append(ev types.DownloadEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(et types.DownloadEventType) []types.DownloadEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.DownloadEvent
	for _, ev := range l.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

// fixedScanner returns a canned result after an optional delay
type fixedScanner struct {
	result scan.Result
	delay  time.Duration
}

func (s *fixedScanner) Name() string { return "test-scanner" }

func (s *fixedScanner) Scan(ctx context.Context, path string) scan.Result {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.result
}

// recordingOpener records shell delegate calls
type recordingOpener struct {
	mu       sync.Mutex
	opened   []string
	revealed []string
}

func (o *recordingOpener) OpenFile(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	return nil
}

func (o *recordingOpener) ShowInFolder(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revealed = append(o.revealed, path)
	return nil
}

func newTestManager(t *testing.T) (*Manager, afero.Fs, *eventLog) {
	t.Helper()

	fs := afero.NewMemMapFs()
	m := NewManager(fs, "/downloads", logging.NewNop())

	log := &eventLog{}
	go func() {
		for ev := range m.Events() {
			log.append(ev)
		}
	}()

	return m, fs, log
}

func register(t *testing.T, m *Manager, filename string, total int64) (*types.DownloadRecord, *sim.Transfer) {
	t.Helper()
	transfer := sim.NewTransfer("https://example.org/"+filename, filename, "", total)
	rec := m.Register(transfer)
	require.NotNil(t, rec)
	return rec, transfer
}

func TestRegisterReservesDistinctPaths(t *testing.T) {
	m, _, _ := newTestManager(t)

	first, _ := register(t, m, "report.pdf", 100)
	second, _ := register(t, m, "report.pdf", 100)

	assert.Equal(t, filepath.Join("/downloads", "report.pdf"), first.SavePath)
	assert.Equal(t, filepath.Join("/downloads", "report (1).pdf"), second.SavePath)
	assert.Equal(t, "report (1).pdf", second.Filename)
}

func TestRegisterScanPendingOnlyWithScanner(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "a.bin", 10)
	assert.Equal(t, types.ScanUnavailable, rec.Scan.Status)

	scanned, _, _ := newTestManager(t)
	scanned.WithScanner(&fixedScanner{result: scan.Result{Verdict: scan.VerdictClean}})
	rec, _ = register(t, scanned, "b.bin", 10)
	assert.Equal(t, types.ScanPending, rec.Scan.Status)
	assert.Equal(t, "test-scanner", rec.Scan.Engine)
}

func TestProgressBytesMonotonic(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 1000)

	m.OnProgress(rec.ID, 400)
	m.OnProgress(rec.ID, 250)

	got, ok := m.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, int64(400), got.ReceivedBytes, "received bytes never decrease while in progress")
}

func TestProgressForUnknownIDDiscarded(t *testing.T) {
	m, _, log := newTestManager(t)

	m.OnProgress("dl_missing", 100)

	assert.Empty(t, log.ofType(types.DownloadEventUpdated))
}

func TestPauseThenResume(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, transfer := register(t, m, "file.bin", 1000)

	require.True(t, m.Action(rec.ID, types.ActionPause))
	assert.True(t, transfer.Paused())
	got, _ := m.Get(rec.ID)
	assert.True(t, got.Paused)
	assert.Equal(t, types.DownloadInProgress, got.State)

	require.True(t, m.Action(rec.ID, types.ActionResume))
	got, _ = m.Get(rec.ID)
	assert.False(t, got.Paused)
	assert.Equal(t, types.DownloadInProgress, got.State)
}

func TestPauseTwiceReturnsFalse(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 1000)

	require.True(t, m.Action(rec.ID, types.ActionPause))
	assert.False(t, m.Action(rec.ID, types.ActionPause))
}

func TestResumeNotResumableReturnsFalse(t *testing.T) {
	m, _, _ := newTestManager(t)
	transfer := sim.NewTransfer("https://example.org/f", "f", "", 10)
	transfer.SetCanResume(false)
	rec := m.Register(transfer)

	assert.False(t, m.Action(rec.ID, types.ActionResume))
}

func TestCancelOnCompletedReturnsFalse(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, transfer := register(t, m, "file.bin", 10)

	m.OnTerminal(rec.ID, engine.TransferCompleted)

	assert.False(t, m.Action(rec.ID, types.ActionCancel))
	assert.False(t, transfer.Cancelled())

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.DownloadCompleted, got.State)
}

func TestCancelIsFireAndForget(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, transfer := register(t, m, "file.bin", 10)

	require.True(t, m.Action(rec.ID, types.ActionCancel))
	assert.True(t, transfer.Cancelled())

	// State flips only once the engine confirms via the terminal callback
	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.DownloadInProgress, got.State)

	m.OnTerminal(rec.ID, engine.TransferCancelled)
	got, _ = m.Get(rec.ID)
	assert.Equal(t, types.DownloadCancelled, got.State)
	require.NotNil(t, got.EndedAt)
}

func TestInterruptedTransfer(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 1000)

	m.OnProgress(rec.ID, 400)
	m.OnTerminal(rec.ID, engine.TransferInterrupted)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.DownloadInterrupted, got.State)
	assert.Equal(t, int64(400), got.ReceivedBytes)
}

func TestProgressAfterTerminalDiscarded(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 1000)

	m.OnTerminal(rec.ID, engine.TransferCancelled)
	m.OnProgress(rec.ID, 900)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, int64(0), got.ReceivedBytes)
}

func TestClearCompletedKeepsInProgress(t *testing.T) {
	m, _, log := newTestManager(t)

	done, _ := register(t, m, "done.bin", 10)
	live, _ := register(t, m, "live.bin", 10)
	m.OnTerminal(done.ID, engine.TransferCompleted)

	assert.Equal(t, 1, m.ClearCompleted())

	_, ok := m.Get(done.ID)
	assert.False(t, ok)
	got, ok := m.Get(live.ID)
	require.True(t, ok, "in-progress downloads survive a clear sweep")
	assert.Equal(t, types.DownloadInProgress, got.State)

	require.Eventually(t, func() bool {
		return len(log.ofType(types.DownloadEventCleared)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestClearCompletedKeepsInterrupted(t *testing.T) {
	m, _, _ := newTestManager(t)

	rec, _ := register(t, m, "partial.bin", 1000)
	m.OnProgress(rec.ID, 400)
	m.OnTerminal(rec.ID, engine.TransferInterrupted)

	assert.Equal(t, 0, m.ClearCompleted())
	_, ok := m.Get(rec.ID)
	assert.True(t, ok, "interrupted downloads may still be resumed")
}

func TestCompletionTriggersScan(t *testing.T) {
	m, _, log := newTestManager(t)
	m.WithScanner(&fixedScanner{result: scan.Result{
		Verdict: scan.VerdictClean,
		Details: "no threats",
	}})

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	require.Eventually(t, func() bool {
		got, ok := m.Get(rec.ID)
		return ok && got.Scan.Status == types.ScanClean
	}, time.Second, 10*time.Millisecond)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.DownloadCompleted, got.State)
	assert.Equal(t, "no threats", got.Scan.Details)
	require.NotNil(t, got.Scan.ExitCode)
	assert.Equal(t, 0, *got.Scan.ExitCode)

	require.Eventually(t, func() bool {
		return len(log.ofType(types.DownloadEventScanStarted)) == 1 &&
			len(log.ofType(types.DownloadEventScanResult)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInfectedVerdictDoesNotTouchDownloadState(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.WithScanner(&fixedScanner{result: scan.Result{
		Verdict:  scan.VerdictInfected,
		Details:  "Eicar-Test-Signature FOUND",
		ExitCode: 1,
	}})

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	require.Eventually(t, func() bool {
		got, ok := m.Get(rec.ID)
		return ok && got.Scan.Status == types.ScanInfected
	}, time.Second, 10*time.Millisecond)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.DownloadCompleted, got.State,
		"scan verdicts are advisory and never change the download state")
}

func TestCancelledTransferNotScanned(t *testing.T) {
	m, _, log := newTestManager(t)
	m.WithScanner(&fixedScanner{result: scan.Result{Verdict: scan.VerdictClean}})

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCancelled)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, log.ofType(types.DownloadEventScanStarted))

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.ScanPending, got.Scan.Status)
}

func TestScanResultForClearedDownloadDropped(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.WithScanner(&fixedScanner{
		result: scan.Result{Verdict: scan.VerdictClean},
		delay:  100 * time.Millisecond,
	})

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)
	assert.Equal(t, 1, m.ClearCompleted())

	// The in-flight scan finishes against a removed record; nothing to
	// merge, nothing to panic about
	time.Sleep(200 * time.Millisecond)
	_, ok := m.Get(rec.ID)
	assert.False(t, ok)
}

func TestRescanMissingFileResolvesToError(t *testing.T) {
	m, fs, log := newTestManager(t)
	m.WithScanner(&fixedScanner{result: scan.Result{Verdict: scan.VerdictClean}})

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)
	require.Eventually(t, func() bool {
		got, _ := m.Get(rec.ID)
		return got.Scan.Status == types.ScanClean
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, fs.Remove(rec.SavePath))
	require.True(t, m.Action(rec.ID, types.ActionRescan))

	got, _ := m.Get(rec.ID)
	assert.Equal(t, types.ScanError, got.Scan.Status)
	assert.Contains(t, got.Scan.Details, "file not found")

	require.Eventually(t, func() bool {
		return len(log.ofType(types.DownloadEventScanResult)) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRescanWithoutScannerReturnsFalse(t *testing.T) {
	m, _, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	assert.False(t, m.Action(rec.ID, types.ActionRescan))
}

func TestDeleteFilePreservesHistory(t *testing.T) {
	m, fs, _ := newTestManager(t)
	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	require.True(t, m.Action(rec.ID, types.ActionDeleteFile))

	got, ok := m.Get(rec.ID)
	require.True(t, ok, "delete-file removes the artifact, not the record")
	assert.Equal(t, types.DownloadDeleted, got.State)
	assert.Empty(t, got.SavePath)

	exists, err := afero.Exists(fs, rec.SavePath)
	require.NoError(t, err)
	assert.False(t, exists)

	// With no artifact left there is nothing further to delete or open
	assert.False(t, m.Action(rec.ID, types.ActionDeleteFile))
	assert.False(t, m.Action(rec.ID, types.ActionOpenFile))
}

func TestOpenAndShowDelegateToShell(t *testing.T) {
	m, _, _ := newTestManager(t)
	opener := &recordingOpener{}
	m.WithOpener(opener)

	rec, _ := register(t, m, "file.bin", 10)
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	require.True(t, m.Action(rec.ID, types.ActionOpenFile))
	require.True(t, m.Action(rec.ID, types.ActionShowInFolder))

	opener.mu.Lock()
	defer opener.mu.Unlock()
	assert.Equal(t, []string{rec.SavePath}, opener.opened)
	assert.Equal(t, []string{rec.SavePath}, opener.revealed)
}

func TestActionOnUnknownIDReturnsFalse(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.False(t, m.Action("dl_missing", types.ActionPause))
	assert.False(t, m.Action("dl_missing", types.ActionRescan))
}

func TestMimeSniffedOnCompletion(t *testing.T) {
	m, fs, _ := newTestManager(t)
	rec, _ := register(t, m, "unnamed", 0)

	require.NoError(t, afero.WriteFile(fs, rec.SavePath, []byte("%PDF-1.7\n"), 0o644))
	m.OnTerminal(rec.ID, engine.TransferCompleted)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, "application/pdf", got.Mime)
}

func TestListMergesLiveTransferState(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, transfer := register(t, m, "file.bin", 1000)

	transfer.Step(300)
	transfer.Pause()

	records := m.List()
	require.Len(t, records, 1)
	assert.Equal(t, int64(300), records[0].ReceivedBytes)
	assert.True(t, records[0].Paused)
}

func TestListOrderedByCreation(t *testing.T) {
	m, _, _ := newTestManager(t)

	// Register in a tight loop so many records share a millisecond; the
	// listing must still come back in registration order
	const n = 50
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec, _ := register(t, m, fmt.Sprintf("part-%d.bin", i), 10)
		ids = append(ids, rec.ID)
	}

	records := m.List()
	require.Len(t, records, n)
	for i, rec := range records {
		assert.Equal(t, ids[i], rec.ID)
	}
}
