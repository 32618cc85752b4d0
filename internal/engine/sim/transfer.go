package sim

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelbrowser/shellhost/internal/engine"
)

// Transfer is a simulated engine-owned download. Tests drive it by
// stepping bytes and then reporting progress/terminal callbacks to the
// registry themselves, mirroring how the engine adapter would.
type Transfer struct {
	handle string

	mu        sync.Mutex
	url       string
	filename  string
	mime      string
	total     int64
	received  int64
	paused    bool
	canResume bool
	cancelled bool
}

// NewTransfer creates a simulated transfer
func NewTransfer(url, filename, mime string, total int64) *Transfer {
	return &Transfer{
		handle:    uuid.New().String(),
		url:       url,
		filename:  filename,
		mime:      mime,
		total:     total,
		canResume: true,
	}
}

// Handle returns the simulated engine handle ID
func (t *Transfer) Handle() string { return t.handle }

// URL returns the source URL
func (t *Transfer) URL() string { return t.url }

// SuggestedFilename returns the engine-suggested filename
func (t *Transfer) SuggestedFilename() string { return t.filename }

// Mime returns the reported MIME type, possibly empty
func (t *Transfer) Mime() string { return t.mime }

// TotalBytes returns the expected size, 0 if unknown
func (t *Transfer) TotalBytes() int64 { return t.total }

// ReceivedBytes returns the bytes received so far
func (t *Transfer) ReceivedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.received
}

// Paused reports whether the transfer is paused
func (t *Transfer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// CanResume reports whether the transfer can continue from its offset
func (t *Transfer) CanResume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canResume
}

// Pause pauses the transfer
func (t *Transfer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume resumes a paused transfer
func (t *Transfer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

// Cancel requests cancellation; observed later via a terminal callback
func (t *Transfer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether Cancel was requested
func (t *Transfer) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// SetCanResume overrides resumability for tests
func (t *Transfer) SetCanResume(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canResume = v
}

// Drive steps the transfer to completion in the background, reporting
// through the callbacks the way an engine adapter would. Pausing stalls
// progress without stopping the driver; Cancel terminates it.
func (t *Transfer) Drive(onProgress func(received int64), onDone func(state engine.TransferState)) {
	go func() {
		// Unknown sizes finish after a fixed number of chunks
		chunk := t.total / 20
		steps := 20
		if chunk <= 0 {
			chunk = 64 * 1024
		}

		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if t.Cancelled() {
				onDone(engine.TransferCancelled)
				return
			}
			if t.Paused() {
				continue
			}

			received := t.Step(chunk)
			onProgress(received)

			if t.total > 0 {
				if received >= t.total {
					onDone(engine.TransferCompleted)
					return
				}
				continue
			}
			if steps--; steps <= 0 {
				onDone(engine.TransferCompleted)
				return
			}
		}
	}()
}

// Step advances the received byte count by n, clamped to the total
func (t *Transfer) Step(n int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received += n
	if t.total > 0 && t.received > t.total {
		t.received = t.total
	}
	return t.received
}
