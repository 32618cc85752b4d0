// Package session provides per-window view session management.
//
// Each registered window owns a table of tab ID to browsing context,
// an active pointer, and a layout rectangle. The manager mediates view
// creation, activation, destruction, resize, and the two mutually
// exclusive display modes (standard and immersive).
//
// Invariants:
//   - At most one context is attached to a window's surface at any time
//   - The active tab ID is always nil or a key present in the view table
//   - Contexts are exclusively owned by the session that created them
//
// Every engine event is tagged with its owning window and tab and
// forwarded through one ordered feed; the front-end never registers
// per-tab listeners. All table operations fail soft (bool returns):
// callers are asynchronous and their view of existence may lag by one
// message, so a missing window or tab is a race, not an error.
//
// Example Usage:
//
//	manager := session.NewManager(eng, logger)
//	winID := manager.RegisterWindow(surface)
//	manager.CreateView(winID, "tab-1", "https://example.org")
//	manager.SetActiveView(winID, "tab-1")
package session
