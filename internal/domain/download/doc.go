// Package download provides the process-wide download registry.
//
// The registry tracks every engine-initiated transfer from registration
// to a terminal state, mediates user control actions, and coordinates
// the optional post-completion integrity scan.
//
// Components:
//   - Manager: download-id to record table with soft-fail actions
//   - Save path reservation: bounded collision probing, never overwrites
//   - Scan coordination: async scanner invocation with guarded merge
//
// Live transfer handles are held only while a transfer is in progress;
// on a terminal event the handle is dropped and only plain record data
// is retained. Progress and terminal callbacks race freely with user
// actions: every transition reads current state before applying, and
// events for ids no longer in the registry are discarded silently.
//
// Records live in memory only and are lost on process restart; the only
// persisted artifacts are the downloaded files themselves.
package download
