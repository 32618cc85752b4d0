// Package types provides shared data structures for the shell host.
//
// This package defines the records owned by the two core managers,
// ensuring type safety and consistent data structures across the API,
// WebSocket, and domain layers.
//
// View Types:
//   - DisplayMode: Window display mode enum (standard, immersive)
//   - Rect: View layout rectangle
//   - ViewInfo, WindowInfo: Externally visible session state
//
// Download Types:
//   - DownloadRecord: One tracked transfer with scan sub-state
//   - DownloadState: Transfer lifecycle enum
//   - ScanState, ScanStatus: Post-download integrity scan lifecycle
//
// Event Types:
//   - ViewEvent: Discriminated per-view engine event, tagged with tab ID
//   - DownloadEvent: Discriminated download registry event
//
// These types carry no behavior beyond small copy/validation helpers;
// all state transitions live in the domain managers.
package types
