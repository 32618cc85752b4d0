// Package scan discovers and invokes an external integrity scanner for
// completed downloads.
//
// Discovery probes an ordered list of platform-specific well-known
// install paths, preferring the most recently versioned directory when
// several exist. When nothing is installed, scanning is reported as
// unavailable for the lifetime of the process.
//
// Invocation uses a fixed per-engine argument contract, and the exit
// code plus combined output are classified into exactly three outcomes:
// clean, infected, or error. The tri-state is deliberate — "the scanner
// ran and found nothing" must stay distinguishable from "the scanner
// could not run".
package scan
