package scan

import (
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Defender ships versioned platform directories; the newest one holds
// the current MpCmdRun.exe
const defenderPlatformDir = `C:\ProgramData\Microsoft\Windows Defender\Platform`

var defenderFallbacks = []string{
	`C:\Program Files\Windows Defender\MpCmdRun.exe`,
	`C:\Program Files\Microsoft Security Client\MpCmdRun.exe`,
}

var clamscanPaths = []string{
	"/usr/bin/clamscan",
	"/usr/local/bin/clamscan",
	"/opt/homebrew/bin/clamscan",
}

// Discover probes the platform's well-known scanner install paths and
// returns a configured Scanner. The second return is false when no
// scanner is installed, in which case scanning stays unavailable for
// the process lifetime. An explicit binary path overrides discovery.
func Discover(fs afero.Fs, override string) (Scanner, bool) {
	return discoverFor(fs, runtime.GOOS, override)
}

func discoverFor(fs afero.Fs, goos, override string) (Scanner, bool) {
	if override != "" {
		if exists(fs, override) {
			return scannerFor(goos, override), true
		}
		return nil, false
	}

	if goos == "windows" {
		if bin, ok := findDefender(fs); ok {
			return newDefender(bin), true
		}
		return nil, false
	}

	for _, path := range clamscanPaths {
		if exists(fs, path) {
			return newClamAV(path), true
		}
	}
	return nil, false
}

// findDefender locates MpCmdRun.exe, preferring the most recently
// versioned platform directory when several exist
func findDefender(fs afero.Fs) (string, bool) {
	entries, err := afero.ReadDir(fs, defenderPlatformDir)
	if err == nil {
		versions := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				versions = append(versions, entry.Name())
			}
		}
		sort.Slice(versions, func(i, j int) bool {
			return versionLess(versions[j], versions[i])
		})
		for _, version := range versions {
			candidate := filepath.Join(defenderPlatformDir, version, "MpCmdRun.exe")
			if exists(fs, candidate) {
				return candidate, true
			}
		}
	}

	for _, candidate := range defenderFallbacks {
		if exists(fs, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func scannerFor(goos, bin string) Scanner {
	if goos == "windows" {
		return newDefender(bin)
	}
	return newClamAV(bin)
}

// newDefender builds a scanner around Windows Defender's MpCmdRun.
// Exit contract: 0 = no threats, 2 = threats found.
func newDefender(bin string) Scanner {
	return &commandScanner{
		name: "Windows Defender",
		bin:  bin,
		args: func(path string) []string {
			return []string{"-Scan", "-ScanType", "3", "-File", path, "-DisableRemediation"}
		},
		classify: func(code int) Verdict {
			switch code {
			case 0:
				return VerdictClean
			case 2:
				return VerdictInfected
			default:
				return VerdictError
			}
		},
		run: execRun,
	}
}

// newClamAV builds a scanner around clamscan.
// Exit contract: 0 = no threats, 1 = threats found.
func newClamAV(bin string) Scanner {
	return &commandScanner{
		name: "ClamAV",
		bin:  bin,
		args: func(path string) []string {
			return []string{"--no-summary", path}
		},
		classify: func(code int) Verdict {
			switch code {
			case 0:
				return VerdictClean
			case 1:
				return VerdictInfected
			default:
				return VerdictError
			}
		},
		run: execRun,
	}
}

// versionLess compares dotted numeric versions segment by segment
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
			continue
		}
		if ai != bi {
			return ai < bi
		}
	}
	return len(as) < len(bs)
}

func exists(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, path)
	return err == nil && ok
}
