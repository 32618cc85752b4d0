package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// maxProbe bounds the "name (n)" collision probe so path computation
// always terminates
const maxProbe = 9999

// reservePath computes a collision-free save path for filename in dir
// and reserves it by creating the file exclusively. If the literal name
// and all probed "name (n)" variants are taken, a timestamp-prefixed
// name is used instead of failing the transfer.
func reservePath(fs afero.Fs, dir, filename string) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	filename = sanitizeFilename(filename)
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	if path, ok := tryReserve(fs, filepath.Join(dir, filename)); ok {
		return path, nil
	}
	for n := 1; n <= maxProbe; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if path, ok := tryReserve(fs, candidate); ok {
			return path, nil
		}
	}

	stamped := fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405.000000000"), filename)
	candidate := filepath.Join(dir, stamped)
	if path, ok := tryReserve(fs, candidate); ok {
		return path, nil
	}
	return "", fmt.Errorf("reserve save path for %q: exhausted candidates", filename)
}

// tryReserve creates the file exclusively; false means it already exists
func tryReserve(fs afero.Fs, path string) (string, bool) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", false
	}
	f.Close()
	return path, true
}

// sanitizeFilename strips path separators and falls back to a generic
// name so an engine-supplied filename can never escape the download dir
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return "download"
	}
	return filename
}
