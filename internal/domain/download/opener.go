package download

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ShellOpener opens files and folders through the host desktop shell
type ShellOpener struct{}

// NewShellOpener creates the platform shell delegate
func NewShellOpener() *ShellOpener {
	return &ShellOpener{}
}

// OpenFile opens the file with its default application
func (o *ShellOpener) OpenFile(path string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path).Start()
	case "darwin":
		return exec.Command("open", path).Start()
	case "linux":
		return exec.Command("xdg-open", path).Start()
	default:
		return fmt.Errorf("open file: unsupported platform %s", runtime.GOOS)
	}
}

// ShowInFolder reveals the file in the platform file manager. Platforms
// without a reveal verb fall back to opening the containing directory.
func (o *ShellOpener) ShowInFolder(path string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", "/select,", path).Start()
	case "darwin":
		return exec.Command("open", "-R", path).Start()
	case "linux":
		return exec.Command("xdg-open", filepath.Dir(path)).Start()
	default:
		return fmt.Errorf("show in folder: unsupported platform %s", runtime.GOOS)
	}
}
