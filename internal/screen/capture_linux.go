//go:build linux

package screen

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

type linuxBackend struct {
	appName string
	tempDir string
}

func (l *linuxBackend) captureRaw() []byte {
	tmpFile := filepath.Join(l.tempDir, "frame.png")
	cmd := l.windowCommand(tmpFile)
	if cmd == nil {
		cmd = fullScreenCommand(tmpFile)
	}
	if cmd == nil {
		slog.Error("no screenshot tool found (install xdotool and imagemagick, gnome-screenshot or scrot)")
		return nil
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("screenshot failed", "error", err, "stderr", stderr.String())
		return nil
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		slog.Error("failed to read screenshot", "error", err)
		return nil
	}
	os.Remove(tmpFile)
	return data
}

// windowCommand targets the application window when xdotool and import are
// both installed and the window is visible.
func (l *linuxBackend) windowCommand(tmpFile string) *exec.Cmd {
	if _, err := exec.LookPath("xdotool"); err != nil {
		return nil
	}
	if _, err := exec.LookPath("import"); err != nil {
		return nil
	}
	out, err := exec.Command("xdotool", "search", "--onlyvisible", "--name", l.appName).Output()
	if err != nil {
		slog.Debug("window not found, capturing full screen", "app", l.appName, "error", err)
		return nil
	}
	id, ok := firstWindowID(string(out))
	if !ok {
		return nil
	}
	return exec.Command("import", "-window", id, "png:"+tmpFile)
}

func fullScreenCommand(tmpFile string) *exec.Cmd {
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		return exec.Command("gnome-screenshot", "-f", tmpFile)
	}
	if _, err := exec.LookPath("scrot"); err == nil {
		return exec.Command("scrot", "-o", tmpFile)
	}
	return nil
}

func (l *linuxBackend) cleanup() {}

// New creates a capturer for the window of the named application.
func New(appName string) Capturer {
	tmpDir := makeTempDir()
	return newBase(&linuxBackend{appName: appName, tempDir: tmpDir}, tmpDir)
}
