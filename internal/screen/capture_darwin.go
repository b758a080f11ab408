//go:build darwin

package screen

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

type darwinBackend struct {
	appName string
	tempDir string
}

const boundsScript = `tell application "System Events" to tell (first process whose name is %q) to get {position, size} of window 1`

func (d *darwinBackend) captureRaw() []byte {
	out, err := exec.Command("osascript", "-e", fmt.Sprintf(boundsScript, d.appName)).Output()
	if err != nil {
		slog.Error("window lookup failed", "app", d.appName, "error", err)
		return nil
	}
	rect, err := parseBounds(string(out))
	if err != nil {
		slog.Error("window lookup failed", "app", d.appName, "error", err)
		return nil
	}

	tmpFile := filepath.Join(d.tempDir, "frame.png")
	region := fmt.Sprintf("%d,%d,%d,%d", rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
	cmd := exec.Command("screencapture", "-x", "-t", "png", "-R", region, tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("screencapture failed", "error", err, "stderr", stderr.String())
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

func (d *darwinBackend) cleanup() {}

// New creates a capturer for the window of the named application.
func New(appName string) Capturer {
	tmpDir := makeTempDir()
	return newBase(&darwinBackend{appName: appName, tempDir: tmpDir}, tmpDir)
}
