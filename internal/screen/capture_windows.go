//go:build windows

package screen

import "log/slog"

type windowsBackend struct{ appName string }

func (w *windowsBackend) captureRaw() []byte {
	// TODO: Implement using PrintWindow on the process's top-level window
	slog.Warn("Windows screen capture not yet implemented", "app", w.appName)
	return nil
}

func (w *windowsBackend) cleanup() {}

// New creates a capturer for the window of the named executable.
func New(appName string) Capturer {
	return newBase(&windowsBackend{appName: appName}, "")
}
