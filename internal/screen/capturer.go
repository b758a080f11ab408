// Package screen captures the game's application window with per-platform
// backends.
package screen

import (
	"crypto/md5"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Capturer captures frames of one application window with change detection.
type Capturer interface {
	// Capture returns the frame and whether it differs from the last one.
	Capture() ([]byte, bool)
	// CaptureAlways returns the frame regardless of change detection.
	CaptureAlways() []byte
	Close()
}

// backend implements platform-specific raw capture
type backend interface {
	captureRaw() []byte
	cleanup()
}

// baseCapturer provides shared hash-based change detection
type baseCapturer struct {
	backend
	lastHash [16]byte
	tempDir  string
}

func newBase(b backend, tempDir string) *baseCapturer {
	return &baseCapturer{backend: b, tempDir: tempDir}
}

// Capture hashes the whole frame: the status bar sits at the bottom, so a
// prefix hash would miss every change that matters.
func (c *baseCapturer) Capture() ([]byte, bool) {
	data := c.captureRaw()
	if data == nil {
		return nil, false
	}
	hash := md5.Sum(data)
	if hash == c.lastHash {
		return data, false
	}
	c.lastHash = hash
	return data, true
}

func (c *baseCapturer) CaptureAlways() []byte {
	data := c.captureRaw()
	if data != nil {
		c.lastHash = md5.Sum(data)
	}
	return data
}

func (c *baseCapturer) Close() {
	c.cleanup()
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

func makeTempDir() string {
	dir, err := os.MkdirTemp("", "explab-screen-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		return os.TempDir()
	}
	return dir
}

// parseBounds parses "x, y, w, h" as printed by osascript for a window's
// {position, size}.
func parseBounds(s string) (image.Rectangle, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("unexpected window bounds %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("window bounds %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("empty window bounds %q", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// firstWindowID returns the first window id in xdotool search output.
func firstWindowID(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := strconv.ParseUint(line, 10, 64); err == nil {
			return line, true
		}
	}
	return "", false
}
