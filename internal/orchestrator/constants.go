// Package orchestrator drives capture, recognition and analysis for each
// tracked resource.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Result feed configuration
	FeedMaxEntries  = 600
	FeedEventBuffer = 100

	// Minimum tick interval; shorter configured intervals are raised to it.
	MinTickInterval = 100 * time.Millisecond
)
