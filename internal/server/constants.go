// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection control message limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Result history window when the request names none
	HistoryDefaultWindow = 10 * time.Minute

	// Deadline for delivering one broadcast to one connection
	BroadcastWriteTimeout = 2 * time.Second

	// Results buffered per connection before new ones are dropped
	SendQueueSize = 64
)
