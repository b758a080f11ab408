// Package grpcclient talks to the remote OCR inference service.
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Health check configuration
	DefaultHealthCheckInterval = 5 * time.Second
	HealthCheckTimeout         = 2 * time.Second

	// DefaultCallTimeout bounds a single Recognize attempt.
	DefaultCallTimeout = 3 * time.Second
)

// Wire contract with the OCR service. The request is a BytesValue holding a
// PNG; the response is a ListValue of {text, confidence, box} structs with
// box as [x_min, y_min, x_max, y_max].
const (
	ServiceName     = "explab.ocr.v1.OCRService"
	RecognizeMethod = "/" + ServiceName + "/Recognize"
	AllowlistKey    = "x-ocr-allowlist"
)
