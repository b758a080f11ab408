package grpcclient

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/resilience"
	"github.com/explab/explab/internal/trace"
)

// Config holds connection and fault tolerance settings.
type Config struct {
	Addr                string
	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	HealthCheckInterval time.Duration
	CallTimeout         time.Duration
	Breaker             resilience.Config
	Retry               resilience.RetryConfig
}

// DefaultConfig returns settings for the OCR service at addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:                addr,
		KeepaliveTime:       DefaultKeepaliveTime,
		KeepaliveTimeout:    DefaultKeepaliveTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		CallTimeout:         DefaultCallTimeout,
		Breaker:             resilience.OCRConfig(),
		Retry:               resilience.OCRRetryConfig(),
	}
}

// Client is an ocr.Engine backed by the remote OCR service.
type Client struct {
	cfg     Config
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	healthy atomic.Bool
}

// New creates a client. The connection is established lazily by gRPC; extra
// dial options are appended after the defaults.
func New(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(cfg.Addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeOCRInitFailed, "dial %s", cfg.Addr)
	}
	c := &Client{
		cfg:    cfg,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}
	c.breaker = resilience.New(cfg.Breaker).WithHook(c.breakerChanged)
	return c, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the circuit breaker so callers can observe its state.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Recognize sends img to the OCR service and returns the detected text
// fragments. Calls pass through the circuit breaker and are retried on
// transient failures.
func (c *Client) Recognize(ctx context.Context, img image.Image, opts ocr.Options) ([]ocr.TextResult, error) {
	req, err := encodeRequest(img)
	if err != nil {
		return nil, err
	}
	if opts.Allowlist != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AllowlistKey, opts.Allowlist)
	}

	results, err := resilience.ExecuteWithResult(ctx, c.breaker, func() ([]ocr.TextResult, error) {
		var results []ocr.TextResult
		err := resilience.Retry(ctx, c.cfg.Retry, func() error {
			callCtx := ctx
			if c.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
				defer cancel()
			}
			resp := &structpb.ListValue{}
			if err := c.conn.Invoke(callCtx, RecognizeMethod, req, resp); err != nil {
				return apperrors.FromGRPCError(err)
			}
			decoded, err := decodeResults(resp)
			if err != nil {
				return err
			}
			results = decoded
			return nil
		})
		return results, err
	})
	if err != nil {
		trace.Logger(ctx).Debug("ocr call failed", "error", err, "breaker", c.breaker.State())
		if errors.Is(err, resilience.ErrOpen) {
			return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "ocr service unavailable")
		}
		return nil, err
	}
	return results, nil
}

// RecognizeBatch recognizes each image in order. It stops at the first
// failure.
func (c *Client) RecognizeBatch(ctx context.Context, imgs []image.Image, opts ocr.Options) ([][]ocr.TextResult, error) {
	out := make([][]ocr.TextResult, len(imgs))
	for i, img := range imgs {
		res, err := c.Recognize(ctx, img, opts)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeOCRExtractFailed, "batch item %d", i)
		}
		out[i] = res
	}
	return out, nil
}

// Check performs a single health check.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		c.healthy.Store(false)
		return apperrors.FromGRPCError(err)
	}
	ok := resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	c.healthy.Store(ok)
	if !ok {
		return apperrors.Newf(apperrors.CodeUnavailable, "ocr service status %s", resp.GetStatus())
	}
	return nil
}

// An open breaker means the service is failing calls; a breaker that closes
// again has seen enough successes to trust it.
func (c *Client) breakerChanged(tr resilience.Transition) {
	switch tr.To {
	case resilience.Open:
		c.healthy.Store(false)
	case resilience.Closed:
		c.healthy.Store(true)
	}
}

// Healthy reports the outcome of the last health check or breaker transition.
func (c *Client) Healthy() bool { return c.healthy.Load() }

// WatchHealth checks the service every HealthCheckInterval until ctx ends,
// logging transitions.
func (c *Client) WatchHealth(ctx context.Context) {
	interval := c.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	was := c.Healthy()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.Check(ctx)
			if now := c.Healthy(); now != was {
				if now {
					slog.Info("ocr service healthy", "addr", c.cfg.Addr)
				} else {
					slog.Warn("ocr service unhealthy", "addr", c.cfg.Addr, "error", err)
				}
				was = now
			}
		}
	}
}

// Factory returns an ocr.Factory that dials the service and, when checkHealth is
// set, requires one successful health check before the engine is handed out.
func Factory(cfg Config, checkHealth bool, opts ...grpc.DialOption) ocr.Factory {
	return func(ctx context.Context) (ocr.Engine, error) {
		c, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		if checkHealth {
			if err := c.Check(ctx); err != nil {
				c.Close()
				return nil, err
			}
		}
		return c, nil
	}
}
