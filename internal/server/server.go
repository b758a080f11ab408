// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/metrics"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/orchestrator/feed"
	"github.com/explab/explab/internal/resilience"
	"github.com/explab/explab/internal/trace"
)

// Controller is the tracker surface the server drives.
type Controller interface {
	Start(ctx context.Context, kind checkpoint.Kind) (string, error)
	Stop(ctx context.Context, kind checkpoint.Kind) error
	Reset(ctx context.Context, kind checkpoint.Kind) error
	Status() []orchestrator.KindStatus
	KindStatus(kind checkpoint.Kind) (orchestrator.KindStatus, error)
	Chart() analyzer.ChartSeries
	Recent(kind checkpoint.Kind, d time.Duration) []feed.Event
	Events() <-chan feed.Event
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl    Controller
	breaker *resilience.Breaker
	mu      sync.RWMutex
	conns   map[*websocket.Conn]*client
}

// New creates a server and starts broadcasting ctrl's events. breaker may be
// nil.
func New(ctrl Controller, breaker *resilience.Breaker) *Server {
	s := &Server{
		ctrl:    ctrl,
		breaker: breaker,
		conns:   make(map[*websocket.Conn]*client),
	}
	go s.broadcastResults()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/exp/chart", s.handleChart)
	mux.HandleFunc("GET /api/{kind}/status", s.handleKindStatus)
	mux.HandleFunc("GET /api/{kind}/history", s.handleHistory)
	mux.HandleFunc("POST /api/{kind}/{action}", s.handleAction)
	mux.Handle("GET /metrics", metrics.Handler(s.snapshot))

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) snapshot() metrics.Snapshot {
	return metrics.Snapshot{Trackers: s.ctrl.Status(), Breaker: s.breaker}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsCode(err, apperrors.CodeInvalidArgument):
		status = http.StatusBadRequest
	case apperrors.IsCode(err, apperrors.CodeNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, ErrorMessage{Type: "error", Message: err.Error()})
}

func parseKind(s string) (checkpoint.Kind, error) {
	kind, ok := checkpoint.ParseKind(s)
	if !ok {
		return 0, apperrors.Newf(apperrors.CodeNotFound, "unknown resource %q", s)
	}
	return kind, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Trackers: []TrackerStatus{}}
	for _, st := range s.ctrl.Status() {
		resp.Trackers = append(resp.Trackers, trackerStatus(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKindStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.ctrl.KindStatus(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackerStatus(st))
}

// handleHistory returns the results of one kind published within the last
// ?minutes= (default HistoryDefaultWindow).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	window := HistoryDefaultWindow
	if v := r.URL.Query().Get("minutes"); v != "" {
		minutes, err := strconv.ParseFloat(v, 64)
		if err != nil || minutes <= 0 {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid minutes %q", v))
			return
		}
		window = time.Duration(minutes * float64(time.Minute))
	}

	resp := HistoryResponse{Kind: kind.String(), Results: []ResultMessage{}}
	for _, ev := range s.ctrl.Recent(kind, window) {
		if msg := resultMessage(ev); msg != nil {
			resp.Results = append(resp.Results, *msg)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Chart())
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	ack, err := s.control(r.Context(), r.PathValue("action"), r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// control applies one start, stop, reset or status action.
func (s *Server) control(ctx context.Context, action, kindName string) (AckMessage, error) {
	kind, err := parseKind(kindName)
	if err != nil {
		return AckMessage{}, err
	}

	switch action {
	case "start":
		_, err = s.ctrl.Start(ctx, kind)
	case "stop":
		err = s.ctrl.Stop(ctx, kind)
	case "reset":
		err = s.ctrl.Reset(ctx, kind)
	case "status":
	default:
		return AckMessage{}, apperrors.Newf(apperrors.CodeNotFound, "unknown action %q", action)
	}
	if err != nil {
		return AckMessage{}, err
	}

	st, err := s.ctrl.KindStatus(kind)
	if err != nil {
		return AckMessage{}, err
	}
	return AckMessage{
		Type:    "ack",
		Action:  action,
		Kind:    kind.String(),
		Session: st.Session,
		Running: st.Running,
	}, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Get trace context from HTTP upgrade request
	baseCtx := r.Context()
	log := trace.Logger(baseCtx)

	writeCtx, stopWriter := context.WithCancel(baseCtx)
	c := &client{conn: conn, send: make(chan *ResultMessage, SendQueueSize)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeResults(writeCtx)
	}()

	s.mu.Lock()
	s.conns[conn] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		stopWriter()
		<-done
	}()

	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var ctl ControlMessage
		if err := json.Unmarshal(msg, &ctl); err != nil {
			continue
		}

		// Extract trace_id from message or keep the upgrade request's
		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		}

		ack, err := s.control(ctx, ctl.Type, ctl.Kind)
		if err != nil {
			trace.Logger(ctx).Debug("control message rejected", "type", ctl.Type, "kind", ctl.Kind, "error", err)
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: err.Error()})
			continue
		}
		_ = wsjson.Write(ctx, conn, ack)
	}
}

func (s *Server) broadcastResults() {
	for ev := range s.ctrl.Events() {
		msg := resultMessage(ev)
		if msg == nil {
			continue
		}

		s.mu.RLock()
		for _, c := range s.conns {
			select {
			case c.send <- msg:
			default:
				slog.Warn("dropping result for slow websocket client", "kind", msg.Kind, "session", msg.Session)
			}
		}
		s.mu.RUnlock()
	}
}

// client is one WebSocket connection. Results go through send and are written
// by a single goroutine, so each connection sees them in publish order.
type client struct {
	conn    *websocket.Conn
	limiter rateLimiter
	send    chan *ResultMessage
}

func (c *client) writeResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, BroadcastWriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket result write error", "error", err)
				return
			}
		}
	}
}
