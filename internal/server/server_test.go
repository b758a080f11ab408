package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/orchestrator/feed"
)

// mockController for testing.
type mockController struct {
	mu       sync.Mutex
	running  map[checkpoint.Kind]bool
	resets   map[checkpoint.Kind]int
	latest   map[checkpoint.Kind]feed.Event
	events   chan feed.Event
	startErr error
	window   time.Duration
}

func newMockController() *mockController {
	return &mockController{
		running: make(map[checkpoint.Kind]bool),
		resets:  make(map[checkpoint.Kind]int),
		latest:  make(map[checkpoint.Kind]feed.Event),
		events:  make(chan feed.Event, 10),
	}
}

func (m *mockController) Start(_ context.Context, kind checkpoint.Kind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	m.running[kind] = true
	return "session-" + kind.String(), nil
}

func (m *mockController) Stop(_ context.Context, kind checkpoint.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[kind] = false
	return nil
}

func (m *mockController) Reset(_ context.Context, kind checkpoint.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[kind]++
	return nil
}

func (m *mockController) KindStatus(kind checkpoint.Kind) (orchestrator.KindStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := orchestrator.KindStatus{
		Kind:    kind,
		Running: m.running[kind],
		Latest:  m.latest[kind],
		Config:  analyzer.DefaultExpConfig(),
	}
	if st.Running {
		st.Session = "session-" + kind.String()
	}
	return st, nil
}

func (m *mockController) Status() []orchestrator.KindStatus {
	var out []orchestrator.KindStatus
	for _, k := range checkpoint.Kinds {
		st, _ := m.KindStatus(k)
		out = append(out, st)
	}
	return out
}

func (m *mockController) Chart() analyzer.ChartSeries {
	return analyzer.ChartSeries{Exp: []int64{1000, 1100}, Predicted: []int64{1000, 1100}, YMin: 980, YMax: 1120}
}

func (m *mockController) Recent(kind checkpoint.Kind, d time.Duration) []feed.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = d
	if ev, ok := m.latest[kind]; ok {
		return []feed.Event{ev, {Kind: kind}}
	}
	return nil
}

func (m *mockController) Events() <-chan feed.Event { return m.events }

func newTestServer(t *testing.T) (*Server, *mockController) {
	t.Helper()
	ctrl := newMockController()
	t.Cleanup(func() { close(ctrl.events) })
	return New(ctrl, nil), ctrl
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test OPTIONS request
	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestActions(t *testing.T) {
	s, ctrl := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantRun    bool
	}{
		{"start exp", "/api/exp/start", http.StatusOK, true},
		{"stop exp", "/api/exp/stop", http.StatusOK, false},
		{"start hp", "/api/hp/start", http.StatusOK, true},
		{"reset mp", "/api/mp/reset", http.StatusOK, false},
		{"unknown kind", "/api/stamina/start", http.StatusNotFound, false},
		{"unknown action", "/api/exp/pause", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, http.NoBody))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var ack AckMessage
			if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
				t.Fatal(err)
			}
			if ack.Type != "ack" || ack.Running != tt.wantRun {
				t.Errorf("ack = %+v", ack)
			}
		})
	}

	if ctrl.resets[checkpoint.KindMP] != 1 {
		t.Errorf("mp resets = %d, want 1", ctrl.resets[checkpoint.KindMP])
	}
}

func TestActionError(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.startErr = apperrors.New(apperrors.CodeInvalidArgument, "bad")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/exp/start", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.running[checkpoint.KindExp] = true
	ctrl.latest[checkpoint.KindExp] = feed.Event{
		Kind: checkpoint.KindExp,
		Exp: &analyzer.ExpResult{
			Status:             analyzer.StatusReady,
			CurrentLevel:       12,
			PerMinute:          0,
			RatioPerMinute:     math.NaN(),
			MinutesToNextLevel: math.Inf(1),
		},
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Trackers) != 3 {
		t.Fatalf("trackers = %d, want 3", len(resp.Trackers))
	}
	exp := resp.Trackers[0]
	if exp.Kind != "exp" || !exp.Running || exp.Latest == nil || exp.Latest.Exp == nil {
		t.Fatalf("exp status = %+v", exp)
	}
	if exp.Latest.Exp.RatioPerMinute != nil || exp.Latest.Exp.MinutesToNextLevel != nil {
		t.Error("NaN and Inf should encode as null")
	}
	if !exp.Latest.Exp.Stalled {
		t.Error("infinite projection should be marked stalled")
	}
	if exp.Latest.Exp.PerMinute == nil || *exp.Latest.Exp.PerMinute != 0 {
		t.Error("zero rate should be present")
	}
	if resp.Trackers[1].Latest != nil {
		t.Error("hp has no result yet")
	}
}

func TestKindStatus(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hp/status", http.NoBody))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"kind":"hp"`) {
		t.Errorf("hp status = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/xp/status", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", rec.Code)
	}
}

func TestChart(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/exp/chart", http.NoBody))

	var series analyzer.ChartSeries
	if err := json.Unmarshal(rec.Body.Bytes(), &series); err != nil {
		t.Fatal(err)
	}
	if len(series.Exp) != 2 || series.YMax != 1120 {
		t.Errorf("chart = %+v", series)
	}
}

func TestMetricsRoute(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.running[checkpoint.KindHP] = true

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if !strings.Contains(rec.Body.String(), `explab_tracker_running{kind="hp"} 1`) {
		t.Errorf("metrics body:\n%s", rec.Body.String())
	}
}

func TestTraceHeaderPropagation(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("x-trace-id", "abc123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("x-trace-id"); got != "abc123" {
		t.Errorf("response trace id = %q, want abc123", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit allowed")
	}
}

func TestWebSocketControlAndBroadcast(t *testing.T) {
	s, ctrl := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: "start", Kind: "exp"}); err != nil {
		t.Fatal(err)
	}
	var ack AckMessage
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Type != "ack" || ack.Action != "start" || !ack.Running || ack.Session != "session-exp" {
		t.Errorf("ack = %+v", ack)
	}

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: "start", Kind: "nope"}); err != nil {
		t.Fatal(err)
	}
	var errMsg ErrorMessage
	if err := wsjson.Read(ctx, conn, &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Type != "error" {
		t.Errorf("message = %+v, want error", errMsg)
	}

	waitForConns(t, s, 1)
	ctrl.events <- feed.Event{
		Kind:    checkpoint.KindHP,
		Session: "session-hp",
		Gauge:   &analyzer.GaugeResult{Status: analyzer.StatusReady, Current: 70, Total: 200, LostPerMinute: 30},
	}

	var result ResultMessage
	if err := wsjson.Read(ctx, conn, &result); err != nil {
		t.Fatal(err)
	}
	if result.Type != "result" || result.Kind != "hp" || result.Gauge == nil || *result.Gauge.LostPerMinute != 30 {
		t.Errorf("result = %+v", result)
	}
}

func waitForConns(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		got := len(s.conns)
		s.mu.RUnlock()
		if got == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketResultsArriveInOrder(t *testing.T) {
	s, ctrl := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForConns(t, s, 1)

	const n = 25
	go func() {
		for i := 1; i <= n; i++ {
			ctrl.events <- feed.Event{
				Kind:    checkpoint.KindMP,
				Session: "session-mp",
				Gauge:   &analyzer.GaugeResult{Status: analyzer.StatusReady, Current: int64(i), Total: 100},
			}
		}
	}()

	for i := 1; i <= n; i++ {
		var result ResultMessage
		if err := wsjson.Read(ctx, conn, &result); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if result.Gauge == nil || result.Gauge.Current != int64(i) {
			t.Fatalf("result %d = %+v, want current %d", i, result.Gauge, i)
		}
	}
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	s, ctrl := newTestServer(t)

	slow := &client{send: make(chan *ResultMessage, 1)}
	fast := &client{send: make(chan *ResultMessage, 8)}
	s.mu.Lock()
	s.conns[&websocket.Conn{}] = slow
	s.conns[&websocket.Conn{}] = fast
	s.mu.Unlock()

	for i := 1; i <= 3; i++ {
		ctrl.events <- feed.Event{
			Kind:  checkpoint.KindHP,
			Gauge: &analyzer.GaugeResult{Status: analyzer.StatusReady, Current: int64(i), Total: 100},
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(fast.send) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("fast queue = %d, want 3", len(fast.send))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(slow.send) != 1 {
		t.Fatalf("slow queue = %d, want 1", len(slow.send))
	}
	if got := <-slow.send; got.Gauge.Current != 1 {
		t.Errorf("queued current = %d, want the first result", got.Gauge.Current)
	}
}

func TestHistory(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.latest[checkpoint.KindHP] = feed.Event{
		Kind:  checkpoint.KindHP,
		Gauge: &analyzer.GaugeResult{Status: analyzer.StatusReady, Current: 5, Total: 10, LostPerMinute: 1},
	}
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hp/history?minutes=2", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Gauge == nil {
		t.Errorf("history = %+v, want the one event carrying a result", resp)
	}
	if ctrl.window != 2*time.Minute {
		t.Errorf("window = %v, want 2m", ctrl.window)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hp/history", http.NoBody))
	if ctrl.window != HistoryDefaultWindow {
		t.Errorf("default window = %v", ctrl.window)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hp/history?minutes=-1", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative minutes status = %d, want 400", rec.Code)
	}
}
