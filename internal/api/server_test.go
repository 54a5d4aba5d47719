package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/camnode/internal/agent"
	"github.com/nerrad567/camnode/internal/events"
	"github.com/nerrad567/camnode/internal/infrastructure/config"
	"github.com/nerrad567/camnode/internal/infrastructure/logging"
)

// fakeAgent answers Submit from a script.
type fakeAgent struct {
	mu    sync.Mutex
	state agent.State
	errs  map[string]error
	cmds  []agent.Command
}

func (f *fakeAgent) Submit(_ context.Context, cmd agent.Command) (agent.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if err := f.errs[cmd.Name()]; err != nil {
		return f.state, err
	}
	if c, ok := cmd.(agent.AssignID); ok {
		f.state.Paired = true
		f.state.SysID = c.ID
	}
	return f.state, nil
}

func (f *fakeAgent) last() agent.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cmds) == 0 {
		return nil
	}
	return f.cmds[len(f.cmds)-1]
}

type fakeBus struct {
	connected bool
	subs      int
}

func (b fakeBus) IsConnected() bool      { return b.connected }
func (b fakeBus) SubscriptionCount() int { return b.subs }

func testServer(t *testing.T, a *fakeAgent, bus BusStatus) *Server {
	t.Helper()
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  logging.Discard(),
		Agent:   a,
		Bus:     bus,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Agent: &fakeAgent{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without agent succeeded")
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		bus        BusStatus
		wantStatus string
	}{
		{"connected", fakeBus{connected: true, subs: 4}, "ok"},
		{"disconnected", fakeBus{}, "degraded"},
		{"no bus", nil, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, testServer(t, &fakeAgent{}, tt.bus), http.MethodGet, "/api/v1/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body map[string]any
			decodeBody(t, rec, &body)
			if body["status"] != tt.wantStatus || body["version"] != "test" {
				t.Errorf("body = %v", body)
			}
			if tt.bus != nil && body["mqtt_subscriptions"] != float64(tt.bus.SubscriptionCount()) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHandleHealth_Components(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, fakeBus{connected: true})
	srv.checks = map[string]HealthChecker{
		"identity_store": checkFunc(func(context.Context) error { return nil }),
		"influxdb":       checkFunc(func(context.Context) error { return errors.New("unreachable") }),
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decodeBody(t, rec, &body)

	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Components["identity_store"] != "ok" || body.Components["influxdb"] != "unreachable" {
		t.Errorf("components = %v", body.Components)
	}
}

func TestHandleMetrics(t *testing.T) {
	rec := do(t, testServer(t, &fakeAgent{}, fakeBus{connected: true, subs: 4}), http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var m SystemMetrics
	decodeBody(t, rec, &m)
	if !m.MQTT.Connected || m.MQTT.Subscriptions != 4 || m.Runtime.Goroutines == 0 || m.Version != "test" {
		t.Errorf("metrics = %+v", m)
	}
}

func TestHandleGetDevice(t *testing.T) {
	a := &fakeAgent{state: agent.State{Paired: true, SysID: "abc", Threshold: 75, Subscriptions: []string{"status"}}}
	rec := do(t, testServer(t, a, nil), http.MethodGet, "/api/v1/device", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st agent.State
	decodeBody(t, rec, &st)
	if st.SysID != "abc" || st.Threshold != 75 {
		t.Errorf("state = %+v", st)
	}
	if _, ok := a.last().(agent.Snapshot); !ok {
		t.Errorf("submitted %T, want Snapshot", a.last())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		errs       map[string]error
		wantStatus int
		wantCmd    agent.Command
	}{
		{"status", "/api/v1/commands/status", nil, http.StatusOK, agent.Status{}},
		{"reset", "/api/v1/commands/reset", nil, http.StatusOK, agent.Reset{}},
		{"delete", "/api/v1/commands/delete", nil, http.StatusOK, agent.Delete{}},
		{"sensor", "/api/v1/commands/sensor", nil, http.StatusOK, agent.SensorTest{}},
		{"upper case", "/api/v1/commands/STATUS", nil, http.StatusOK, agent.Status{}},
		{"unknown", "/api/v1/commands/install", nil, http.StatusNotFound, nil},
		{"not paired", "/api/v1/commands/status", map[string]error{"status": agent.ErrNotPaired}, http.StatusConflict, agent.Status{}},
		{"stopped", "/api/v1/commands/reset", map[string]error{"reset": agent.ErrStopped}, http.StatusServiceUnavailable, agent.Reset{}},
		{"bus failure", "/api/v1/commands/sensor", map[string]error{"sensor_test": errors.New("publish failed")}, http.StatusInternalServerError, agent.SensorTest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAgent{errs: tt.errs}
			rec := do(t, testServer(t, a, nil), http.MethodPost, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if a.last() != tt.wantCmd {
				t.Errorf("submitted %#v, want %#v", a.last(), tt.wantCmd)
			}
			if rec.Code >= 400 {
				var e Error
				decodeBody(t, rec, &e)
				if e.Status != tt.wantStatus || e.Code == "" {
					t.Errorf("error body = %+v", e)
				}
			}
		})
	}
}

func TestHandleSetIdentity(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantID     string
	}{
		{"valid", `{"sys_id":"manual-1"}`, http.StatusOK, "manual-1"},
		{"trimmed", `{"sys_id":"  abc "}`, http.StatusOK, "abc"},
		{"missing", `{}`, http.StatusBadRequest, ""},
		{"blank", `{"sys_id":"  "}`, http.StatusBadRequest, ""},
		{"bad json", `{"sys_id":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAgent{}
			rec := do(t, testServer(t, a, nil), http.MethodPut, "/api/v1/identity", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantID == "" {
				if a.last() != nil {
					t.Errorf("submitted %#v for rejected body", a.last())
				}
				return
			}
			var resp CommandResponse
			decodeBody(t, rec, &resp)
			if resp.Command != "assign_id" || resp.State.SysID != tt.wantID {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestHandleSample(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		errs       map[string]error
		wantStatus int
	}{
		{"valid", `{"distance":70}`, nil, http.StatusOK},
		{"zero", `{"distance":0}`, nil, http.StatusOK},
		{"missing", `{}`, nil, http.StatusBadRequest},
		{"string", `{"distance":"near"}`, nil, http.StatusBadRequest},
		{"invalid", `{"distance":-1}`, map[string]error{"sample": agent.ErrInvalidDistance}, http.StatusBadRequest},
		{"no threshold", `{"distance":5}`, map[string]error{"sample": agent.ErrNoThreshold}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAgent{errs: tt.errs}
			rec := do(t, testServer(t, a, nil), http.MethodPost, "/api/v1/samples", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandleSetIdentity_InvalidIdentifier(t *testing.T) {
	a := &fakeAgent{errs: map[string]error{"assign_id": agent.ErrInvalidIdentifier}}
	rec := do(t, testServer(t, a, nil), http.MethodPut, "/api/v1/identity", `{"sys_id":"a/b"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestBodySizeLimit(t *testing.T) {
	a := &fakeAgent{}
	body := `{"sys_id":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := do(t, testServer(t, a, nil), http.MethodPut, "/api/v1/identity", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if a.last() != nil {
		t.Error("oversized body reached the agent")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Event stream
// =============================================================================

func dialEvents(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestEvents_StreamsAll(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	conn := dialEvents(t, srv)

	srv.Hub().Emit(events.Event{Kind: events.KindProximity, SysID: "abc", Status: "person_detected", Distance: 70})

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != "proximity" {
		t.Fatalf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["sys_id"] != "abc" || payload["distance"] != float64(70) {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestEvents_Subscribe(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	conn := dialEvents(t, srv)

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"capture"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := readMessage(t, conn); ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	srv.Hub().Emit(events.Event{Kind: events.KindProximity, SysID: "abc"})
	srv.Hub().Emit(events.Event{Kind: events.KindCapture, SysID: "abc", Success: true})

	if msg := readMessage(t, conn); msg.EventType != "capture" {
		t.Errorf("received %q, want only capture events", msg.EventType)
	}
}

func TestEvents_Ping(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)
	conn := dialEvents(t, srv)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "p" {
		t.Errorf("reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply = %+v, want error", msg)
	}
}
