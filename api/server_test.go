package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/session"
)

// mockController records executed lines and returns scripted errors.
type mockController struct {
	mu     sync.Mutex
	status session.Status
	lines  []string
	err    error
}

func (m *mockController) Status() session.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) Execute(ctx context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	return m.err
}

func (m *mockController) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl := &mockController{status: session.Status{
		State:  event.Connected,
		Peer:   "00:14:03:05:F1:97",
		Device: "HC-05",
		Telemetry: protocol.Telemetry{
			Engine:  true,
			Battery: "12.6",
			Updated: updated,
		},
	}}
	h := NewHandler(ctrl, nil, nil)

	w := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp.State)
	assert.Equal(t, "HC-05", resp.Device)
	assert.True(t, resp.Telemetry.Engine)
	assert.False(t, resp.Telemetry.Ignition)
	assert.Equal(t, "12.6", resp.Telemetry.Battery)
	require.NotNil(t, resp.Telemetry.Updated)
	assert.True(t, updated.Equal(*resp.Telemetry.Updated))
}

func TestGetStatusIdleOmitsEmpty(t *testing.T) {
	h := NewHandler(&mockController{}, nil, nil)
	w := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "updated")
	assert.NotContains(t, w.Body.String(), "device")
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestPostCommand(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		ctrlErr  error
		wantCode int
		wantLine string
	}{
		{"phrase", `{"command":"engine on"}`, nil, http.StatusAccepted, "engine on"},
		{"raw verb", `{"command":"IgnitionOFF"}`, nil, http.StatusAccepted, "IgnitionOFF"},
		{"starter default", `{"command":"starter"}`, nil, http.StatusAccepted, "starter"},
		{"not connected", `{"command":"battery"}`, session.ErrNotConnected, http.StatusConflict, "battery"},
		{"closed", `{"command":"battery"}`, session.ErrClosed, http.StatusServiceUnavailable, "battery"},
		{"internal", `{"command":"battery"}`, fmt.Errorf("boom"), http.StatusInternalServerError, "battery"},
		{"unknown", `{"command":"open trunk"}`, nil, http.StatusBadRequest, ""},
		{"console verb", `{"command":"quit"}`, nil, http.StatusBadRequest, ""},
		{"starter range", `{"command":"starter 12"}`, nil, http.StatusBadRequest, ""},
		{"empty", `{"command":"  "}`, nil, http.StatusBadRequest, ""},
		{"bad json", `{"command":`, nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{err: tt.ctrlErr}
			w := do(t, NewHandler(ctrl, nil, nil), http.MethodPost, "/commands", tt.body)

			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantLine == "" {
				assert.Empty(t, ctrl.executed())
			} else {
				assert.Equal(t, []string{tt.wantLine}, ctrl.executed())
			}
			if w.Code >= 400 {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestPostConnect(t *testing.T) {
	ctrl := &mockController{}
	h := NewHandler(ctrl, nil, nil)

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/connect", `{"peer":"AA:BB:CC:DD:EE:FF"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/connect", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/connect", `{"peer":"a b"}`).Code)
	assert.Equal(t, []string{"connect AA:BB:CC:DD:EE:FF", "connect"}, ctrl.executed())

	ctrl.err = session.ErrNoPeer
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/connect", "").Code)
}

func TestPostDisconnect(t *testing.T) {
	ctrl := &mockController{}
	w := do(t, NewHandler(ctrl, nil, nil), http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"disconnect"}, ctrl.executed())
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(&mockController{}, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/commands", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "carremote_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewHandler(&mockController{}, reg, nil)

	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "carremote_test_total 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, NewHandler(&mockController{}, nil, nil), nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
