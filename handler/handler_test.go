package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/squadscrape/squadpanel/config"
	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"github.com/squadscrape/squadpanel/internal/execution/validation"
	"github.com/squadscrape/squadpanel/internal/logsink"
	"github.com/squadscrape/squadpanel/internal/server"
)

// --- Mock supervisor ---
type MockSupervisor struct {
	mock.Mock
}

var _ supervisor.Supervisor = (*MockSupervisor)(nil)

func (m *MockSupervisor) Start(slot supervisor.SlotID, params supervisor.StartParams) (*supervisor.Run, error) {
	args := m.Called(slot, params)
	run, _ := args.Get(0).(*supervisor.Run)
	return run, args.Error(1)
}

func (m *MockSupervisor) Cancel(slot supervisor.SlotID) error {
	return m.Called(slot).Error(0)
}

func (m *MockSupervisor) State(slot supervisor.SlotID) supervisor.State {
	return m.Called(slot).Get(0).(supervisor.State)
}

func (m *MockSupervisor) Status() []supervisor.SlotStatus {
	return m.Called().Get(0).([]supervisor.SlotStatus)
}

func (m *MockSupervisor) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Tests ---
func TestSlotHandler_Start_Accepted(t *testing.T) {
	script := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho done\n"), 0o755))

	sup := supervisor.New(supervisor.Params{
		Config: supervisor.Config{SourceURL: "https://source.example"},
		Log:    zap.NewNop(),
	})

	mux := newMux(t, sup, config.Config{})

	body, err := json.Marshal(map[string]string{
		"url":    "https://source.example/team/5/chelsea",
		"output": "/tmp/out",
		"worker": script,
	})
	require.NoError(t, err)

	res := do(mux, http.MethodPost, "/slots/1/start", string(body), nil)

	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var resp startResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "https://source.example/team/5/chelsea/", resp.URL)

	require.Eventually(t, func() bool {
		return sup.State(supervisor.Slot1) == supervisor.Idle
	}, time.Second, 5*time.Millisecond)
}

func TestSlotHandler_Start_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{"unknown slot", "/slots/3/start", `{"url":"u","output":"o"}`, nil, http.StatusNotFound},
		{"schema violation", "/slots/1/start", `{"url":"u"}`, nil, http.StatusBadRequest},
		{"malformed body", "/slots/1/start", `{`, nil, http.StatusBadRequest},
		{"validation", "/slots/1/start", `{"url":"u","output":"o"}`, &validation.Error{Field: "url", Reason: "bad"}, http.StatusBadRequest},
		{"worker not found", "/slots/1/start", `{"url":"u","output":"o"}`, supervisor.ErrWorkerNotFound, http.StatusUnprocessableEntity},
		{"already running", "/slots/2/start", `{"url":"u","output":"o"}`, supervisor.ErrAlreadyRunning, http.StatusConflict},
		{"shut down", "/slots/1/start", `{"url":"u","output":"o"}`, supervisor.ErrShutdown, http.StatusServiceUnavailable},
		{"internal", "/slots/1/start", `{"url":"u","output":"o"}`, assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := new(MockSupervisor)
			if tt.err != nil {
				sup.On("Start", mock.Anything, supervisor.StartParams{URL: "u", Output: "o"}).Return(nil, tt.err)
			}

			res := do(newMux(t, sup, config.Config{}), http.MethodPost, tt.path, tt.body, nil)

			assert.Equal(t, tt.status, res.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)

			if tt.err == nil {
				sup.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
			} else {
				sup.AssertExpectations(t)
			}
		})
	}
}

func TestSlotHandler_Cancel(t *testing.T) {
	sup := new(MockSupervisor)
	sup.On("Cancel", supervisor.Slot1).Return(nil)
	sup.On("Cancel", supervisor.Slot2).Return(supervisor.ErrNothingToCancel)

	mux := newMux(t, sup, config.Config{})

	assert.Equal(t, http.StatusAccepted, do(mux, http.MethodPost, "/slots/1/cancel", "", nil).Code)
	assert.Equal(t, http.StatusConflict, do(mux, http.MethodPost, "/slots/2/cancel", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodPost, "/slots/x/cancel", "", nil).Code)

	sup.AssertExpectations(t)
}

func TestSlotHandler_List(t *testing.T) {
	sup := new(MockSupervisor)
	sup.On("Status").Return([]supervisor.SlotStatus{
		{Slot: supervisor.Slot1, State: supervisor.Running, RunID: "abc", Pid: 42},
		{Slot: supervisor.Slot2, State: supervisor.Idle},
	})

	res := do(newMux(t, sup, config.Config{}), http.MethodGet, "/slots", "", nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[
		{"slot":1,"state":"running","run_id":"abc","pid":42},
		{"slot":2,"state":"idle"}
	]`, res.Body.String())
}

func TestSlotHandler_Unauthorized(t *testing.T) {
	sup := new(MockSupervisor)
	sup.On("Status").Return([]supervisor.SlotStatus{})

	mux := newMux(t, sup, config.Config{Auth: config.AuthConfig{Key: "secret"}})

	res := do(mux, http.MethodPost, "/slots/1/start", `{"url":"u","output":"o"}`, http.Header{"api-key": {"wrong-key"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "unauthorized")

	res = do(mux, http.MethodPost, "/slots/1/cancel", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(mux, http.MethodGet, "/slots", "", http.Header{"api-key": {"secret"}})
	assert.Equal(t, http.StatusOK, res.Code)

	// Ensure the supervisor was not called
	sup.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	sup.AssertNotCalled(t, "Cancel", mock.Anything)
}

func TestHealthHandler(t *testing.T) {
	res := do(newMux(t, new(MockSupervisor), config.Config{}), http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestEventsHandler_StreamsEvents(t *testing.T) {
	sink := logsink.New(logsink.Params{})
	defer sink.Close()

	h := NewEventsHandler(EventsHandlerParams{Sink: sink, Log: zap.NewNop()})

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return sink.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	sink.OnLogLine(supervisor.Line{Slot: supervisor.Slot2, RunID: "run", Text: "line1", Time: time.Now()})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt logsink.Event
	require.NoError(t, json.NewDecoder(bytes.NewReader(msg)).Decode(&evt))

	assert.Equal(t, logsink.EventLog, evt.Type)
	assert.Equal(t, supervisor.Slot2, evt.Slot)
	assert.Equal(t, "run", evt.RunID)
	assert.Equal(t, "line1", evt.Text)
	assert.Equal(t, uint64(1), evt.Seq)

	// closing the connection ends the subscription
	conn.Close()

	require.Eventually(t, func() bool {
		return sink.Subscribers() == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestEventsHandler_RejectsForeignOrigin(t *testing.T) {
	sink := logsink.New(logsink.Params{})

	h := NewEventsHandler(EventsHandlerParams{
		Sink: sink,
		Http: server.HttpConfig{
			Cors: server.CorsConfig{AllowedOrigins: []string{"http://panel.local"}},
		},
		Log: zap.NewNop(),
	})

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, res, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.local"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://panel.local"}})
	require.NoError(t, err)
	conn.Close()
}

// MARK: - Helpers

func newMux(t *testing.T, sup supervisor.Supervisor, cfg config.Config) *http.ServeMux {
	t.Helper()

	h, err := NewSlotHandler(SlotHandlerParams{Supervisor: sup, Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)

	mux := http.NewServeMux()
	for _, route := range []server.HttpHandlerResult{
		NewListRoute(h),
		NewStartRoute(h),
		NewCancelRoute(h),
		NewHealthRoute(),
	} {
		mux.Handle(route.Handler.Name, route.Handler.Handler)
	}

	return mux
}

func do(h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}
