package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"piclyde/internal/gpio"
	"piclyde/internal/stepper"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*stepper.Controller, *gpio.Sim, http.Handler) {
	t.Helper()
	cfg := stepper.Config{
		EnableActiveLow: true,
		Actuators: []stepper.ActuatorConfig{
			{Pins: stepper.Pins{Step: 27, Direction: 21, Enable: 4}},
			{Pins: stepper.Pins{Step: 26, Direction: 23, Enable: 13}},
		},
	}
	sim := gpio.NewSim(cfg.Pins())
	ctl, err := stepper.New(sim, cfg)
	require.NoError(t, err)
	t.Cleanup(ctl.Shutdown)

	reg := prometheus.NewRegistry()
	stepper.InitMetrics(reg)
	logs := NewLogBuffer(10)
	_, _ = logs.Write([]byte("hello\n"))
	return ctl, sim, Handler(ctl, Options{Logs: logs, Gatherer: reg})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeSnap(t *testing.T, w *httptest.ResponseRecorder) stepper.Snapshot {
	t.Helper()
	var snap stepper.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestAPI_ListActuators(t *testing.T) {
	_, _, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/actuators", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snaps []stepper.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	require.Equal(t, 26, snaps[1].StepPin)
	require.Equal(t, stepper.DefaultSpeed, snaps[0].Speed)
}

func TestAPI_StartStop(t *testing.T) {
	_, sim, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/actuators/1/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decodeSnap(t, w).Running)
	require.False(t, sim.Level(13))

	w = do(t, h, http.MethodPost, "/api/actuators/1/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decodeSnap(t, w).Running)
	require.True(t, sim.Level(13))
}

func TestAPI_StopAll(t *testing.T) {
	ctl, _, h := newTestServer(t)
	require.NoError(t, ctl.Start(0))
	require.NoError(t, ctl.Start(1))

	w := do(t, h, http.MethodPost, "/api/actuators/stop-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, s := range ctl.Snapshot() {
		require.False(t, s.Running)
	}
}

func TestAPI_Speed(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodPut, "/api/actuators/0/speed", `{"speed": 42}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 42, decodeSnap(t, w).Speed)

	for _, body := range []string{`{"speed": 0}`, `{"speed": 256}`, `{}`, `nope`} {
		w = do(t, h, http.MethodPut, "/api/actuators/0/speed", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}

	w = do(t, h, http.MethodGet, "/api/actuators/0", "")
	require.Equal(t, 42, decodeSnap(t, w).Speed)
}

func TestAPI_Direction(t *testing.T) {
	_, _, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/actuators/0/direction", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decodeSnap(t, w).Forward)
}

func TestAPI_InvalidIndex(t *testing.T) {
	_, _, h := newTestServer(t)
	for _, path := range []string{"/api/actuators/7", "/api/actuators/x", "/api/actuators/-1"} {
		w := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := do(t, h, http.MethodPost, "/api/actuators/9/start", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "invalid actuator index")
}

func TestAPI_AfterShutdown(t *testing.T) {
	ctl, _, h := newTestServer(t)
	ctl.Shutdown()
	w := do(t, h, http.MethodPost, "/api/actuators/0/start", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type failingController struct{ Controller }

func (failingController) Start(int) error { return errors.New("stepper: boom") }
func (failingController) Snapshot() []stepper.Snapshot {
	return nil
}

func TestAPI_UnexpectedErrorIs500(t *testing.T) {
	h := Handler(failingController{}, Options{})
	w := do(t, h, http.MethodPost, "/api/actuators/0/start", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "boom")

	// No gatherer, no logs buffer.
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/logs", "").Code)
}

func TestAPI_HealthLogsMetrics(t *testing.T) {
	ctl, _, h := newTestServer(t)
	require.NoError(t, ctl.SetSpeed(0, 12))

	w := do(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"actuators":2`)

	w = do(t, h, http.MethodGet, "/api/logs?format=text", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello\n", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/logs?tail=0", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `piclyde_stepper_speed{actuator="0"} 12`)
}

func TestAPI_CORS(t *testing.T) {
	_, _, h := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/api/actuators", nil)
	r.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
