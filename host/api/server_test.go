package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coilstep/core"
	"coilstep/host/sim"
)

// fakeDevice runs commands against an in-memory dispatcher
type fakeDevice struct {
	dispatcher *core.Dispatcher
	err        error
	sent       []core.Command
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{dispatcher: core.NewDispatcher(core.NewMotor(&sim.PhaseRecorder{}))}
}

func (f *fakeDevice) Send(cmd core.Command, value uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, cmd)
	raw := make([]byte, 8)
	raw[1] = uint8(cmd)
	raw[2] = byte(value >> 8)
	raw[3] = byte(value)
	return f.dispatcher.DispatchRaw(raw, nil), nil
}

func (f *fakeDevice) Speed() (uint8, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.dispatcher.Motor().Speed(), nil
}

func (f *fakeDevice) Info() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return core.DataOutMessage, nil
}

func (f *fakeDevice) StepsParam(value uint16) (string, error) {
	reply, err := f.Send(core.CmdStepsParam, value)
	return string(reply), err
}

type fakeStatus struct {
	snap sim.Snapshot
	err  error
}

func (f fakeStatus) Snapshot(ctx context.Context) (sim.Snapshot, error) {
	return f.snap, f.err
}

type closeRecorder struct {
	order *[]string
	name  string
	err   error
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Invalid JSON %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestPostCommand(t *testing.T) {
	dev := newFakeDevice()
	srv := NewServer(dev, nil)

	rec, body := do(t, srv, http.MethodPost, "/motor/rotate_forward")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["command"] != "rotate_forward" || body["code"] != float64(5) {
		t.Errorf("Unexpected body %v", body)
	}
	if dev.dispatcher.Motor().State() != core.StateForward {
		t.Errorf("Expected motor forward, got %s", dev.dispatcher.Motor().State())
	}

	rec, body = do(t, srv, http.MethodPost, "/motor/steps_param?value=42")
	if rec.Code != http.StatusOK || body["reply"] != "00042" {
		t.Errorf("Expected reply 00042, got %d %v", rec.Code, body)
	}
}

func TestPostCommandErrors(t *testing.T) {
	dev := newFakeDevice()
	srv := NewServer(dev, nil)

	testCases := []struct {
		path   string
		status int
	}{
		{"/motor/jump", http.StatusBadRequest},
		{"/motor/steps_param?value=70000", http.StatusBadRequest},
		{"/motor/steps_param?value=abc", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		rec, body := do(t, srv, http.MethodPost, tc.path)
		if rec.Code != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.status, rec.Code)
		}
		if body["error"] == nil {
			t.Errorf("%s: expected an error message, got %v", tc.path, body)
		}
	}
	if len(dev.sent) != 0 {
		t.Errorf("Expected nothing sent, got %v", dev.sent)
	}

	dev.err = errors.New("link down")
	rec, _ := do(t, srv, http.MethodPost, "/motor/stop")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on device error, got %d", rec.Code)
	}
}

func TestQueries(t *testing.T) {
	dev := newFakeDevice()
	dev.dispatcher.Motor().SetSpeed(7)
	srv := NewServer(dev, nil)

	rec, body := do(t, srv, http.MethodGet, "/motor/speed")
	if rec.Code != http.StatusOK || body["speed"] != float64(7) {
		t.Errorf("Expected speed 7, got %d %v", rec.Code, body)
	}

	rec, body = do(t, srv, http.MethodGet, "/info")
	if rec.Code != http.StatusOK || body["message"] != core.DataOutMessage {
		t.Errorf("Unexpected info %d %v", rec.Code, body)
	}

	rec, body = do(t, srv, http.MethodGet, "/steps/10")
	if rec.Code != http.StatusOK || body["digits"] != "00010" {
		t.Errorf("Expected digits 00010, got %d %v", rec.Code, body)
	}

	rec, _ = do(t, srv, http.MethodGet, "/steps/-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a negative value, got %d", rec.Code)
	}

	rec, _ = do(t, srv, http.MethodGet, "/nowhere")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestListCommands(t *testing.T) {
	srv := NewServer(newFakeDevice(), nil)

	req := httptest.NewRequest(http.MethodGet, "/commands", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out []CommandInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(out) != len(core.AllCommands) {
		t.Fatalf("Expected %d commands, got %d", len(core.AllCommands), len(out))
	}
	if out[0].Name != "stop" || out[len(out)-1].Code != 201 {
		t.Errorf("Unexpected command list %v", out)
	}
}

func TestStatus(t *testing.T) {
	rec, _ := do(t, NewServer(newFakeDevice(), nil), http.MethodGet, "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a simulator, got %d", rec.Code)
	}

	snap := sim.Snapshot{
		Motor: core.MotorSnapshot{State: core.StateForward, Current: 3, Last: 1, Steps: 47, Speed: 20},
		Lines: [core.PhaseCount]bool{false, false, false, true},
		Clock: 1234,
	}
	srv := NewServer(newFakeDevice(), nil, WithStatus(fakeStatus{snap: snap}))

	rec, body := do(t, srv, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["state"] != "forward" || body["steps"] != float64(47) || body["current"] != float64(3) {
		t.Errorf("Unexpected status %v", body)
	}
	lines, _ := body["lines"].([]interface{})
	if len(lines) != core.PhaseCount || lines[3] != true {
		t.Errorf("Unexpected lines %v", body["lines"])
	}

	srv = NewServer(newFakeDevice(), nil, WithStatus(fakeStatus{err: sim.ErrNotRunning}))
	rec, _ = do(t, srv, http.MethodGet, "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the simulator is down, got %d", rec.Code)
	}
}

func TestCloseAggregatesErrors(t *testing.T) {
	srv := NewServer(newFakeDevice(), nil)

	var order []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	srv.AddCloser(closeRecorder{order: &order, name: "a", err: errA})
	srv.AddCloser(closeRecorder{order: &order, name: "b"})
	srv.AddCloser(closeRecorder{order: &order, name: "c", err: errC})

	err := srv.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("Expected both close errors, got %v", err)
	}
	if strings.Join(order, "") != "cba" {
		t.Errorf("Expected newest-first close order, got %v", order)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	srv := NewServer(newFakeDevice(), nil)
	var order []string
	srv.AddCloser(closeRecorder{order: &order, name: "device"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.ListenAndServe(ctx, "127.0.0.1:0"); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if len(order) != 1 {
		t.Errorf("Expected registered closers to run, got %v", order)
	}
}
