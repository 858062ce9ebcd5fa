package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/adapter"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/registry"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/pkg/options"
)

type fixture struct {
	source *transport.Emitter
	ready  bool
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{source: transport.NewEmitter(), ready: true}
	reg := registry.New()
	a := adapter.New(f.source, adapter.WithClock(testingclock.NewFakeClock(time.Now())))
	a.Subscribe(reg.Sink(adapter.ID))
	a.Scan()
	t.Cleanup(a.Close)

	f.srv = NewServer(Config{
		Options:  options.NewHttpOptions(),
		Devices:  reg,
		Adapters: map[string]AdapterStatus{adapter.ID: a},
		Ready:    map[string]func() bool{"transport": func() bool { return f.ready }},
	})
	return f
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	f := newFixture(t)

	if rec := f.get(t, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.get(t, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d while ready", rec.Code)
	}

	f.ready = false
	rec := f.get(t, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d while not ready", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "transport") {
		t.Errorf("/readyz body %q does not name the failing check", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.source.Emit(transport.Connect(transport.StageROM))

	rec := f.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	for _, name := range []string{"bootwatch_snapshots_emitted_total", "bootwatch_transport_events_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("/metrics is missing %s", name)
		}
	}
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/devices")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty device list = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	f.source.Emit(transport.Connect(transport.StageROM))
	f.source.Emit(transport.Progress(42))

	var got device.Snapshot
	if err := json.Unmarshal(f.get(t, "/api/v1/devices").Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Progress != 42 || got[0].Adaptor != adapter.ID {
		t.Errorf("device list = %+v", got)
	}
}

func TestAdapterEndpoints(t *testing.T) {
	f := newFixture(t)
	f.source.Emit(transport.Connect(transport.StageROM))
	f.source.Emit(transport.Progress(10))
	f.source.Emit(transport.Disconnect(transport.StageROM))

	var ids []string
	if err := json.Unmarshal(f.get(t, "/api/v1/adapters").Body.Bytes(), &ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != adapter.ID {
		t.Errorf("adapters = %v", ids)
	}

	var view AdapterView
	if err := json.Unmarshal(f.get(t, "/api/v1/adapters/beagleboot").Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Phase != adapter.PhaseIdle || view.LastDisconnect != "ROM" || len(view.Devices) != 0 {
		t.Errorf("adapter view = %+v", view)
	}

	rec := f.get(t, "/api/v1/adapters/beagleboot/devices")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("adapter devices = %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownAdapter(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/adapters/usbboot", "/api/v1/adapters/usbboot/devices"} {
		rec := f.get(t, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "usbboot") {
			t.Errorf("%s body = %s", path, rec.Body.String())
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/devices"},
		{http.MethodDelete, "/api/v1/adapters"},
		{http.MethodPut, "/api/v1/adapters/beagleboot"},
		{http.MethodPost, "/api/v1/adapters/beagleboot/devices"},
		{http.MethodPost, "/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s = %d, want 405", tt.method, tt.path, rec.Code)
			}
		})
	}
}

func TestStartAndShutdown(t *testing.T) {
	opts := options.NewHttpOptions()
	opts.Addr = "127.0.0.1:0"
	srv := NewServer(Config{Options: opts, Devices: registry.New()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartFailsOnBadAddress(t *testing.T) {
	opts := options.NewHttpOptions()
	opts.Addr = "256.0.0.1:80"
	srv := NewServer(Config{Options: opts, Devices: registry.New()})

	if err := srv.Start(context.Background()); err == nil {
		t.Error("Start() on an unusable address succeeded")
	}
}
