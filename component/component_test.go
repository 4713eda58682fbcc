package component

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kbukum/meshflow/logger"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	health   Health
	events   *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	if f.events != nil {
		*f.events = append(*f.events, "start "+f.name)
	}
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	if f.events != nil {
		*f.events = append(*f.events, "stop "+f.name)
	}
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) Health { return f.health }

type describedComponent struct{ fakeComponent }

func (d *describedComponent) Describe() Description {
	return Description{Type: "worker", Details: "127.0.0.1:7400", Port: 7400}
}

type routedComponent struct{ fakeComponent }

func (r *routedComponent) Routes() []Route {
	return []Route{{Method: "POST", Path: "/v1/fetch", Handler: "fetch"}, {Method: "GET", Path: "/health", Handler: "health"}}
}

func newRegistry() *Registry { return NewRegistry(logger.Nop()) }

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := newRegistry()
	if err := r.Register(&fakeComponent{name: "worker"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&fakeComponent{name: "worker"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if r.Get("worker") == nil || r.Get("missing") != nil {
		t.Error("unexpected lookup result")
	}
}

func TestRegistry_StartStopOrder(t *testing.T) {
	r := newRegistry()
	var events []string
	for _, name := range []string{"telemetry", "resource", "worker"} {
		_ = r.Register(&fakeComponent{name: name, events: &events})
	}
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"start telemetry", "start resource", "start worker",
		"stop worker", "stop resource", "stop telemetry",
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, events)
	}
}

func TestRegistry_StartFailureLeavesRestUnstarted(t *testing.T) {
	r := newRegistry()
	var events []string
	_ = r.Register(&fakeComponent{name: "a", events: &events})
	_ = r.Register(&fakeComponent{name: "b", events: &events, startErr: fmt.Errorf("port in use")})
	_ = r.Register(&fakeComponent{name: "c", events: &events})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"start a", "start b", "stop a"}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, events)
	}
}

func TestRegistry_StopErrorsJoined(t *testing.T) {
	r := newRegistry()
	_ = r.Register(&fakeComponent{name: "a", stopErr: fmt.Errorf("a failed")})
	_ = r.Register(&fakeComponent{name: "b", stopErr: fmt.Errorf("b failed")})
	_ = r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"a failed", "b failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestRegistry_HealthAndDescribe(t *testing.T) {
	r := newRegistry()
	_ = r.Register(&fakeComponent{name: "resource", health: Health{Name: "resource", Status: StatusHealthy}})
	_ = r.Register(&describedComponent{fakeComponent{name: "worker", health: Health{Name: "worker", Status: StatusDegraded}}})

	health := r.HealthAll(context.Background())
	if len(health) != 2 || health[1].Status != StatusDegraded {
		t.Errorf("unexpected health %v", health)
	}
	desc := r.Describe()
	if len(desc) != 1 || desc[0].Name != "worker" || desc[0].Port != 7400 {
		t.Errorf("unexpected descriptions %v", desc)
	}
}

func TestLazy_InitializesOnce(t *testing.T) {
	count := 0
	l := NewLazy("resource", func(context.Context) error {
		count++
		return nil
	})
	if l.Health(context.Background()).Status != StatusUnhealthy {
		t.Error("expected unhealthy before start")
	}
	_ = l.Start(context.Background())
	_ = l.Initialize(context.Background())
	if count != 1 || !l.IsInitialized() {
		t.Errorf("expected one initialization, got %d", count)
	}
}

func TestLazy_RetriesFailedInitialization(t *testing.T) {
	fail := true
	l := NewLazy("resource", func(context.Context) error {
		if fail {
			return fmt.Errorf("no config")
		}
		return nil
	})
	if err := l.Initialize(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h := l.Health(context.Background()); h.Message != "no config" {
		t.Errorf("expected last error in health, got %q", h.Message)
	}
	fail = false
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestLazy_HealthCheckAndClose(t *testing.T) {
	closed := false
	l := NewLazy("resource", func(context.Context) error { return nil }).
		WithHealthCheck(func(context.Context) error { return fmt.Errorf("over limit") }).
		WithCloser(func() error {
			closed = true
			return nil
		})
	_ = l.Start(context.Background())
	if h := l.Health(context.Background()); h.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", h.Status)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !closed || l.IsInitialized() {
		t.Error("expected closer to run and component to reset")
	}
}

func TestRegistry_Routes(t *testing.T) {
	r := newRegistry()
	_ = r.Register(&fakeComponent{name: "resource"})
	_ = r.Register(&routedComponent{fakeComponent{name: "worker"}})

	routes := r.Routes()
	if len(routes) != 2 || routes[0].Path != "/v1/fetch" || routes[1].Handler != "health" {
		t.Errorf("unexpected routes %v", routes)
	}
}
