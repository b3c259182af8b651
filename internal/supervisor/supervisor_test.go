package supervisor

import (
	"context"
	"testing"
	"time"

	"evergreen/internal/depgraph"
	"evergreen/internal/service"
)

type stepDriver struct {
	startedAt chan time.Time
}

func (d *stepDriver) Install(ctx context.Context) error { return nil }
func (d *stepDriver) Startup(ctx context.Context) error {
	select {
	case d.startedAt <- time.Now():
	default:
	}
	return nil
}
func (d *stepDriver) Recover(ctx context.Context) error { return d.Startup(ctx) }
func (d *stepDriver) Run(ctx context.Context) error     { <-ctx.Done(); return nil }
func (d *stepDriver) Shutdown(ctx context.Context) error { return nil }
func (d *stepDriver) Validate(ctx context.Context, proposed map[string]interface{}) (service.ValidationVerdict, error) {
	return service.Valid, nil
}

func TestDependentWaitsForHardDependency(t *testing.T) {
	sup := New(nil)

	base := &stepDriver{startedAt: make(chan time.Time, 1)}
	dependent := &stepDriver{startedAt: make(chan time.Time, 1)}

	sup.Register("base", base, nil, service.Timeouts{})
	sup.Register("dependent", dependent, []depgraph.Edge{{To: "base", Kind: depgraph.Hard}}, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	var baseStart, depStart time.Time
	select {
	case baseStart = <-base.startedAt:
	case <-time.After(time.Second):
		t.Fatal("base never started")
	}
	select {
	case depStart = <-dependent.startedAt:
	case <-time.After(time.Second):
		t.Fatal("dependent never started")
	}

	if !depStart.After(baseStart) {
		t.Fatalf("expected dependent to start after base: base=%v dependent=%v", baseStart, depStart)
	}
}

func TestShutdownWaitsForTerminal(t *testing.T) {
	sup := New(nil)
	d := &stepDriver{startedAt: make(chan time.Time, 1)}
	sup.Register("svc", d, nil, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	<-d.startedAt
	time.Sleep(50 * time.Millisecond) // let Run loop enter RUNNING

	if err := sup.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	svc, _ := sup.Get("svc")
	if svc.State() != service.StateFinished {
		t.Fatalf("expected FINISHED after shutdown, got %v", svc.State())
	}
}
