package merger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"evergreen/internal/configtree"
	"evergreen/internal/depgraph"
	"evergreen/internal/service"
	"evergreen/internal/supervisor"
)

type noopDriver struct{ validate func(map[string]interface{}) (service.ValidationVerdict, error) }

func (d *noopDriver) Install(ctx context.Context) error  { return nil }
func (d *noopDriver) Startup(ctx context.Context) error  { return nil }
func (d *noopDriver) Recover(ctx context.Context) error  { return nil }
func (d *noopDriver) Run(ctx context.Context) error      { <-ctx.Done(); return nil }
func (d *noopDriver) Shutdown(ctx context.Context) error { return nil }
func (d *noopDriver) Validate(ctx context.Context, proposed map[string]interface{}) (service.ValidationVerdict, error) {
	if d.validate != nil {
		return d.validate(proposed)
	}
	return service.Valid, nil
}

// trackingDriver counts its own Install calls, so a test can tell which of
// two driver instances actually ran.
type trackingDriver struct{ installs *int32 }

func (d *trackingDriver) Install(ctx context.Context) error {
	atomic.AddInt32(d.installs, 1)
	return nil
}
func (d *trackingDriver) Startup(ctx context.Context) error  { return nil }
func (d *trackingDriver) Recover(ctx context.Context) error  { return nil }
func (d *trackingDriver) Run(ctx context.Context) error      { <-ctx.Done(); return nil }
func (d *trackingDriver) Shutdown(ctx context.Context) error { return nil }
func (d *trackingDriver) Validate(ctx context.Context, proposed map[string]interface{}) (service.ValidationVerdict, error) {
	return service.Valid, nil
}

func TestMergeRejectsCycle(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)
	m := New(tree, sup, nil)

	dep := Deployment{
		ID: "d1",
		Services: map[string]ServiceSpec{
			"a": {Dependencies: []depgraph.Edge{{To: "b", Kind: depgraph.Hard}}},
			"b": {Dependencies: []depgraph.Edge{{To: "a", Kind: depgraph.Hard}}},
		},
	}

	result := m.Merge(context.Background(), dep)
	if result.Status != FailedNoStateChange {
		t.Fatalf("expected FAILED_NO_STATE_CHANGE on cycle, got %v (%v)", result.Status, result.Cause)
	}
}

func TestMergeAbortsOnValidationRejection(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	rejecting := &noopDriver{validate: func(map[string]interface{}) (service.ValidationVerdict, error) {
		return service.Invalid, nil
	}}
	sup.Register("svc", rejecting, nil, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	m := New(tree, sup, map[string]ServiceSpec{
		"svc": {Parameters: map[string]interface{}{"k": "v1"}},
	})

	dep := Deployment{
		ID: "d2",
		Services: map[string]ServiceSpec{
			"svc": {Parameters: map[string]interface{}{"k": "v2"}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status != FailedNoStateChange {
		t.Fatalf("expected FAILED_NO_STATE_CHANGE on validation rejection, got %v", result.Status)
	}
	if v, _ := tree.Read("/services/svc/parameters"); v != nil {
		t.Fatalf("expected no state change to persist, got %v", v)
	}
}

func TestMergeRegistersAndStartsAddedService(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	m := New(tree, sup, nil)
	m.SetDriverFactory(func(name string, spec ServiceSpec) service.Driver {
		return &noopDriver{}
	})

	dep := Deployment{
		ID: "d4",
		Services: map[string]ServiceSpec{
			"newsvc": {Parameters: map[string]interface{}{"k": "v1"}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status != Successful {
		t.Fatalf("expected SUCCESSFUL, got %v (%v)", result.Status, result.Cause)
	}

	svc, ok := sup.Get("newsvc")
	if !ok {
		t.Fatal("expected newsvc to be registered with the supervisor")
	}
	if svc.State() != service.StateRunning {
		t.Fatalf("expected newsvc to be RUNNING, got %v", svc.State())
	}
}

func TestMergeFailsWithoutDriverFactoryForAdded(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	m := New(tree, sup, nil)
	dep := Deployment{
		ID: "d5",
		Services: map[string]ServiceSpec{
			"newsvc": {Parameters: map[string]interface{}{"k": "v1"}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status == Successful {
		t.Fatalf("expected merge to fail without a driver factory, got %v", result.Status)
	}
}

func TestMergeRebuildsDriverOnStructuralChange(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	var oldInstalls, newInstalls int32
	sup.Register("dep", &noopDriver{}, nil, service.Timeouts{})
	sup.Register("svc", &trackingDriver{installs: &oldInstalls}, nil, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	m := New(tree, sup, map[string]ServiceSpec{
		"dep": {},
		"svc": {},
	})
	m.SetDriverFactory(func(name string, spec ServiceSpec) service.Driver {
		return &trackingDriver{installs: &newInstalls}
	})

	dep := Deployment{
		ID:                "d6",
		DeploymentTimeout: 2 * time.Second,
		Services: map[string]ServiceSpec{
			"dep": {},
			"svc": {Dependencies: []depgraph.Edge{{To: "dep", Kind: depgraph.Hard}}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status != Successful {
		t.Fatalf("expected SUCCESSFUL, got %v (%v)", result.Status, result.Cause)
	}
	if atomic.LoadInt32(&newInstalls) == 0 {
		t.Fatal("expected the rebuilt driver to run Install, the old one stayed untouched")
	}

	svc, ok := sup.Get("svc")
	if !ok {
		t.Fatal("expected svc to still be registered")
	}
	if svc.State() != service.StateRunning {
		t.Fatalf("expected svc to reconverge to RUNNING, got %v", svc.State())
	}
}

func TestMergeFailsWithoutDriverFactoryForStructuralChange(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	sup.Register("dep", &noopDriver{}, nil, service.Timeouts{})
	sup.Register("svc", &noopDriver{}, nil, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}

	m := New(tree, sup, map[string]ServiceSpec{
		"dep": {},
		"svc": {},
	})

	dep := Deployment{
		ID: "d7",
		Services: map[string]ServiceSpec{
			"dep": {},
			"svc": {Dependencies: []depgraph.Edge{{To: "dep", Kind: depgraph.Hard}}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status == Successful {
		t.Fatalf("expected merge to fail without a driver factory, got %v", result.Status)
	}
}

func TestMergeSucceedsWithoutValidator(t *testing.T) {
	tree := configtree.New()
	defer tree.Close()
	sup := supervisor.New(tree)

	d := &noopDriver{}
	sup.Register("svc", d, nil, service.Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Launch(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	m := New(tree, sup, nil)
	dep := Deployment{
		ID: "d3",
		Services: map[string]ServiceSpec{
			"svc": {Parameters: map[string]interface{}{"k": "v1"}},
		},
	}

	result := m.Merge(ctx, dep)
	if result.Status != Successful {
		t.Fatalf("expected SUCCESSFUL, got %v (%v)", result.Status, result.Cause)
	}
}
