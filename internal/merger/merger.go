package merger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"evergreen/internal/configtree"
	"evergreen/internal/depgraph"
	"evergreen/internal/evgerr"
	"evergreen/internal/service"
	"evergreen/internal/supervisor"
)

// DeploymentStatus is the outcome of a merge.
type DeploymentStatus int

const (
	Successful DeploymentStatus = iota
	FailedRolledBack
	// FailedNoStateChange is the historical name kept even though state may
	// be partially changed under failure_policy=DO_NOTHING.
	FailedNoStateChange
)

func (s DeploymentStatus) String() string {
	switch s {
	case Successful:
		return "SUCCESSFUL"
	case FailedRolledBack:
		return "FAILED_ROLLED_BACK"
	case FailedNoStateChange:
		return "FAILED_NO_STATE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FailurePolicy controls what happens when driving post-apply state
// transitions fails to converge.
type FailurePolicy int

const (
	DoNothing FailurePolicy = iota
	Rollback
)

// ServiceSpec is one service's merge-relevant configuration: its lifecycle
// scripts (opaque to the merger, just compared for change detection),
// dependencies, and parameters.
type ServiceSpec struct {
	Lifecycle    map[string]interface{}
	Dependencies []depgraph.Edge
	Parameters   map[string]interface{}
}

// Deployment is the merge request: the full desired set of services. A
// currently committed service absent from Services is removed.
type Deployment struct {
	ID                string
	FailurePolicy     FailurePolicy
	NotifyTimeout     time.Duration // default 20s
	DeploymentTimeout time.Duration // default 5m
	Services          map[string]ServiceSpec
}

func (d Deployment) withDefaults() Deployment {
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = 20 * time.Second
	}
	if d.DeploymentTimeout <= 0 {
		d.DeploymentTimeout = 5 * time.Minute
	}
	return d
}

// DeploymentResult is the merge outcome surfaced to the caller.
type DeploymentResult struct {
	Status DeploymentStatus
	Cause  error
}

// changeClass classifies one service's delta against its current spec.
type changeClass int

const (
	unchanged changeClass = iota
	added
	removed
	updatedStructural // lifecycle or dependencies changed
	updatedParameters // parameters only
)

// DriverFactory builds the Driver for a newly added service so the merger
// can register it with the supervisor without knowing anything about
// external-process scripts, builtins, or working directories itself.
type DriverFactory func(name string, spec ServiceSpec) service.Driver

// Merger is the transactional configuration merge engine.
type Merger struct {
	tree          *configtree.Tree
	sup           *supervisor.Supervisor
	driverFactory DriverFactory

	mu      sync.Mutex // at-most-one merge in flight
	current map[string]ServiceSpec
}

// New builds a Merger over tree and sup. initial is the configuration
// already committed (e.g. replayed from persistence) before this process
// accepts its first deployment.
func New(tree *configtree.Tree, sup *supervisor.Supervisor, initial map[string]ServiceSpec) *Merger {
	if initial == nil {
		initial = make(map[string]ServiceSpec)
	}
	return &Merger{tree: tree, sup: sup, current: initial}
}

// SetDriverFactory wires the constructor used to bring a brand-new service
// (the merge's "added" class) to life, and to rebuild the Driver of a
// service whose lifecycle or dependencies changed. Without one, such
// services are still written to the Config Tree, but the merge then fails
// with an Internal error instead of registering or reinstalling them.
func (m *Merger) SetDriverFactory(f DriverFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driverFactory = f
}

// Merge applies deployment, serialized against any other in-flight merge.
func (m *Merger) Merge(ctx context.Context, deployment Deployment) DeploymentResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	deployment = deployment.withDefaults()

	classes := m.classify(deployment)

	prospective, err := m.buildProspectiveGraph(deployment)
	if err != nil {
		return DeploymentResult{Status: FailedNoStateChange, Cause: evgerr.Wrap(evgerr.KindInvalidConfig, deployment.ID, "cyclic dependency graph", err)}
	}

	if err := m.validationBroadcast(ctx, deployment, classes); err != nil {
		return DeploymentResult{Status: FailedNoStateChange, Cause: err}
	}

	preImage := m.snapshotCurrent()
	ts := m.tree.Now()
	m.apply(deployment, classes, ts)

	if err := m.driveState(ctx, deployment, classes); err != nil {
		if deployment.FailurePolicy == Rollback {
			m.rollback(preImage, prospective)
			return DeploymentResult{Status: FailedRolledBack, Cause: err}
		}
		return DeploymentResult{Status: FailedNoStateChange, Cause: err}
	}

	m.commit(deployment, classes)
	return DeploymentResult{Status: Successful}
}

// classify implements step 1: compare deployment.Services to m.current.
func (m *Merger) classify(deployment Deployment) map[string]changeClass {
	classes := make(map[string]changeClass, len(deployment.Services))
	for name, spec := range deployment.Services {
		old, existed := m.current[name]
		switch {
		case !existed:
			classes[name] = added
		case !equalStructural(old, spec):
			classes[name] = updatedStructural
		case !equalParameters(old, spec):
			classes[name] = updatedParameters
		default:
			classes[name] = unchanged
		}
	}
	for name := range m.current {
		if _, ok := deployment.Services[name]; !ok {
			classes[name] = removed
		}
	}
	return classes
}

func equalStructural(a, b ServiceSpec) bool {
	if fmt.Sprint(a.Lifecycle) != fmt.Sprint(b.Lifecycle) {
		return false
	}
	if len(a.Dependencies) != len(b.Dependencies) {
		return false
	}
	for i := range a.Dependencies {
		if a.Dependencies[i] != b.Dependencies[i] {
			return false
		}
	}
	return true
}

func equalParameters(a, b ServiceSpec) bool {
	return fmt.Sprint(a.Parameters) == fmt.Sprint(b.Parameters)
}

// buildProspectiveGraph implements step 2.
func (m *Merger) buildProspectiveGraph(deployment Deployment) (*depgraph.Graph, error) {
	g := depgraph.New()
	merged := make(map[string]ServiceSpec, len(m.current))
	for k, v := range m.current {
		merged[k] = v
	}
	for k, v := range deployment.Services {
		merged[k] = v
	}
	for name, spec := range merged {
		g.AddNode(name)
		for _, e := range spec.Dependencies {
			g.AddEdge(name, e.To, e.Kind)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// validationBroadcast implements step 3: every service registered with the
// supervisor whose parameters, lifecycle or dependencies change must return
// VALID within deployment.NotifyTimeout, concurrently, via errgroup.
func (m *Merger) validationBroadcast(ctx context.Context, deployment Deployment, classes map[string]changeClass) error {
	g, gctx := errgroup.WithContext(ctx)
	var dissentingMu sync.Mutex
	var dissenting []string

	for name, class := range classes {
		if class != updatedParameters && class != updatedStructural {
			continue
		}
		svc, ok := m.sup.Get(name)
		if !ok {
			continue
		}
		name, svc, spec := name, svc, deployment.Services[name]
		g.Go(func() error {
			verdict, err := callValidate(gctx, svc, spec.Parameters, deployment.NotifyTimeout)
			if err != nil || verdict != service.Valid {
				dissentingMu.Lock()
				dissenting = append(dissenting, name)
				dissentingMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(dissenting) > 0 {
		return evgerr.New(evgerr.KindValidationFailure, deployment.ID,
			fmt.Sprintf("DynamicConfigurationValidationException: dissenting components: %v", dissenting))
	}
	return nil
}

func callValidate(ctx context.Context, svc *service.Service, params map[string]interface{}, timeout time.Duration) (service.ValidationVerdict, error) {
	type result struct {
		verdict service.ValidationVerdict
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := svc.Validate(ctx, params)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.verdict, r.err
	case <-time.After(timeout):
		return service.ValidationTimeout, fmt.Errorf("validation timed out after %s", timeout)
	}
}

// snapshotCurrent returns a deep copy of the currently-committed specs, used
// as the pre-image for a potential rollback.
func (m *Merger) snapshotCurrent() map[string]ServiceSpec {
	out := make(map[string]ServiceSpec, len(m.current))
	for k, v := range m.current {
		out[k] = v
	}
	return out
}

// apply implements step 5: write the whole delta under one timestamp.
func (m *Merger) apply(deployment Deployment, classes map[string]changeClass, ts configtree.Timestamp) {
	for name, class := range classes {
		switch class {
		case removed:
			_, _ = m.tree.Delete("/services/"+name, ts)
		case added, updatedStructural, updatedParameters:
			spec := deployment.Services[name]
			_, _ = m.tree.Write("/services/"+name+"/parameters", spec.Parameters, ts)
		}
	}
}

// driveState implements step 6. Services new to this deployment ("added")
// are registered with the supervisor and started here, rather than at
// apply time, so a failure building their driver surfaces as an ordinary
// driveState error eligible for rollback like any other convergence
// failure.
func (m *Merger) driveState(ctx context.Context, deployment Deployment, classes map[string]changeClass) error {
	var affected []string
	for name, class := range classes {
		if class == added {
			spec := deployment.Services[name]
			if m.driverFactory == nil {
				return evgerr.New(evgerr.KindInternal, deployment.ID,
					fmt.Sprintf("no driver factory registered, cannot bring up added service %q", name))
			}
			driver := m.driverFactory(name, spec)
			m.sup.Register(name, driver, spec.Dependencies, service.Timeouts{})
			m.sup.StartService(name)
			affected = append(affected, name)
			continue
		}
		svc, ok := m.sup.Get(name)
		if !ok {
			continue
		}
		switch class {
		case updatedStructural:
			if m.driverFactory == nil {
				return evgerr.New(evgerr.KindInternal, deployment.ID,
					fmt.Sprintf("no driver factory registered, cannot rebuild driver for reconfigured service %q", name))
			}
			svc.SetDriver(m.driverFactory(name, deployment.Services[name]))
			svc.RequestServiceReinstall()
			affected = append(affected, name)
		case removed:
			svc.RequestStop()
			affected = append(affected, name)
		}
	}

	for _, name := range affected {
		svc, _ := m.sup.Get(name)
		class := classes[name]

		waitCtx, cancel := context.WithTimeout(ctx, deployment.DeploymentTimeout)
		var lastState service.State
		err := wait.PollUntilContextCancel(waitCtx, 100*time.Millisecond, true, func(context.Context) (bool, error) {
			lastState = svc.State()
			if class == removed {
				return lastState == service.StateFinished, nil
			}
			return lastState == service.StateRunning || lastState.Terminal(), nil
		})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("deployment %s timed out waiting for %s to converge (state=%s)", deployment.ID, name, lastState)
		}
	}
	return nil
}

// rollback implements step 7's ROLLBACK branch: reapply the pre-image with
// validation skipped, since a previously-committed configuration is
// known-good by definition.
func (m *Merger) rollback(preImage map[string]ServiceSpec, _ *depgraph.Graph) {
	ts := m.tree.Now()
	classes := make(map[string]changeClass, len(preImage))
	for name := range m.current {
		if _, ok := preImage[name]; !ok {
			classes[name] = removed
		}
	}
	for name := range preImage {
		classes[name] = updatedStructural
	}
	deployment := Deployment{ID: "rollback", Services: preImage}.withDefaults()
	m.apply(deployment, classes, ts)

	for name, class := range classes {
		svc, ok := m.sup.Get(name)
		if !ok {
			continue
		}
		if class == removed {
			svc.RequestStop()
		} else {
			svc.RequestServiceReinstall()
		}
	}
	m.current = preImage
}

// commit records deployment's services as the new committed baseline once
// step 6 converges successfully.
func (m *Merger) commit(deployment Deployment, classes map[string]changeClass) {
	for name, class := range classes {
		if class == removed {
			delete(m.current, name)
			continue
		}
		m.current[name] = deployment.Services[name]
	}
}
