package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evergreen/internal/configtree"
	"evergreen/internal/depgraph"
	"evergreen/internal/service"
	"evergreen/pkg/logging"
)

// StateChangeEvent is what Supervisor broadcasts to global listeners on
// every component transition.
type StateChangeEvent struct {
	Service string
	Old     service.State
	New     service.State
	Cause   error
	At      time.Time
}

// Supervisor owns the running set of components and the graph describing
// their dependencies.
type Supervisor struct {
	mu       sync.RWMutex
	graph    *depgraph.Graph
	services map[string]*service.Service
	tree     *configtree.Tree

	listeners []chan<- StateChangeEvent

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readyOnce sync.Once
	onReady   func()
}

// New builds a Supervisor over tree. Components are registered with
// Register before Launch is called.
func New(tree *configtree.Tree) *Supervisor {
	return &Supervisor{
		graph:    depgraph.New(),
		services: make(map[string]*service.Service),
		tree:     tree,
	}
}

// Subscribe registers ch to receive every future StateChangeEvent. Sends
// are non-blocking: a slow or full listener drops events rather than
// stalling the supervisor.
func (s *Supervisor) Subscribe(ch chan<- StateChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, ch)
}

// OnReady registers a callback invoked once, the first time every
// registered component has reached a terminal-or-running state. Used to
// drive the systemd READY=1 notification.
func (s *Supervisor) OnReady(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = f
}

// Register adds a component and its dependency edges to the graph and
// instantiates its Service, wired so its DepsReady reflects the graph's
// HARD/SOFT gating rule.
func (s *Supervisor) Register(name string, driver service.Driver, deps []depgraph.Edge, timeouts service.Timeouts) *service.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph.AddNode(name)
	for _, e := range deps {
		s.graph.AddEdge(name, e.To, e.Kind)
	}

	svc := service.New(name, driver, func() bool { return s.depsReady(name) }, timeouts)
	svc.SetStateChangeCallback(s.onTransition)
	s.services[name] = svc
	return svc
}

// depsReady implements dependency gating: every HARD dependency must be
// RUNNING or FINISHED; every SOFT dependency must have left NEW/INSTALLED/
// STARTING (i.e. not still coming up).
func (s *Supervisor) depsReady(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.graph.Dependencies(name) {
		dep, ok := s.services[e.To]
		if !ok {
			return false
		}
		st := dep.State()
		switch e.Kind {
		case depgraph.Hard:
			if st != service.StateRunning && st != service.StateFinished {
				return false
			}
		case depgraph.Soft:
			if st == service.StateNew || st == service.StateInstalled || st == service.StateStarting {
				return false
			}
		}
	}
	return true
}

func (s *Supervisor) onTransition(name string, old, new service.State, cause error) {
	evt := StateChangeEvent{Service: name, Old: old, New: new, Cause: cause, At: time.Now()}

	s.mu.RLock()
	listeners := append([]chan<- StateChangeEvent{}, s.listeners...)
	s.mu.RUnlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		default:
		}
	}

	if s.tree != nil {
		_, _ = s.tree.Write(fmt.Sprintf("/services/%s/state", name), new.String(), s.tree.Now())
	}

	s.checkReady()
}

func (s *Supervisor) checkReady() {
	s.mu.RLock()
	allUp := true
	for _, svc := range s.services {
		st := svc.State()
		if st != service.StateRunning && !st.Terminal() {
			allUp = false
			break
		}
	}
	onReady := s.onReady
	s.mu.RUnlock()

	if allUp && onReady != nil {
		s.readyOnce.Do(onReady)
	}
}

// Launch validates the dependency graph, then starts every registered
// component's Run loop concurrently; each component's own DepsReady gating
// determines actual start order.
func (s *Supervisor) Launch(ctx context.Context) error {
	if err := s.graph.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.mu.RLock()
	names, _ := s.graph.Ordered()
	s.mu.RUnlock()

	logging.Info("supervisor", "launching %d components in order %v", len(names), names)

	for _, name := range names {
		s.startService(name)
	}
	return nil
}

// startService runs name's Service.Run loop under the current launch
// context, if one exists and the component isn't already running. Safe to
// call both during Launch and later, for a component registered after
// Launch by internal/merger's "added" path.
func (s *Supervisor) startService(name string) {
	s.mu.Lock()
	svc := s.services[name]
	runCtx := s.runCtx
	if svc == nil || runCtx == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		svc.Run(runCtx)
	}()
}

// StartService starts name's lifecycle loop. It is a no-op if Launch has
// not run yet (the component will start naturally when Launch does) or if
// name is unknown. internal/merger calls this after Register-ing a newly
// added service so the merge's driveState step can observe its progress.
func (s *Supervisor) StartService(name string) {
	s.startService(name)
}

// Shutdown requests every component stop, in reverse dependency order, and
// waits up to timeout for them all to reach a terminal state.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.RLock()
	order, _ := s.graph.Ordered()
	svcs := make(map[string]*service.Service, len(s.services))
	for k, v := range s.services {
		svcs[k] = v
	}
	s.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		if svc, ok := svcs[order[i]]; ok {
			svc.RequestStop()
		}
	}

	if s.cancel != nil {
		defer s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		if s.cancel != nil {
			s.cancel()
		}
		<-done
		return fmt.Errorf("shutdown timed out after %s, remaining components force-cancelled", timeout)
	}
}

// Get returns a registered component by name.
func (s *Supervisor) Get(name string) (*service.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	return svc, ok
}

// Names returns every registered component name in dependency order.
func (s *Supervisor) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, _ := s.graph.Ordered()
	return names
}

// Graph exposes the underlying dependency graph, e.g. for internal/merger
// to rebuild it on a configuration change.
func (s *Supervisor) Graph() *depgraph.Graph {
	return s.graph
}
