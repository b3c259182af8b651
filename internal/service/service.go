package service

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"evergreen/internal/evgerr"
	"evergreen/pkg/logging"
)

// StateChangeCallback is notified of every transition, broadcast to global
// listeners before the next transition is attempted.
type StateChangeCallback func(name string, old, new State, cause error)

// DepsReady is consulted before a component may leave INSTALLED for
// STARTING: it reports whether every HARD dependency is RUNNING/FINISHED
// and every SOFT dependency has left NEW/INSTALLED/STARTING. The Service
// itself has no notion of the dependency graph; internal/supervisor
// supplies this closure.
type DepsReady func() bool

// Request is an explicit external request a Service's Run loop reacts to
// between lifecycle steps.
type Request int

const (
	RequestNone Request = iota
	RequestStop
	RequestRestart
	RequestReinstall
)

// Service drives one component through its lifecycle state machine. It
// owns no dependency-graph knowledge or subprocess details beyond the
// Driver it was built with.
type Service struct {
	Name string

	driver   Driver
	depsOK   DepsReady
	stateCb  StateChangeCallback
	timeouts Timeouts

	mu         sync.RWMutex
	state      State
	desired    DesiredState
	lastError  error
	errorCount map[string]int
	generation int
	requestCh  chan Request

	installBackoff backoffLimiter
	startupBackoff backoffLimiter
}

// backoffLimiter is the subset of workqueue.TypedRateLimiter this package
// needs; defined so tests can substitute a zero-wait fake.
type backoffLimiter interface {
	When(item string) time.Duration
	Forget(item string)
}

// Timeouts bundles the per-component deadlines, defaulted and overridable
// per service.
type Timeouts struct {
	Startup  time.Duration // default 120s
	Shutdown time.Duration // default 15s
}

func defaultTimeouts(t Timeouts) Timeouts {
	if t.Startup <= 0 {
		t.Startup = 120 * time.Second
	}
	if t.Shutdown <= 0 {
		t.Shutdown = 15 * time.Second
	}
	return t
}

// New constructs a Service in state NEW.
func New(name string, driver Driver, depsOK DepsReady, timeouts Timeouts) *Service {
	return &Service{
		Name:           name,
		driver:         driver,
		depsOK:         depsOK,
		timeouts:       defaultTimeouts(timeouts),
		state:          StateNew,
		desired:        DesiredRunning,
		errorCount:     make(map[string]int),
		requestCh:      make(chan Request, 1),
		installBackoff: newBackoff(),
		startupBackoff: newBackoff(),
	}
}

func (s *Service) SetStateChangeCallback(cb StateChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCb = cb
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Validate invokes the underlying Driver's ValidateConfiguration capability
// directly, outside the normal lifecycle loop. internal/merger calls this
// during its validation-broadcast step.
func (s *Service) Validate(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error) {
	return s.currentDriver().Validate(ctx, proposed)
}

// SetDriver swaps the Driver a running Service's lifecycle steps invoke. A
// structural reconfiguration (new lifecycle scripts or dependencies) rebuilds
// the Driver and calls this before requesting a reinstall, so the reinstall
// that follows actually runs the new scripts instead of the ones it started
// with.
func (s *Service) SetDriver(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver = d
}

func (s *Service) currentDriver() Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driver
}

// setDesired records what state the component should settle into once it
// leaves STOPPING, the signal runShutdown needs to tell a terminal stop
// apart from a restart or reinstall.
func (s *Service) setDesired(d DesiredState) {
	s.mu.Lock()
	s.desired = d
	s.mu.Unlock()
}

// RequestStop, RequestServiceRestart, and RequestServiceReinstall queue an
// explicit request consumed at the next lifecycle step boundary; at most
// one request is buffered, newest wins.
func (s *Service) RequestStop()             { s.sendRequest(RequestStop) }
func (s *Service) RequestServiceRestart()   { s.sendRequest(RequestRestart) }
func (s *Service) RequestServiceReinstall() { s.sendRequest(RequestReinstall) }

func (s *Service) sendRequest(r Request) {
	select {
	case s.requestCh <- r:
	default:
		select {
		case <-s.requestCh:
		default:
		}
		s.requestCh <- r
	}
}

func (s *Service) pendingRequest() Request {
	select {
	case r := <-s.requestCh:
		return r
	default:
		return RequestNone
	}
}

func (s *Service) transition(new State, cause error) {
	s.mu.Lock()
	old := s.state
	s.state = new
	s.lastError = cause
	cb := s.stateCb
	s.mu.Unlock()

	logging.Transition(s.Name, old.String(), new.String(), cause)
	if cb != nil && old != new {
		cb(s.Name, old, new, cause)
	}
}

// Run drives the full lifecycle loop until ctx is cancelled or the
// component reaches a terminal state (FINISHED without further requests,
// or BROKEN). It is meant to be called once, in its own goroutine, by
// internal/supervisor.
func (s *Service) Run(ctx context.Context) {
	for {
		switch s.State() {
		case StateNew:
			s.runInstall(ctx)
		case StateInstalled:
			s.awaitDepsThenStart(ctx)
		case StateStarting:
			s.runStartup(ctx)
		case StateRunning:
			s.runService(ctx)
		case StateStopping:
			s.runShutdown(ctx)
		case StateErrored:
			s.runRetryDecision(ctx)
		case StateFinished, StateBroken:
			return
		}
		if ctx.Err() != nil && s.State() != StateStopping {
			return
		}
	}
}

func (s *Service) runInstall(ctx context.Context) {
	if r := s.checkStopRequest(); r {
		return
	}
	err := s.currentDriver().Install(ctx)
	if err != nil {
		s.bumpError("install", err)
		return
	}
	s.resetError("install")
	s.transition(StateInstalled, nil)
}

// awaitDepsThenStart polls DepsReady every 200ms until every HARD dependency
// is RUNNING/FINISHED and every SOFT dependency has left NEW/INSTALLED/
// STARTING, or a stop request arrives.
func (s *Service) awaitDepsThenStart(ctx context.Context) {
	ready := false
	_ = wait.PollUntilContextCancel(ctx, 200*time.Millisecond, true, func(ctx context.Context) (bool, error) {
		if s.checkStopRequest() {
			return true, nil
		}
		if s.depsOK == nil || s.depsOK() {
			ready = true
			return true, nil
		}
		return false, nil
	})
	if ready {
		s.transition(StateStarting, nil)
	}
}

func (s *Service) runStartup(ctx context.Context) {
	startCtx, cancel := context.WithTimeout(ctx, s.timeouts.Startup)
	defer cancel()

	s.mu.RLock()
	recovering := s.errorCount["startup"] > 0
	s.mu.RUnlock()

	var err error
	if recovering {
		err = s.currentDriver().Recover(startCtx)
	} else {
		err = s.currentDriver().Startup(startCtx)
	}
	if err != nil {
		s.bumpError("startup", err)
		return
	}
	s.resetError("startup")
	s.transition(StateRunning, nil)
}

// runService executes the long-lived Run step. It returns control to the
// loop once Run exits (success -> FINISHED, failure -> ERRORED) or a
// request/dependency loss asks the component to stop.
func (s *Service) runService(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.currentDriver().Run(runCtx) }()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				s.bumpError("run", err)
				return
			}
			s.resetError("startup")
			s.transition(StateFinished, nil)
			return
		case <-ctx.Done():
			s.setDesired(DesiredFinished)
			cancel()
			<-done
			s.transition(StateStopping, nil)
			return
		case <-ticker.C:
			switch s.pendingRequest() {
			case RequestStop:
				s.setDesired(DesiredFinished)
				cancel()
				<-done
				s.transition(StateStopping, nil)
				return
			case RequestRestart:
				s.setDesired(DesiredInstalled)
				cancel()
				<-done
				s.transition(StateStopping, nil)
				return
			case RequestReinstall:
				s.setDesired(DesiredNew)
				cancel()
				<-done
				s.transition(StateStopping, nil)
				return
			}
			if s.depsOK != nil && !s.depsOK() {
				s.setDesired(DesiredInstalled)
				cancel()
				<-done
				s.transition(StateStopping, nil)
				return
			}
		}
	}
}

// runShutdown drains the Driver's Shutdown step, then decides where the
// component lands next from the DesiredState recorded by whatever asked it
// to stop: a plain stop request reaches FINISHED, a restart/reinstall cycles
// back through INSTALLED/NEW so Run drives it straight back to RUNNING.
func (s *Service) runShutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	_ = s.currentDriver().Shutdown(shutdownCtx)

	s.mu.Lock()
	s.generation++
	desired := s.desired
	if desired != DesiredFinished {
		s.desired = DesiredRunning
	}
	s.mu.Unlock()

	switch desired {
	case DesiredFinished:
		s.transition(StateFinished, nil)
	case DesiredNew:
		s.transition(StateNew, nil)
	default:
		s.transition(StateInstalled, nil)
	}
}

func (s *Service) runRetryDecision(ctx context.Context) {
	s.mu.RLock()
	installCount := s.errorCount["install"]
	startupCount := s.errorCount["startup"]
	s.mu.RUnlock()

	var key string
	var count, max int
	var limiter backoffLimiter
	switch {
	case installCount > 0:
		key, count, max, limiter = "install", installCount, MaxInstallAttempts, s.installBackoff
	default:
		key, count, max, limiter = "startup", startupCount, MaxStartupAttempts, s.startupBackoff
	}

	if count >= max {
		s.transition(StateBroken, evgerr.New(evgerr.KindLifecycleFailure, s.Name, "retry attempts exhausted"))
		return
	}

	delay := limiter.When(key)
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if key == "install" {
		s.transition(StateNew, nil)
	} else {
		s.transition(StateInstalled, nil)
	}
}

func (s *Service) bumpError(step string, cause error) {
	s.mu.Lock()
	s.errorCount[step]++
	s.mu.Unlock()
	s.transition(StateErrored, evgerr.Wrap(evgerr.KindLifecycleFailure, s.Name, step+" failed", cause))
}

func (s *Service) resetError(step string) {
	s.mu.Lock()
	s.errorCount[step] = 0
	s.mu.Unlock()
	if step == "install" {
		s.installBackoff.Forget(step)
	} else {
		s.startupBackoff.Forget(step)
	}
}

func (s *Service) checkStopRequest() bool {
	if s.pendingRequest() == RequestStop {
		s.setDesired(DesiredFinished)
		s.transition(StateStopping, nil)
		return true
	}
	return false
}
