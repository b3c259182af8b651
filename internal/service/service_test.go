package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDriver struct {
	installErr func(n int) error
	installN   int

	startupErr error
	runErr     error
}

func (f *fakeDriver) Install(ctx context.Context) error {
	f.installN++
	if f.installErr != nil {
		return f.installErr(f.installN)
	}
	return nil
}
func (f *fakeDriver) Startup(ctx context.Context) error { return f.startupErr }
func (f *fakeDriver) Recover(ctx context.Context) error { return f.startupErr }
func (f *fakeDriver) Run(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}
func (f *fakeDriver) Shutdown(ctx context.Context) error { return nil }
func (f *fakeDriver) Validate(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error) {
	return Valid, nil
}

func waitForState(t *testing.T, svc *Service, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if svc.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %v, currently %v", want, svc.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestInstallRetryThenSuccess(t *testing.T) {
	driver := &fakeDriver{
		installErr: func(n int) error {
			if n == 1 {
				return errors.New("boom")
			}
			return nil
		},
	}
	svc := New("svc", driver, func() bool { return true }, Timeouts{})
	svc.installBackoff = zeroBackoff{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go svc.Run(ctx)

	waitForState(t, svc, StateRunning, time.Second)
	if driver.installN < 2 {
		t.Fatalf("expected install to be retried at least once, ran %d times", driver.installN)
	}
}

func TestInstallExhaustsToBroken(t *testing.T) {
	driver := &fakeDriver{
		installErr: func(n int) error { return errors.New("always fails") },
	}
	svc := New("svc", driver, func() bool { return true }, Timeouts{})
	svc.installBackoff = zeroBackoff{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go svc.Run(ctx)

	waitForState(t, svc, StateBroken, time.Second)
}

func TestRunExitZeroReachesFinished(t *testing.T) {
	driver := &fakeDriver{runErr: nil}
	driver2 := &instantExitDriver{fakeDriver: driver}
	svc := New("svc", driver2, func() bool { return true }, Timeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go svc.Run(ctx)

	waitForState(t, svc, StateFinished, time.Second)
}

// instantExitDriver makes Run return immediately with nil, simulating a
// run script that exits 0 right away.
type instantExitDriver struct {
	*fakeDriver
}

func (d *instantExitDriver) Run(ctx context.Context) error { return nil }

type zeroBackoff struct{}

func (zeroBackoff) When(item string) time.Duration { return 0 }
func (zeroBackoff) Forget(item string)              {}
