package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"evergreen/internal/template"
)

// Step is one lifecycle step's definition: its script plus the optional
// modifiers the map form of a lifecycle step allows.
type Step struct {
	Script  string
	Timeout time.Duration
	SetEnv  map[string]string
	SkipIf  string
}

// ExternalSpec is the external-process variant of the Driver capability
// set: every lifecycle step is a shell script run through a POSIX-shell
// interpreter, whose exit code drives the state transition.
type ExternalSpec struct {
	Install  Step
	Startup  Step
	Run      Step
	Shutdown Step
	Recover  Step

	WorkDir      string
	ArtifactsDir string
	GlobalEnv    map[string]string
	ServiceEnv   map[string]string
	EvergreenUID string

	// Parameters is the component's own configuration subtree, exposed to
	// lifecycle scripts as {{ paramName }} template variables.
	Parameters map[string]interface{}

	// ShutdownGrace is how long Shutdown waits after SIGTERM before
	// escalating to SIGKILL.
	ShutdownGrace time.Duration
}

// ExternalDriver runs an ExternalSpec's scripts as subprocesses.
type ExternalDriver struct {
	spec   ExternalSpec
	engine *template.Engine

	mu      sync.Mutex
	running *exec.Cmd
}

// NewExternalDriver builds a Driver from spec.
func NewExternalDriver(spec ExternalSpec) *ExternalDriver {
	if spec.ShutdownGrace == 0 {
		spec.ShutdownGrace = 5 * time.Second
	}
	return &ExternalDriver{spec: spec, engine: template.New()}
}

func (d *ExternalDriver) Install(ctx context.Context) error {
	return d.runOnce(ctx, d.spec.Install)
}

func (d *ExternalDriver) Startup(ctx context.Context) error {
	return d.runOnce(ctx, d.spec.Startup)
}

func (d *ExternalDriver) Recover(ctx context.Context) error {
	if d.spec.Recover.Script == "" {
		return d.runOnce(ctx, d.spec.Startup)
	}
	return d.runOnce(ctx, d.spec.Recover)
}

// Run launches the run script and blocks until it exits or ctx is
// cancelled, in which case Shutdown's SIGTERM/SIGKILL escalation applies.
func (d *ExternalDriver) Run(ctx context.Context) error {
	if d.spec.Run.Script == "" {
		<-ctx.Done()
		return nil
	}
	cmd, err := d.buildCmd(ctx, d.spec.Run)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting run step: %w", err)
	}
	d.mu.Lock()
	d.running = cmd
	d.mu.Unlock()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		return err
	case <-ctx.Done():
		d.terminate(cmd)
		<-waitErr
		return nil
	}
}

func (d *ExternalDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	cmd := d.running
	d.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		d.terminate(cmd)
	}
	if d.spec.Shutdown.Script == "" {
		return nil
	}
	return d.runOnce(ctx, d.spec.Shutdown)
}

func (d *ExternalDriver) Validate(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error) {
	// External-process components have no ValidateConfiguration capability
	// in this driver, so every proposed configuration is accepted.
	return Valid, nil
}

// terminate sends SIGTERM to the process group, waits ShutdownGrace, then
// escalates to SIGKILL.
func (d *ExternalDriver) terminate(cmd *exec.Cmd) {
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.spec.ShutdownGrace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

func (d *ExternalDriver) runOnce(ctx context.Context, step Step) error {
	if step.Script == "" {
		return nil
	}
	if step.SkipIf != "" {
		pred, err := ParseSkipIf(step.SkipIf)
		if err != nil {
			return err
		}
		skip, err := pred(ctx)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	cmd, err := d.buildCmd(runCtx, step)
	if err != nil {
		return err
	}
	return cmd.Run()
}

func (d *ExternalDriver) buildCmd(ctx context.Context, step Step) (*exec.Cmd, error) {
	script := d.engine.ReplacePathTokens(step.Script, map[string]string{
		"work":      d.spec.WorkDir,
		"artifacts": d.spec.ArtifactsDir,
	})

	renderCtx := template.MergeContexts(
		map[string]interface{}{"work": d.spec.WorkDir, "artifacts": d.spec.ArtifactsDir},
		d.spec.Parameters,
	)
	rendered, err := d.engine.Replace(script, renderCtx)
	if err != nil {
		return nil, fmt.Errorf("rendering script template: %w", err)
	}
	script, _ = rendered.(string)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Dir = d.spec.WorkDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = mergeEnv(os.Environ(),
		d.spec.GlobalEnv,
		d.spec.ServiceEnv,
		step.SetEnv,
		map[string]string{"EVERGREEN_UID": d.spec.EvergreenUID},
	)
	return cmd, nil
}
