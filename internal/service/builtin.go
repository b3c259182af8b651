package service

import "context"

// BuiltinFuncs is the in-process function table a BuiltinDriver dispatches
// to: the builtin-component half of capability-set design
// note. Any nil entry is treated as a no-op success, except Run, whose nil
// default blocks until ctx is cancelled.
type BuiltinFuncs struct {
	Install  func(ctx context.Context) error
	Startup  func(ctx context.Context) error
	Run      func(ctx context.Context) error
	Shutdown func(ctx context.Context) error
	Recover  func(ctx context.Context) error
	Validate func(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error)
}

// BuiltinDriver implements Driver over an in-process BuiltinFuncs table
// instead of subprocess scripts, for components that ship inside the
// supervisor binary itself (e.g. telemetry-heartbeat).
type BuiltinDriver struct {
	funcs BuiltinFuncs
}

// NewBuiltinDriver wraps funcs as a Driver.
func NewBuiltinDriver(funcs BuiltinFuncs) *BuiltinDriver {
	return &BuiltinDriver{funcs: funcs}
}

func (d *BuiltinDriver) Install(ctx context.Context) error {
	if d.funcs.Install == nil {
		return nil
	}
	return d.funcs.Install(ctx)
}

func (d *BuiltinDriver) Startup(ctx context.Context) error {
	if d.funcs.Startup == nil {
		return nil
	}
	return d.funcs.Startup(ctx)
}

func (d *BuiltinDriver) Recover(ctx context.Context) error {
	if d.funcs.Recover != nil {
		return d.funcs.Recover(ctx)
	}
	return d.Startup(ctx)
}

func (d *BuiltinDriver) Run(ctx context.Context) error {
	if d.funcs.Run == nil {
		<-ctx.Done()
		return nil
	}
	return d.funcs.Run(ctx)
}

func (d *BuiltinDriver) Shutdown(ctx context.Context) error {
	if d.funcs.Shutdown == nil {
		return nil
	}
	return d.funcs.Shutdown(ctx)
}

func (d *BuiltinDriver) Validate(ctx context.Context, proposed map[string]interface{}) (ValidationVerdict, error) {
	if d.funcs.Validate == nil {
		return Valid, nil
	}
	return d.funcs.Validate(ctx, proposed)
}
