package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	evconfig "evergreen/internal/config"
	"evergreen/internal/configtree"
	"evergreen/internal/configwatch"
	"evergreen/internal/merger"
	"evergreen/internal/persistence"
	"evergreen/internal/service"
	"evergreen/internal/service/builtin"
	"evergreen/internal/supervisor"
	"evergreen/pkg/logging"
)

func runSupervisor(cmd *cobra.Command, args []string) error {
	root := rootPath
	if root == "" {
		root = viper.GetString("root")
	}
	if root == "" {
		root = "."
	}

	level := logging.ParseLevel(viper.GetString("log.level"))
	store := logging.Store(viper.GetString("log.store"))
	if store == "" {
		store = logging.Store(logSink)
	}
	if err := logging.Init(store, viper.GetString("log.storeName"), level); err != nil {
		return newLaunchError(fmt.Errorf("initializing logging: %w", err))
	}

	if inputPath == "" {
		return newLaunchError(fmt.Errorf("missing required -i <path> input configuration"))
	}

	specs, err := evconfig.Load(inputPath)
	if err != nil {
		return newLaunchError(err)
	}

	tree := configtree.New()
	defer tree.Close()

	if err := persistence.Replay(root, tree); err != nil {
		return newLaunchError(err)
	}
	plog, err := persistence.Open(root)
	if err != nil {
		return newLaunchError(err)
	}
	defer plog.Close()
	sub := plog.AttachTo(tree)
	defer sub.Cancel()

	sup := supervisor.New(tree)

	for name, spec := range specs {
		driver := buildDriver(root, name, spec)
		sup.Register(name, driver, spec.Dependencies, service.Timeouts{})
	}

	const heartbeatName = "telemetry-heartbeat"
	if _, userDefined := specs[heartbeatName]; !userDefined {
		hb := &builtin.Heartbeat{Tree: tree}
		sup.Register(heartbeatName, hb.Driver(), nil, service.Timeouts{})
	}

	m := merger.New(tree, sup, specs)
	m.SetDriverFactory(func(name string, spec merger.ServiceSpec) service.Driver {
		return buildDriver(root, name, spec)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.NotifySystemd(ctx)

	if err := sup.Launch(ctx); err != nil {
		return newLaunchError(err)
	}

	watcher, err := configwatch.New(inputPath, func(wctx context.Context) {
		reloaded, err := evconfig.Load(inputPath)
		if err != nil {
			logging.Warn("cmd", "reload of %s failed: %v", inputPath, err)
			return
		}
		result := m.Merge(wctx, merger.Deployment{
			ID:            "reload-" + time.Now().UTC().Format(time.RFC3339Nano),
			FailurePolicy: merger.Rollback,
			Services:      reloaded,
		})
		logging.Info("cmd", "reload of %s: %s", inputPath, result.Status)
	})
	if err == nil {
		go watcher.Run(ctx)
	} else {
		logging.Warn("cmd", "could not watch %s for changes: %v", inputPath, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("cmd", "shutdown requested")
	if err := sup.Shutdown(30 * time.Second); err != nil {
		logging.Warn("cmd", "shutdown: %v", err)
	}
	if err := persistence.Compact(root, tree); err != nil {
		logging.Warn("cmd", "final compaction failed: %v", err)
	}
	return nil
}

// buildDriver translates a merger.ServiceSpec's opaque Lifecycle map (built
// by internal/config from the YAML document) into an ExternalDriver,
// scoping its working and artifacts directories.
func buildDriver(root, name string, spec merger.ServiceSpec) service.Driver {
	workDir := filepath.Join(root, "work", name)
	_ = os.MkdirAll(workDir, 0o755)
	artifactsDir := filepath.Join(root, "packages", "artifacts", name)

	extSpec := service.ExternalSpec{
		WorkDir:      workDir,
		ArtifactsDir: artifactsDir,
		EvergreenUID: uuid.NewString(),
		Parameters:   spec.Parameters,
	}
	extSpec.Install = stepFrom(spec.Lifecycle["install"])
	extSpec.Startup = stepFrom(spec.Lifecycle["startup"])
	extSpec.Run = stepFrom(spec.Lifecycle["run"])
	extSpec.Shutdown = stepFrom(spec.Lifecycle["shutdown"])
	extSpec.Recover = stepFrom(spec.Lifecycle["recover"])

	return service.NewExternalDriver(extSpec)
}

func stepFrom(raw interface{}) service.Step {
	ls, ok := raw.(evconfig.LifecycleStep)
	if !ok {
		return service.Step{}
	}
	return service.Step{
		Script:  ls.Script,
		Timeout: evconfig.ParseTimeout(ls.Timeout),
		SetEnv:  ls.SetEnv,
		SkipIf:  ls.SkipIf,
	}
}
