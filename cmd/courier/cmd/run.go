package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/courier/internal/bridge"
	"github.com/nfrund/courier/internal/bus"
	"github.com/nfrund/courier/internal/config"
	"github.com/nfrund/courier/internal/journal"
	"github.com/nfrund/courier/internal/logging"
	"github.com/nfrund/courier/internal/router"
	"github.com/nfrund/courier/internal/tasks"
	"github.com/nfrund/courier/internal/topics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bus with the router and demo collaborators until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run wires the application graph and drives the demo pipeline: a simulated
// UI command starts the task generator, whose status envelopes flow through
// the router into the derived topics where a monitor, the journal and the
// bridge observe them.
func run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := do.New()
	defer injector.Shutdown()

	do.Provide(injector, func(do.Injector) (*slog.Logger, error) {
		return logging.New(), nil
	})
	do.Provide(injector, func(do.Injector) (*config.Config, error) {
		return config.New()
	})
	do.Provide(injector, func(i do.Injector) (*bus.Registry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return bus.NewRegistry(
			do.MustInvoke[*slog.Logger](i),
			bus.WithPutTimeout(cfg.PublishTimeout),
			bus.WithDefaultCapacity(cfg.DefaultCapacity),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*router.Router, error) {
		return router.New(do.MustInvoke[*bus.Registry](i), do.MustInvoke[*slog.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*tasks.Generator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return tasks.New(do.MustInvoke[*bus.Registry](i), cfg.GeneratorInterval, do.MustInvoke[*slog.Logger](i)), nil
	})

	logger := do.MustInvoke[*slog.Logger](injector)
	cfg := do.MustInvoke[*config.Config](injector)
	reg := do.MustInvoke[*bus.Registry](injector)

	rt := do.MustInvoke[*router.Router](injector)
	if err := rt.Start(); err != nil {
		return err
	}
	defer rt.Stop()

	gen := do.MustInvoke[*tasks.Generator](injector)
	if err := gen.Boot(ctx); err != nil {
		return err
	}
	defer gen.Shutdown(context.Background())

	// Monitor stands in for the excluded presentation layer: it consumes
	// derived progress events and logs them.
	monitor, err := reg.Subscribe(topics.TaskProcessUpdate, "monitor",
		bus.WithHandler(func(e bus.Envelope) error {
			logger.Info("task progress", "kind", e.Kind, "payload", e.Payload)
			return nil
		}),
	)
	if err != nil {
		return err
	}
	defer reg.Unsubscribe(monitor.Topic(), monitor.Name())

	if cfg.JournalPath != "" {
		j, err := journal.New(afero.NewOsFs(), cfg.JournalPath, logger)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		if _, err := reg.Subscribe(topics.TaskProcessUpdate, "journal",
			bus.WithHandler(j.Handler()),
		); err != nil {
			return err
		}
		defer reg.Unsubscribe(topics.TaskProcessUpdate, "journal")
	}

	if cfg.BridgeEnabled {
		b := bridge.New(reg, logger)
		if err := b.Forward(topics.TaskProcessUpdate, topics.WindowStatus); err != nil {
			return err
		}
		defer b.Close()
	}

	// Simulate the UI kicking off a task.
	start, err := bus.New(router.KindStartSelectedTask, map[string]any{"task_index": 0.0})
	if err != nil {
		return err
	}
	if err := reg.Publish(topics.FromUI, start); err != nil {
		return err
	}

	logger.Info("courier running, press ctrl-c to stop")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
