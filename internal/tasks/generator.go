// Package tasks hosts the demo business-logic collaborator: a generator that
// reacts to start/stop commands from the bus and publishes synthetic task
// data back onto it. It talks to the rest of the system only through the
// publish/subscribe contract.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/nfrund/courier/internal/bus"
	"github.com/nfrund/courier/internal/module"
	"github.com/nfrund/courier/internal/topics"
)

// subscriberName identifies the generator's mailboxes in the registry.
const subscriberName = "task-generator"

// Envelope kinds published on the from.task topic.
const (
	KindTaskStarted  = "task_started"
	KindTaskFinished = "task_finished"
	KindTaskProcess  = "task_process"
	KindDataUpdate   = "data_update"
	KindStatusUpdate = "status_update"
)

// statusEvery controls how many data emissions pass between status updates.
const statusEvery = 5

// Generator produces random task data on an interval once started. The work
// loop accepts a context and polls it between iterations; there is no forced
// termination path.
type Generator struct {
	module.BaseModule

	reg      *bus.Registry
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	startSub *bus.Subscription
	stopSub  *bus.Subscription
}

// Compile-time interface compliance check
var _ module.Module = (*Generator)(nil)

// New builds a generator publishing on the given registry.
func New(reg *bus.Registry, interval time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		reg:      reg,
		logger:   logger.With("component", "tasks"),
		interval: interval,
	}
}

// Name implements module.Module.
func (g *Generator) Name() string { return "tasks" }

// Boot subscribes the generator to its command topics. Commands are handled
// serially so start/stop pairs apply in the order they were published.
func (g *Generator) Boot(ctx context.Context) error {
	startSub, err := g.reg.Subscribe(topics.SelectedTaskStart, subscriberName,
		bus.WithHandler(func(e bus.Envelope) error { return g.StartWork(ctx, e.Payload) }),
	)
	if err != nil {
		return fmt.Errorf("subscribing generator to %s: %w", topics.SelectedTaskStart, err)
	}
	stopSub, err := g.reg.Subscribe(topics.SelectedTaskStop, subscriberName,
		bus.WithHandler(func(bus.Envelope) error { return g.StopWork() }),
	)
	if err != nil {
		g.reg.Unsubscribe(topics.SelectedTaskStart, subscriberName)
		return fmt.Errorf("subscribing generator to %s: %w", topics.SelectedTaskStop, err)
	}
	g.startSub = startSub
	g.stopSub = stopSub
	return nil
}

// StartWork launches the work loop. A second start while running is a no-op.
func (g *Generator) StartWork(ctx context.Context, command map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.logger.Debug("work loop already running, ignoring start")
		return nil
	}
	workCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.cancel = cancel
	g.loopDone = done

	taskIndex, _ := command["task_index"].(float64)
	go g.workLoop(workCtx, int(taskIndex), done)
	return nil
}

// StopWork cancels the work loop and waits for it to finish its current
// iteration.
func (g *Generator) StopWork() error {
	g.mu.Lock()
	cancel, done := g.cancel, g.loopDone
	g.cancel, g.loopDone = nil, nil
	g.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (g *Generator) workLoop(ctx context.Context, taskIndex int, done chan struct{}) {
	defer close(done)

	g.publish(KindTaskStarted, map[string]any{
		"task_index":    taskIndex,
		"is_doing_task": true,
		"task_process":  0.0,
	})

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			g.publish(KindTaskFinished, map[string]any{
				"task_index":    taskIndex,
				"is_doing_task": false,
				"task_process":  1.0,
			})
			g.publish(KindStatusUpdate, map[string]any{
				"status": fmt.Sprintf("processed %d values, stopped", count),
			})
			return
		case <-ticker.C:
			count++
			g.publish(KindDataUpdate, map[string]any{
				"task_index": taskIndex,
				"value":      rand.Intn(100) + 1,
				"emitted_at": time.Now().Format("15:04:05"),
			})
			if count%statusEvery == 0 {
				g.publish(KindStatusUpdate, map[string]any{
					"status": fmt.Sprintf("processed %d values", count),
				})
			}
		}
	}
}

func (g *Generator) publish(kind string, payload map[string]any) {
	e, err := bus.New(kind, payload)
	if err != nil {
		g.logger.Error("building task envelope", "kind", kind, "error", err)
		return
	}
	if err := g.reg.Publish(topics.FromTask, e); err != nil {
		g.logger.Error("publishing task envelope", "kind", kind, "error", err)
	}
}

// Shutdown stops the work loop and unsubscribes from the command topics.
func (g *Generator) Shutdown(ctx context.Context) error {
	if err := g.StopWork(); err != nil {
		return err
	}
	g.reg.Unsubscribe(topics.SelectedTaskStart, subscriberName)
	g.reg.Unsubscribe(topics.SelectedTaskStop, subscriberName)
	if g.startSub != nil {
		<-g.startSub.Done()
	}
	if g.stopSub != nil {
		<-g.stopSub.Done()
	}
	return nil
}
