// Package router demultiplexes inbound command and status envelopes to named
// handlers and republishes derived events on other topics.
package router

import (
	"fmt"
	"log/slog"

	"github.com/nfrund/courier/internal/bus"
	"github.com/nfrund/courier/internal/topics"
)

// subscriberName identifies the router's mailboxes in the registry.
const subscriberName = "router"

// Envelope kinds accepted from the presentation layer.
const (
	KindStartSelectedTask     = "start_selected_task"
	KindStopSelectedTask      = "stop_selected_task"
	KindStartAutoTask         = "start_auto_task"
	KindStartAdvancedAutoTask = "start_advanced_auto_task"
	KindResizeWindows         = "resize_windows"
	KindCloseWindows          = "close_windows"
	KindAutoLogin             = "auto_login"
)

// Envelope kinds accepted from running tasks.
const (
	KindTaskStarted  = "task_started"
	KindTaskFinished = "task_finished"
	KindTaskProcess  = "task_process"
	KindWindowStatus = "window_status"
)

// Router is a privileged subscriber on the ui and task inbound topics. Each
// received envelope is looked up in a closed per-topic table by its kind; the
// matched handler republishes a derived envelope on the corresponding
// outbound topic. Unmatched kinds are logged and dropped, not errors.
//
// The router subscribes in fan-out dispatch mode: its handlers only
// republish, so downstream ordering is re-established by each downstream
// subscription's own discipline. Republication happens on the router's
// consuming goroutines and holds no registry locks.
type Router struct {
	reg    *bus.Registry
	logger *slog.Logger

	uiRoutes   map[string]topics.Topic
	taskRoutes map[string]topics.Topic

	uiSub   *bus.Subscription
	taskSub *bus.Subscription
}

// New builds a router over the registry with the full command and status
// tables wired.
func New(reg *bus.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		reg:    reg,
		logger: logger.With("component", "router"),
		uiRoutes: map[string]topics.Topic{
			KindStartSelectedTask:     topics.SelectedTaskStart,
			KindStopSelectedTask:      topics.SelectedTaskStop,
			KindStartAutoTask:         topics.AutoTaskStart,
			KindStartAdvancedAutoTask: topics.AdvancedAutoTaskStart,
			KindResizeWindows:         topics.ResizeWindow,
			KindCloseWindows:          topics.CloseWindow,
			KindAutoLogin:             topics.AutoLogin,
		},
		taskRoutes: map[string]topics.Topic{
			KindTaskStarted:  topics.TaskProcessUpdate,
			KindTaskFinished: topics.TaskProcessUpdate,
			KindTaskProcess:  topics.TaskProcessUpdate,
			KindWindowStatus: topics.WindowStatus,
		},
	}
}

// Start subscribes the router to its inbound topics.
func (rt *Router) Start() error {
	uiSub, err := rt.reg.Subscribe(topics.FromUI, subscriberName,
		bus.WithHandler(rt.dispatch(rt.uiRoutes, "ui")),
		bus.WithDispatch(bus.DispatchFanout),
	)
	if err != nil {
		return fmt.Errorf("subscribing router to %s: %w", topics.FromUI, err)
	}
	taskSub, err := rt.reg.Subscribe(topics.FromTask, subscriberName,
		bus.WithHandler(rt.dispatch(rt.taskRoutes, "task")),
		bus.WithDispatch(bus.DispatchFanout),
	)
	if err != nil {
		rt.reg.Unsubscribe(topics.FromUI, subscriberName)
		return fmt.Errorf("subscribing router to %s: %w", topics.FromTask, err)
	}
	rt.uiSub = uiSub
	rt.taskSub = taskSub
	rt.logger.Info("router started", "topics", []string{topics.FromUI.Name(), topics.FromTask.Name()})
	return nil
}

// Stop unsubscribes the router and waits for its workers to terminate.
func (rt *Router) Stop() {
	rt.reg.Unsubscribe(topics.FromUI, subscriberName)
	rt.reg.Unsubscribe(topics.FromTask, subscriberName)
	if rt.uiSub != nil {
		<-rt.uiSub.Done()
	}
	if rt.taskSub != nil {
		<-rt.taskSub.Done()
	}
	rt.logger.Info("router stopped")
}

// dispatch builds the handler for one inbound topic's routing table.
func (rt *Router) dispatch(routes map[string]topics.Topic, source string) bus.Handler {
	return func(e bus.Envelope) error {
		target, ok := routes[e.Kind]
		if !ok {
			rt.logger.Warn("unmatched envelope kind, dropping", "source", source, "kind", e.Kind, "id", e.ID)
			return nil
		}
		derived, err := bus.New(e.Kind, e.Payload)
		if err != nil {
			return err
		}
		rt.logger.Info("routing envelope", "source", source, "kind", e.Kind, "target", target.Name())
		return rt.reg.Publish(target, derived)
	}
}
