package events

import (
	"log/slog"
	"strings"
)

// Dispatcher feeds bus events to the script hooks that asked for them. A
// failing hook is logged and otherwise ignored.
type Dispatcher struct {
	bus    *Bus
	runner *ScriptRunner
	logger *slog.Logger
	hooks  []ScriptConfig
	sub    chan Event
	quit   chan struct{}
}

func NewDispatcher(bus *Bus, logger *slog.Logger, scriptConcurrency int) *Dispatcher {
	return &Dispatcher{
		bus:    bus,
		runner: NewScriptRunner(scriptConcurrency, logger),
		logger: logger,
		sub:    bus.Subscribe(1000),
		quit:   make(chan struct{}),
	}
}

// AddScript registers a hook. It must be called before Start.
func (d *Dispatcher) AddScript(cfg ScriptConfig) {
	d.hooks = append(d.hooks, cfg)
}

// Start runs until Stop; callers run it on its own goroutine.
func (d *Dispatcher) Start() {
	d.logger.Info("event dispatcher started", "script_hooks", len(d.hooks))
	for {
		select {
		case <-d.quit:
			return
		case evt, ok := <-d.sub:
			if !ok {
				return
			}
			for _, h := range d.hooks {
				if h.Wants(evt.Type) {
					d.runner.Run(h, evt)
				}
			}
		}
	}
}

// Stop detaches from the bus and waits for hooks already running.
func (d *Dispatcher) Stop() {
	close(d.quit)
	d.bus.Unsubscribe(d.sub)
	d.runner.Wait()
	d.logger.Info("event dispatcher stopped")
}

// Wants reports whether the hook subscribes to t. Patterns are exact names,
// "*", or a "family.*" prefix; no patterns means every event.
func (c ScriptConfig) Wants(t EventType) bool {
	if len(c.Events) == 0 {
		return true
	}
	name := string(t)
	for _, p := range c.Events {
		if p == "*" || p == name {
			return true
		}
		if family, ok := strings.CutSuffix(p, "*"); ok && strings.HasSuffix(family, ".") && strings.HasPrefix(name, family) {
			return true
		}
	}
	return false
}
