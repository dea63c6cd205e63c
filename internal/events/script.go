package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
)

// DefaultScriptTimeout bounds a hook that has no timeout of its own.
const DefaultScriptTimeout = 30 * time.Second

// ScriptRunner executes script hooks in a bounded goroutine pool.
type ScriptRunner struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

// ScriptConfig describes a single script hook binding.
type ScriptConfig struct {
	Name    string
	Events  []string
	Command string
	Timeout time.Duration
}

// NewScriptRunner creates a new script runner with the given concurrency limit.
func NewScriptRunner(concurrency int, logger *slog.Logger) *ScriptRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ScriptRunner{
		logger: logger,
		sem:    make(chan struct{}, concurrency),
	}
}

// Run executes a script hook for the given event in a goroutine. The
// script gets the event as DHCPCORE_* environment variables and as JSON on
// stdin. When every slot is busy the execution is dropped.
func (r *ScriptRunner) Run(cfg ScriptConfig, evt Event) {
	select {
	case r.sem <- struct{}{}:
	default:
		metrics.HookExecutions.WithLabelValues("script", "dropped").Inc()
		r.logger.Warn("script hook pool full, dropping execution",
			"hook_name", cfg.Name,
			"event", string(evt.Type))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		if err := r.Execute(context.Background(), cfg, evt); err != nil {
			r.logger.Error("script hook failed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"event", string(evt.Type),
				"error", err)
		}
	}()
}

// Execute runs one script synchronously and returns its failure, if any.
func (r *ScriptRunner) Execute(ctx context.Context, cfg ScriptConfig, evt Event) error {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultScriptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jsonData, err := json.Marshal(&evt)
	if err != nil {
		return fmt.Errorf("marshalling event for stdin: %w", err)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)
	env := os.Environ()
	for k, v := range evt.ToEnvVars() {
		env = append(env, k+"="+v)
	}
	cmd.Env = append(env, "DHCPCORE_HOOK_NAME="+cfg.Name)
	cmd.Stdin = bytes.NewReader(jsonData)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)
	metrics.HookDuration.WithLabelValues("script").Observe(duration.Seconds())

	if err != nil {
		metrics.HookExecutions.WithLabelValues("script", "error").Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("killed after %s timeout", timeout)
		}
		return fmt.Errorf("%w (stderr: %q)", err, stderr.String())
	}

	metrics.HookExecutions.WithLabelValues("script", "success").Inc()
	r.logger.Debug("script hook completed",
		"hook_name", cfg.Name,
		"duration", duration.String(),
		"event", string(evt.Type))
	return nil
}

// Wait blocks until all running scripts complete.
func (r *ScriptRunner) Wait() {
	r.wg.Wait()
}
