// Package shutdown coordinates graceful teardown of batch runs and child
// processes. A Coordinator is an explicit object injected where needed;
// there is no package-level registry.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// killGrace is how long a terminated child process gets before SIGKILL.
const killGrace = time.Second

// Stopper is anything that can halt new work. Batch handles implement it;
// Stop must be safe to call more than once.
type Stopper interface {
	Stop()
}

// Coordinator tracks running work and tears it down exactly once on
// signal or explicit request. Quiesce semantics: stoppers are told to
// stop accepting work, in-flight work is left to drain via its own
// context, and child processes are terminated then killed.
type Coordinator struct {
	mu       sync.Mutex
	stoppers []Stopper
	procs    []*exec.Cmd

	once   sync.Once
	done   chan struct{}
	logger *slog.Logger
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "shutdown"),
	}
}

// Register adds a stopper to the teardown set. Registering after shutdown
// stops it immediately so late-started work cannot leak.
func (c *Coordinator) Register(s Stopper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isShutdown() {
		s.Stop()
		return
	}
	c.stoppers = append(c.stoppers, s)
}

// RegisterProcess adds a child process to the teardown set.
func (c *Coordinator) RegisterProcess(cmd *exec.Cmd) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isShutdown() {
		terminate(cmd, c.logger)
		return
	}
	c.procs = append(c.procs, cmd)
}

// Notify installs SIGINT and SIGTERM handling for the life of ctx. The
// first signal triggers Shutdown; the returned context is cancelled when
// shutdown begins so callers can unwind.
func (c *Coordinator) Notify(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			c.logger.Info("signal received, shutting down", "signal", sig.String())
			c.Shutdown()
			cancel()
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCtx
}

// Shutdown tears everything down. Idempotent: concurrent and repeated
// calls collapse into one teardown pass.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		stoppers := c.stoppers
		procs := c.procs
		c.stoppers = nil
		c.procs = nil
		c.mu.Unlock()

		c.logger.Info("shutdown started",
			"stoppers", len(stoppers), "processes", len(procs))

		for _, s := range stoppers {
			s.Stop()
		}
		for _, cmd := range procs {
			terminate(cmd, c.logger)
		}

		c.logger.Info("shutdown complete")
	})
}

// Done is closed once shutdown has begun.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) isShutdown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// terminate sends SIGTERM, waits briefly, then SIGKILLs a still-running
// child.
func terminate(cmd *exec.Cmd, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return
	}

	waited := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(killGrace):
		logger.Warn("child process ignored SIGTERM, killing", "pid", pid)
		_ = cmd.Process.Kill()
	}
}
