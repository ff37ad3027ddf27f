// Package shutdown provides the process-wide stop signal and the task group
// every long-running loop is joined through.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator is set once and never reset. Loops observe it through Context.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	group  errgroup.Group
	logger *zap.Logger
}

func New(parent context.Context, logger *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel, logger: logger}
}

// Context is cancelled when shutdown is triggered.
func (c *Coordinator) Context() context.Context { return c.ctx }

func (c *Coordinator) Done() <-chan struct{} { return c.ctx.Done() }

// Stopping reports whether shutdown has been triggered.
func (c *Coordinator) Stopping() bool { return c.ctx.Err() != nil }

// Trigger starts shutdown. Safe to call any number of times.
func (c *Coordinator) Trigger(reason string) {
	c.once.Do(func() {
		c.logger.Info("Shutdown triggered", zap.String("reason", reason))
		c.cancel()
	})
}

// Go runs fn as a joined task. A task returning an error triggers shutdown,
// since every task started here is one the process cannot run without.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) {
	c.group.Go(func() error {
		c.logger.Debug("Task started", zap.String("task", name))
		err := fn(c.ctx)
		if err != nil {
			c.logger.Error("Task failed", zap.String("task", name), zap.Error(err))
			c.Trigger(name + " failed")
		} else {
			c.logger.Debug("Task stopped", zap.String("task", name))
		}
		return err
	})
}

// Wait blocks until every task has returned and yields the first error.
func (c *Coordinator) Wait() error {
	err := c.group.Wait()
	c.Trigger("all tasks finished")
	return err
}

// NotifyOnSignal triggers shutdown on SIGINT/SIGTERM.
func (c *Coordinator) NotifyOnSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			c.Trigger("signal " + sig.String())
		case <-c.ctx.Done():
		}
	}()
}
