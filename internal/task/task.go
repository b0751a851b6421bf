// Package task runs background goroutines with a shared lifecycle.
package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-mdb/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func is the body of a task. It should return once ctx is done.
type Func func(ctx context.Context)

// Manager manages the lifecycle of background tasks.
//
// Every task runs with its own context derived from the manager context, so
// it can be canceled alone or together with every other task through Stop.
// A panic inside a task is recovered and logged.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	cancel, err := mgr.Go("authorize", func(ctx context.Context) {
//	    // ... work until ctx is done ...
//	})
//	// ...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager whose tasks end when ctx ends.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Go starts fn in a new goroutine and returns a function that cancels it.
func (mgr *Manager) Go(name string, fn Func) (context.CancelFunc, error) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	parent := mgr.getContext()
	if parent.Err() != nil {
		return nil, ErrStopped
	}

	ctx, cancel := context.WithCancel(parent)

	mgr.wg.Add(1)
	mgr.count.Add(1)
	mgr.logger.Debug("task: start", "name", name)

	go func() {
		defer func() {
			cancel()
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task: done", "name", name)
		}()

		mgr.callWithRecover(name, func() { fn(ctx) })
	}()

	return cancel, nil
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("task: panic", "name", name, "panic", r)
		}
	}()

	fn()
}

// Stop cancels every running task.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for every task to return. Afterwards the manager accepts new
// tasks again, unless its parent context has ended.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}
