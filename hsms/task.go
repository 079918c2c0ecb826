package hsms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fabwire/go-secs/logger"
	"golang.org/x/sync/errgroup"
)

// ErrTaskManagerStopped is returned when a task is started on a stopped TaskManager.
var ErrTaskManagerStopped = errors.New("task manager already stopped")

// TaskManager manages the goroutines serving a connection: the reconnect loop, the listener,
// the event dispatcher and so on.
//
// The goroutines share a context derived from the parent. Stop cancels it; a task returning
// an error from Go cancels it as well. Wait blocks until every task returned and then re-arms
// the manager for the next run.
//
//	taskMgr := hsms.NewTaskManager(ctx, logger)
//	_ = taskMgr.Go("connectLoop", func(ctx context.Context) error {
//	    // ... runs until ctx is done ...
//	    return nil
//	})
//	taskMgr.Stop()
//	_ = taskMgr.Wait()
type TaskManager struct {
	pctx   context.Context
	logger logger.Logger
	count  atomic.Int32

	mu     sync.RWMutex // protects group, ctx and cancel
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskManager creates a new TaskManager with ctx as the parent context.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.reset()

	return mgr
}

func (mgr *TaskManager) reset() {
	ctx, cancel := context.WithCancel(mgr.pctx)
	mgr.group, mgr.ctx = errgroup.WithContext(ctx)
	mgr.cancel = cancel
}

// Context returns the context shared by the running tasks.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Go runs fn once on a new goroutine. A non-nil error cancels every task of the manager and
// is returned by Wait.
func (mgr *TaskManager) Go(name string, fn func(ctx context.Context) error) error {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	if mgr.ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrTaskManagerStopped)
	}

	ctx := mgr.ctx
	mgr.count.Add(1)
	mgr.logger.Debug("start task", "name", name)

	mgr.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task", "name", name, "panic", r)
				err = fmt.Errorf("task %s panic: %v", name, r)
			}
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		return fn(ctx)
	})

	return nil
}

// Stop signals all running tasks.
func (mgr *TaskManager) Stop() {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	mgr.cancel()
}

// Wait waits for all tasks to terminate and returns the first task error, then re-arms the
// manager so tasks can be started again.
func (mgr *TaskManager) Wait() error {
	mgr.mu.RLock()
	group := mgr.group
	mgr.mu.RUnlock()

	err := group.Wait()

	mgr.mu.Lock()
	mgr.cancel()
	mgr.reset()
	mgr.mu.Unlock()

	return err
}

// TaskCount returns the number of running tasks.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}
