package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Waldo/internal/scanner"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRun is returned when Run is called twice on one Coordinator.
var ErrAlreadyRun = errors.New("coordinator already ran")

// State is the coordinator lifecycle.
type State int32

const (
	StateIdle State = iota
	StateEnumerating
	StateDraining
	StateShuttingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting-down"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// queueSize bounds the FIFO; enumeration blocks when workers fall behind.
const queueSize = 2048

var statsInterval = 500 * time.Millisecond

// item is a queue entry: a task or a stop sentinel.
type item struct {
	task scanner.Task
	stop bool
}

// Coordinator owns the queue and a fixed set of workers.
type Coordinator struct {
	cfg   Config
	sink  scanner.Sink
	stats *ScanStats
	proc  *fileProcessor
	state atomic.Int32
}

var _ scanner.Scanner = (*Coordinator)(nil)

func NewCoordinator(cfg Config, sink scanner.Sink, stats *ScanStats) (*Coordinator, error) {
	if cfg.Patterns == nil {
		return nil, startupErr("coordinator", errors.New("pattern set is required"))
	}
	if sink == nil {
		return nil, startupErr("coordinator", errors.New("sink is required"))
	}
	if stats == nil {
		stats = &ScanStats{}
	}
	cfg = cfg.withDefaults()
	if cfg.Patterns.Catalog() && cfg.Mode == ModeLines {
		logrus.Info("No dirty words loaded, matching every eligible token")
		cfg.Mode = ModeWords
	}
	c := &Coordinator{cfg: cfg, sink: sink, stats: stats}
	c.proc = &fileProcessor{cfg: &c.cfg, sink: sink, stats: stats}
	return c, nil
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	logrus.WithField("state", s).Debug("Coordinator state")
}

// Run enumerates src into the queue, waits until every task is done and
// stops the workers. Per-file failures go to the sink; the returned error
// is the source's failure or ctx.Err() after cancellation.
func (c *Coordinator) Run(ctx context.Context, src scanner.Source) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateEnumerating)) {
		return ErrAlreadyRun
	}
	c.stats.Start()

	n := c.cfg.Workers
	pool, err := ants.NewPool(n, ants.WithPanicHandler(func(p interface{}) {
		logrus.WithField("panic", p).Error("worker crashed")
	}))
	if err != nil {
		c.setState(StateDone)
		return startupErr("pool", err)
	}
	defer pool.Release()

	queue := make(chan item, max(queueSize, n))
	var tasks, workers sync.WaitGroup

	workers.Add(n)
	for i := 0; i < n; i++ {
		if err := pool.Submit(func() { c.worker(ctx, queue, &tasks, &workers) }); err != nil {
			// unreachable with a fresh pool of size n
			workers.Done()
			logrus.WithError(err).Error("submit worker")
		}
	}

	done := make(chan struct{})
	go c.logStats(done)
	defer close(done)

	enqueue := func(t scanner.Task) bool {
		if ctx.Err() != nil {
			return false
		}
		tasks.Add(1)
		select {
		case queue <- item{task: t}:
			c.stats.FilesFound.Add(1)
			return true
		case <-ctx.Done():
			tasks.Done()
			return false
		}
	}

	logrus.WithField("workers", n).Info("Scan started")
	srcErr := src(ctx, enqueue)

	c.setState(StateDraining)
	tasks.Wait()

	c.setState(StateShuttingDown)
	for i := 0; i < n; i++ {
		queue <- item{stop: true}
	}
	workers.Wait()
	c.setState(StateDone)

	logrus.WithFields(logrus.Fields{
		"found":   c.stats.FilesFound.Load(),
		"scanned": c.stats.FilesScanned.Load(),
		"skipped": c.stats.FilesSkipped.Load(),
		"errors":  c.stats.Errors.Load(),
		"matches": c.stats.Matches.Load(),
		"elapsed": c.stats.Elapsed(),
	}).Info("Scan finished")

	if srcErr != nil && !errors.Is(srcErr, context.Canceled) && !errors.Is(srcErr, context.DeadlineExceeded) {
		return srcErr
	}
	return ctx.Err()
}

func (c *Coordinator) worker(ctx context.Context, queue <-chan item, tasks, workers *sync.WaitGroup) {
	defer workers.Done()
	for it := range queue {
		if it.stop {
			return
		}
		c.runTask(ctx, it.task, tasks)
	}
}

// runTask settles the task barrier even when a progress callback or the
// sink panics, so the worker keeps consuming and Run can drain.
func (c *Coordinator) runTask(ctx context.Context, t scanner.Task, tasks *sync.WaitGroup) {
	defer tasks.Done()
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("file", t.Display()).Errorf("Task handling panicked: %v", r)
		}
	}()
	c.handle(ctx, t)
}

// handle processes one task. It never panics and never returns an error:
// failures are written to the sink.
func (c *Coordinator) handle(ctx context.Context, t scanner.Task) {
	defer func() {
		if c.cfg.Progress != nil {
			c.cfg.Progress(t)
		}
	}()
	if ctx.Err() != nil {
		c.stats.FilesSkipped.Add(1)
		return
	}

	err := c.safeProcess(ctx, t)
	switch {
	case err == nil:
		c.stats.FilesScanned.Add(1)
	case ctx.Err() != nil:
		// cut short by cancellation
		c.stats.FilesSkipped.Add(1)
	default:
		c.stats.Errors.Add(1)
		logrus.WithFields(logrus.Fields{"file": t.Display(), "err": err}).Warn("Skipping file")
		c.sink.RecordError(t.Display(), err)
	}
}

func (c *Coordinator) safeProcess(ctx context.Context, t scanner.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.proc.process(ctx, t)
}

func (c *Coordinator) logStats(done <-chan struct{}) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			logrus.Infof("Stats: found=%d processed=%d matches=%d errors=%d",
				c.stats.FilesFound.Load(), c.stats.Processed(), c.stats.Matches.Load(), c.stats.Errors.Load())
		case <-done:
			return
		}
	}
}
