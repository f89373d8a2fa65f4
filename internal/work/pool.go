package work

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/chorus/internal/logging"
)

// Pool runs submitted items with at most `workers` executing at once.
// Pending work sits in a priority heap; the pool is a concurrency
// limiter, not a queue with delivery guarantees. Items still pending
// at shutdown are dropped and the owning tier resubmits next run.
type Pool struct {
	mu      sync.Mutex
	workers int

	pending   priorityQueue
	active    map[string]*Item
	completed *RingBuffer

	// kick wakes the dispatcher when work arrives or a slot frees.
	kick chan struct{}

	totalCreated   atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	nextID         atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // dispatcher
	execWG sync.WaitGroup // in-flight items
}

// NewPool creates a pool with the given concurrency cap.
// workers <= 0 falls back to runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers:   workers,
		active:    make(map[string]*Item),
		completed: NewRingBuffer(100),
		kick:      make(chan struct{}, 1),
	}
}

// Start launches the dispatcher.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.dispatch()

	logging.Info("work pool started", "workers", p.workers)
}

// Stop shuts the pool down: no new dispatches, in-flight items finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.execWG.Wait()
	logging.Info("work pool stopped",
		"created", p.totalCreated.Load(),
		"completed", p.totalCompleted.Load(),
		"failed", p.totalFailed.Load())
}

// Submit queues a work item and returns its id.
func (p *Pool) Submit(item *Item) string {
	item.ID = fmt.Sprintf("w%d", p.nextID.Add(1))
	item.Status = StatusPending
	item.CreatedAt = time.Now()

	p.mu.Lock()
	heap.Push(&p.pending, item)
	p.mu.Unlock()
	p.totalCreated.Add(1)

	logging.Debug("work queued", "id", item.ID, "type", item.Type, "desc", item.Description)

	select {
	case p.kick <- struct{}{}:
	default:
	}
	return item.ID
}

// SubmitFunc is a convenience for plain work functions.
func (p *Pool) SubmitFunc(typ Type, desc string, fn func() (string, error)) string {
	return p.Submit(&Item{Type: typ, Description: desc, workFn: fn})
}

// dispatch moves pending items into execution while slots are free. A
// slow ticker backstops missed kicks.
func (p *Pool) dispatch() {
	defer p.wg.Done()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.kick:
		case <-ticker.C:
		}
		p.drainPending()
	}
}

func (p *Pool) drainPending() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.pending.Len() > 0 && len(p.active) < p.workers {
		item := heap.Pop(&p.pending).(*Item)
		item.Status = StatusActive
		item.StartedAt = time.Now()
		p.active[item.ID] = item

		p.execWG.Add(1)
		go p.execute(item)
	}
}

func (p *Pool) execute(item *Item) {
	defer p.execWG.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("work panicked", "id", item.ID, "panic", r)
			p.complete(item, "", fmt.Errorf("panic: %v", r))
		}
	}()

	if item.workFn == nil {
		p.complete(item, "", fmt.Errorf("no work function"))
		return
	}
	result, err := item.workFn()
	p.complete(item, result, err)
}

func (p *Pool) complete(item *Item, result string, err error) {
	p.mu.Lock()
	item.FinishedAt = time.Now()
	item.Result = result
	item.Error = err
	if err != nil {
		item.Status = StatusFailed
	} else {
		item.Status = StatusComplete
	}
	delete(p.active, item.ID)
	p.completed.Push(item)
	p.mu.Unlock()

	if err != nil {
		p.totalFailed.Add(1)
		logging.Warn("work failed", "id", item.ID, "type", item.Type,
			"desc", item.Description, "error", err, "duration", item.Duration())
	} else {
		p.totalCompleted.Add(1)
		logging.Debug("work completed", "id", item.ID, "type", item.Type,
			"result", result, "duration", item.Duration())
	}

	// A slot freed up.
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Snapshot copies the current pool state. Pending items come back in
// heap order, not sorted.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make([]*Item, len(p.pending))
	copy(pending, p.pending)

	active := make([]*Item, 0, len(p.active))
	for _, item := range p.active {
		active = append(active, item)
	}

	return Snapshot{
		Pending:   pending,
		Active:    active,
		Completed: p.completed.All(),
		Stats:     p.statsLocked(),
	}
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	return Stats{
		TotalCreated:   p.totalCreated.Load(),
		TotalCompleted: p.totalCompleted.Load(),
		TotalFailed:    p.totalFailed.Load(),
		WorkersActive:  len(p.active),
		WorkersTotal:   p.workers,
		PendingCount:   len(p.pending),
	}
}

// PendingCount reports queued-but-unstarted items. Tiers use it to
// defer a batch rather than pile onto a saturated pool.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ActiveCount reports in-flight items.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
