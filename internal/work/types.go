// Package work provides a bounded worker pool with a priority queue.
// Costly async jobs (external verification calls, embedding backfills)
// flow through one pool so concurrency stays hard-capped and every job
// shows up in the logs with timing and outcome.
package work

import (
	"fmt"
	"time"
)

// Type categorizes work items for filtering in logs and stats.
type Type string

const (
	TypeVerify Type = "verify" // external fact-check calls
	TypeEmbed  Type = "embed"  // embedding backfill
	TypeOther  Type = "other"  // catch-all
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Item is one unit of async work.
type Item struct {
	ID          string
	Type        Type
	Status      Status
	Description string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	// Result is a short human summary ("verified 3 claims").
	Result string
	Error  error

	// Source carries context for logs (event id, source domain).
	Source string

	// Priority orders the pending queue; higher runs first, FIFO
	// within a priority.
	Priority int

	workFn    func() (string, error)
	heapIndex int
}

// Duration returns how long the work took, or has been running.
func (i *Item) Duration() time.Duration {
	if i.FinishedAt.IsZero() {
		if i.StartedAt.IsZero() {
			return 0
		}
		return time.Since(i.StartedAt)
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// Snapshot is a point-in-time copy of the pool state.
type Snapshot struct {
	Pending   []*Item
	Active    []*Item
	Completed []*Item // newest first
	Stats     Stats
}

// Stats tracks pool counters.
type Stats struct {
	TotalCreated   int64
	TotalCompleted int64
	TotalFailed    int64
	WorkersActive  int
	WorkersTotal   int
	PendingCount   int
}

func (s Stats) String() string {
	return fmt.Sprintf("active: %d  pending: %d  done: %d  failed: %d",
		s.WorkersActive, s.PendingCount, s.TotalCompleted, s.TotalFailed)
}
