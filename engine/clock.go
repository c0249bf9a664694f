/*
clock.go - Logical time and the schedule event queue

PURPOSE:
  Schedule-driven state transitions (daily interest accrual, SCOD, PDD,
  annual fee) map to a time-ordered event queue over a logical clock.
  Tests advance a VirtualClock; production wraps wall-clock time. Handlers
  are idempotent per logical day/cycle, so tolerating execution lag relative
  to the logical due instant never changes the outcome.

ORDERING:
  Events are fired in timestamp order. At the same instant, accrual fires
  before statement cut, and statement cut before payment due. A payment-due
  handler never re-enters statement-cut logic: the two are always separate
  events on this queue.

SEE ALSO:
  - card/service.go: Event generation per account parameters
  - api/scheduler.go: Wall-clock driver
*/
package engine

import (
	"container/heap"
	"sync"
	"time"
)

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies the current logical time.
type Clock interface {
	Now() TimePoint
}

// SystemClock follows wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() TimePoint { return Now() }

// VirtualClock is a settable clock for tests and scenario replays.
type VirtualClock struct {
	mu  sync.RWMutex
	now TimePoint
}

func NewVirtualClock(start TimePoint) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() TimePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *VirtualClock) Set(t TimePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *VirtualClock) Advance(d time.Duration) TimePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// =============================================================================
// SCHEDULE EVENTS
// =============================================================================

type ScheduleKind string

const (
	ScheduleAccrueInterest ScheduleKind = "accrue_interest"
	ScheduleStatementCut   ScheduleKind = "statement_cut"
	SchedulePaymentDue     ScheduleKind = "payment_due"
	ScheduleAnnualFee      ScheduleKind = "annual_fee"
)

// firing priority at identical timestamps
var scheduleOrder = map[ScheduleKind]int{
	ScheduleAccrueInterest: 0,
	ScheduleStatementCut:   1,
	SchedulePaymentDue:     2,
	ScheduleAnnualFee:      3,
}

// ScheduleEvent is a single due firing for one account.
type ScheduleEvent struct {
	At        TimePoint
	Kind      ScheduleKind
	AccountID AccountID

	// Key identifies the logical firing (e.g. "scod:2025-03-01") for
	// idempotence marks.
	Key string
}

// =============================================================================
// EVENT QUEUE - Time-ordered min-queue of schedule events
// =============================================================================

type EventQueue struct {
	mu sync.Mutex
	h  eventHeap
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	heap.Init(&q.h)
	return q
}

func (q *EventQueue) Push(e ScheduleEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, e)
}

// PopDue removes and returns the next event at or before t, or nil.
func (q *EventQueue) PopDue(t TimePoint) *ScheduleEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 || q.h[0].At.After(t) {
		return nil
	}
	e := heap.Pop(&q.h).(ScheduleEvent)
	return &e
}

// Peek returns the next event without removing it, or nil if empty.
func (q *EventQueue) Peek() *ScheduleEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	e := q.h[0]
	return &e
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

type eventHeap []ScheduleEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if !h[i].At.Equal(h[j].At) {
		return h[i].At.Before(h[j].At)
	}
	return scheduleOrder[h[i].Kind] < scheduleOrder[h[j].Kind]
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(ScheduleEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
