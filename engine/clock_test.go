package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// VIRTUAL CLOCK
// =============================================================================

func TestVirtualClock(t *testing.T) {
	start := engine.NewTimePoint(2025, time.January, 1)
	clock := engine.NewVirtualClock(start)

	assert.True(t, clock.Now().Equal(start))

	clock.Advance(48 * time.Hour)
	assert.True(t, clock.Now().Equal(start.AddDays(2)))

	target := engine.NewTimePoint(2025, time.June, 1)
	clock.Set(target)
	assert.True(t, clock.Now().Equal(target))
}

// =============================================================================
// EVENT QUEUE
// =============================================================================

func TestEventQueueOrdersByTime(t *testing.T) {
	q := engine.NewEventQueue()
	day := func(d int) engine.TimePoint { return engine.NewTimePoint(2025, time.March, d) }

	q.Push(engine.ScheduleEvent{At: day(3), Kind: engine.ScheduleStatementCut, AccountID: "a"})
	q.Push(engine.ScheduleEvent{At: day(1), Kind: engine.ScheduleAccrueInterest, AccountID: "a"})
	q.Push(engine.ScheduleEvent{At: day(2), Kind: engine.SchedulePaymentDue, AccountID: "a"})

	var popped []engine.ScheduleKind
	for {
		e := q.PopDue(day(31))
		if e == nil {
			break
		}
		popped = append(popped, e.Kind)
	}
	assert.Equal(t, []engine.ScheduleKind{
		engine.ScheduleAccrueInterest,
		engine.SchedulePaymentDue,
		engine.ScheduleStatementCut,
	}, popped)
}

func TestEventQueueKindPriorityAtSameInstant(t *testing.T) {
	// GIVEN four events due at the identical timestamp
	q := engine.NewEventQueue()
	at := engine.NewTimePoint(2025, time.March, 1)

	q.Push(engine.ScheduleEvent{At: at, Kind: engine.ScheduleAnnualFee, AccountID: "a"})
	q.Push(engine.ScheduleEvent{At: at, Kind: engine.SchedulePaymentDue, AccountID: "a"})
	q.Push(engine.ScheduleEvent{At: at, Kind: engine.ScheduleStatementCut, AccountID: "a"})
	q.Push(engine.ScheduleEvent{At: at, Kind: engine.ScheduleAccrueInterest, AccountID: "a"})

	// THEN accrual fires before the cut, the cut before the due-date job,
	// the due-date job before the annual fee
	var popped []engine.ScheduleKind
	for {
		e := q.PopDue(at)
		if e == nil {
			break
		}
		popped = append(popped, e.Kind)
	}
	assert.Equal(t, []engine.ScheduleKind{
		engine.ScheduleAccrueInterest,
		engine.ScheduleStatementCut,
		engine.SchedulePaymentDue,
		engine.ScheduleAnnualFee,
	}, popped)
}

func TestEventQueuePopDueLeavesFutureEvents(t *testing.T) {
	q := engine.NewEventQueue()
	now := engine.NewTimePoint(2025, time.March, 1)
	future := now.AddDays(5)

	q.Push(engine.ScheduleEvent{At: future, Kind: engine.ScheduleAccrueInterest, AccountID: "a"})

	assert.Nil(t, q.PopDue(now))
	assert.Equal(t, 1, q.Len())

	e := q.PopDue(future)
	require.NotNil(t, e)
	assert.True(t, e.At.Equal(future))
	assert.Equal(t, 0, q.Len())
}

func TestEventQueuePeek(t *testing.T) {
	q := engine.NewEventQueue()
	assert.Nil(t, q.Peek())

	at := engine.NewTimePoint(2025, time.March, 1)
	q.Push(engine.ScheduleEvent{At: at, Kind: engine.ScheduleAccrueInterest, AccountID: "a"})

	peeked := q.Peek()
	require.NotNil(t, peeked)
	assert.True(t, peeked.At.Equal(at))
	assert.Equal(t, 1, q.Len(), "peek must not remove the event")
}
