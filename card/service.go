/*
service.go - Account service and schedule driver

PURPOSE:
  The Service owns the account registry, the entry store, and the schedule
  event queue. It is the single entry point the API and the scheduler use:
  postings are applied strictly in timestamp order per account, with every
  schedule firing due at or before a batch's value timestamp applied first,
  so a posting always sees the statements and accruals that logically
  precede it.

SCHEDULE EVENTS PER ACCOUNT:
  00:00:01 daily      interest accrual
  00:00:02 cut days   statement cut (SCOD)
  00:00:02 due days   payment due processing (PDD)
  00:00:03 anniversaries  annual fee

  Each firing is idempotent (per-day / per-cycle keys); re-firing after a
  lag is tolerated and resolves against live balances.
*/
package card

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// schedule-time offsets into the firing day
const (
	accrualOffset   = 1 * time.Second
	statementOffset = 2 * time.Second
	annualFeeOffset = 3 * time.Second
)

// ErrCloseNotEligible rejects closure while any balance or authorization is
// outstanding.
var ErrCloseNotEligible = errors.New("account has outstanding balances or open authorizations")

// Service coordinates accounts, their ledgers, and schedule firings.
type Service struct {
	mu    sync.Mutex
	store engine.Store
	clock engine.Clock
	queue *engine.EventQueue

	// Optional store capabilities, discovered from the entry store. A store
	// without them runs in-process only: schedule marks live in each
	// account's map and nothing survives a restart.
	archive engine.ArchiveStore
	marks   engine.MarkStore

	accounts map[engine.AccountID]*Account

	notifications []StatementNotification
	notify        func(StatementNotification)
}

func NewService(store engine.Store, clock engine.Clock) *Service {
	s := &Service{
		store:    store,
		clock:    clock,
		queue:    engine.NewEventQueue(),
		accounts: make(map[engine.AccountID]*Account),
	}
	if archive, ok := store.(engine.ArchiveStore); ok {
		s.archive = archive
	}
	if marks, ok := store.(engine.MarkStore); ok {
		s.marks = marks
	}
	return s
}

// OnStatement registers a statement-notification sink.
func (s *Service) OnStatement(fn func(StatementNotification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// OpenAccount creates an account, persists its record, and seeds its
// schedule.
func (s *Service) OpenAccount(ctx context.Context, id engine.AccountID, inst InstanceParams, tpl TemplateParams, openedAt engine.TimePoint) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[id]; exists {
		return nil, fmt.Errorf("account %s already open", id)
	}

	ledger := engine.NewLedger(s.store, inst.Denomination)
	acct := NewAccount(id, inst, tpl, openedAt, ledger)
	acct.marks = s.marks
	if err := s.persistAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("persist account %s: %w", id, err)
	}
	s.accounts[id] = acct

	// First accrual the day after opening, first cut a month out, first
	// annual fee on the first anniversary.
	s.pushAccrual(id, openedAt.StartOfDay().AddDays(1))
	s.pushStatementCut(acct, acct.NextSCOD(openedAt))
	s.pushAnnualFee(acct, openedAt.Year()+1)
	return acct, nil
}

// Accounts returns all open accounts.
func (s *Service) Accounts() []*Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Account returns an open account.
func (s *Service) Account(id engine.AccountID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, engine.ErrAccountNotFound
	}
	return acct, nil
}

// ActivateFlag applies an external flag event.
func (s *Service) ActivateFlag(ctx context.Context, id engine.AccountID, name string, expiresAt engine.TimePoint) error {
	acct, err := s.Account(id)
	if err != nil {
		return err
	}
	acct.Flags.Activate(name, expiresAt)
	return s.persistAccount(ctx, acct)
}

// ExpireFlag removes a flag.
func (s *Service) ExpireFlag(ctx context.Context, id engine.AccountID, name string) error {
	acct, err := s.Account(id)
	if err != nil {
		return err
	}
	acct.Flags.Expire(name)
	return s.persistAccount(ctx, acct)
}

// AmendCreditLimit applies an instance-parameter change event.
func (s *Service) AmendCreditLimit(ctx context.Context, id engine.AccountID, limit decimal.Decimal) error {
	acct, err := s.Account(id)
	if err != nil {
		return err
	}
	acct.AmendCreditLimit(limit)
	return s.persistAccount(ctx, acct)
}

// CloseAccount cuts the final statement for a zeroed account. A nil
// notification means today's statement was already cut.
func (s *Service) CloseAccount(ctx context.Context, id engine.AccountID, at engine.TimePoint) (*StatementNotification, error) {
	acct, err := s.Account(id)
	if err != nil {
		return nil, err
	}
	if !acct.CloseEligible() {
		return nil, ErrCloseNotEligible
	}
	notif, err := acct.CutStatement(ctx, at, true)
	if err != nil || notif == nil {
		return nil, err
	}
	if err := s.persistLastStatement(ctx, acct); err != nil {
		return nil, err
	}
	s.recordNotification(*notif)
	return notif, nil
}

// =============================================================================
// POSTINGS
// =============================================================================

// SubmitBatch applies all schedule firings logically due before the batch,
// then processes the batch against live balances.
func (s *Service) SubmitBatch(ctx context.Context, id engine.AccountID, batch PostingBatch) (*BatchResult, error) {
	acct, err := s.Account(id)
	if err != nil {
		return nil, err
	}
	if err := s.AdvanceTo(ctx, batch.ValueTimestamp); err != nil {
		return nil, err
	}
	return acct.ProcessBatch(ctx, batch)
}

// =============================================================================
// SCHEDULE DRIVING
// =============================================================================

// Tick fires everything due at the current clock time. Called by the
// wall-clock scheduler.
func (s *Service) Tick(ctx context.Context) error {
	return s.AdvanceTo(ctx, s.clock.Now())
}

// AdvanceTo fires all schedule events due at or before t, in timestamp
// order.
func (s *Service) AdvanceTo(ctx context.Context, t engine.TimePoint) error {
	for {
		e := s.queue.PopDue(t)
		if e == nil {
			return nil
		}
		if err := s.dispatch(ctx, *e); err != nil {
			return err
		}
	}
}

func (s *Service) dispatch(ctx context.Context, e engine.ScheduleEvent) error {
	acct, err := s.Account(e.AccountID)
	if err != nil {
		return err
	}

	switch e.Kind {
	case engine.ScheduleAccrueInterest:
		if err := acct.AccrueInterest(ctx, e.At); err != nil {
			return err
		}
		s.pushAccrual(e.AccountID, e.At.AddDays(1))

	case engine.ScheduleStatementCut:
		notif, err := acct.CutStatement(ctx, e.At, false)
		if err != nil {
			return err
		}
		if notif != nil {
			if err := s.persistLastStatement(ctx, acct); err != nil {
				return err
			}
			s.recordNotification(*notif)
			s.pushPaymentDue(acct, notif.PaymentDueAt)
		}
		s.pushStatementCut(acct, acct.NextSCOD(e.At))

	case engine.SchedulePaymentDue:
		if err := acct.ProcessPaymentDue(ctx, e.At); err != nil {
			return err
		}

	case engine.ScheduleAnnualFee:
		if err := acct.ChargeAnnualFee(ctx, e.At); err != nil {
			return err
		}
		s.pushAnnualFee(acct, e.At.Year()+1)
	}
	return nil
}

func (s *Service) recordNotification(n StatementNotification) {
	s.mu.Lock()
	sink := s.notify
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
	if sink != nil {
		sink(n)
	}
}

// Notifications returns all statement notifications emitted so far.
func (s *Service) Notifications() []StatementNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatementNotification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Service) pushAccrual(id engine.AccountID, day engine.TimePoint) {
	at := day.StartOfDay().Add(accrualOffset)
	s.queue.Push(engine.ScheduleEvent{
		At: at, Kind: engine.ScheduleAccrueInterest, AccountID: id,
		Key: "accrue:" + at.DateString(),
	})
}

func (s *Service) pushStatementCut(acct *Account, cut engine.TimePoint) {
	at := cut.StartOfDay().Add(statementOffset)
	s.queue.Push(engine.ScheduleEvent{
		At: at, Kind: engine.ScheduleStatementCut, AccountID: acct.ID,
		Key: "scod:" + at.DateString(),
	})
}

func (s *Service) pushPaymentDue(acct *Account, due engine.TimePoint) {
	at := due.StartOfDay().Add(statementOffset)
	s.queue.Push(engine.ScheduleEvent{
		At: at, Kind: engine.SchedulePaymentDue, AccountID: acct.ID,
		Key: "pdd:" + at.DateString(),
	})
}

func (s *Service) pushAnnualFee(acct *Account, year int) {
	at := acct.AnnualFeeDate(year).Add(annualFeeOffset)
	s.queue.Push(engine.ScheduleEvent{
		At: at, Kind: engine.ScheduleAnnualFee, AccountID: acct.ID,
		Key: "annual:" + at.DateString(),
	})
}
