/*
scheduler.go - Wall-clock schedule driver

PURPOSE:
  Periodically advances the account service to the current time so that
  schedule events (daily accrual, statement cut, payment due, annual fee)
  fire without any inbound traffic.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls Service.Tick, which pops every due event from the
    account event queue in timestamp order
  - Event firings are idempotent (per-day/per-cycle keys), so overlapping
    or delayed ticks are safe

CONFIGURATION:
  - CheckInterval: How often to tick (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - card/service.go: Tick/AdvanceTo and the event queue
  - handlers.go: AdvanceClock endpoint (manual advance in demo mode)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/card-engine/card"
)

// Scheduler drives the account service from the wall clock.
type Scheduler struct {
	Service       *card.Service
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler.
func NewScheduler(svc *card.Service) *Scheduler {
	return &Scheduler{
		Service:       svc,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if err := s.Service.Tick(ctx); err != nil {
		log.Printf("[Scheduler] Error firing schedule events: %v", err)
	}
}

// RunNow triggers an immediate tick (for testing/admin).
func (s *Scheduler) RunNow() {
	s.tick()
}

// GetNextRunTime returns when the next scheduled tick will occur.
func (s *Scheduler) GetNextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
