// Package backlog scans ledger state for account chains whose head has
// not yet been confirmed and offers them to the priority scheduler.
package backlog

import (
	"sync"
	"time"

	"github.com/latticenet/latticenode/scheduler"
	"github.com/latticenet/latticenode/util/panics"
)

// FrontierSource returns account chains whose head differs from the
// confirmed frontier, ready to be weighted and offered to the priority
// scheduler.
type FrontierSource interface {
	Unconfirmed() []scheduler.Candidate
}

// Config parameterizes a Populator.
type Config struct {
	Source   FrontierSource
	Priority *scheduler.PriorityScheduler
	Interval time.Duration
}

// Populator is the single background worker that periodically re-offers
// unconfirmed chains to the priority scheduler.
type Populator struct {
	cfg Config

	mu        sync.Mutex
	overflown bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Populator and registers it with cfg.Priority so the
// priority scheduler's vacancy notifications clear the overflown latch.
func New(cfg Config) *Populator {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Second
	}
	p := &Populator{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	cfg.Priority.OnVacancy(p.clearOverflow)
	return p
}

func (p *Populator) clearOverflow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overflown = false
}

// Overflown reports whether the latch is currently set, pausing runs.
func (p *Populator) Overflown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overflown
}

// Trigger and Notify both wake the populator ahead of its next timer
// tick; they are distinct call sites (an explicit RPC trigger versus an
// internal change notification) but share one wake mechanism.
func (p *Populator) Trigger() {
	p.wakeNow()
}

func (p *Populator) Notify() {
	p.wakeNow()
}

func (p *Populator) wakeNow() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start launches the background loop.
func (p *Populator) Start() {
	p.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(p.run)
}

// Stop halts the loop and waits for it to exit.
func (p *Populator) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Populator) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.PopulateBacklog()
		case <-p.wake:
			p.PopulateBacklog()
		}
	}
}

// PopulateBacklog offers every currently unconfirmed chain to the
// priority scheduler, unless the overflown latch is set from a previous
// run. Returns true if the scheduler's backlog queue overflowed during
// this run, in which case the latch is set and further runs are skipped
// until the priority scheduler reports spare vacancy.
func (p *Populator) PopulateBacklog() bool {
	p.mu.Lock()
	if p.overflown {
		p.mu.Unlock()
		return true
	}
	p.mu.Unlock()

	overflowed := false
	for _, c := range p.cfg.Source.Unconfirmed() {
		if !p.cfg.Priority.Offer(c) {
			overflowed = true
		}
	}

	if overflowed {
		p.mu.Lock()
		p.overflown = true
		p.mu.Unlock()
		log.Debugf("backlog queue overflowed, pausing until scheduler reports vacancy")
	}
	return overflowed
}
