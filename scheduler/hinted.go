package scheduler

import (
	"sync"
	"time"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/util/panics"
	"github.com/latticenet/latticenode/votecache"
)

// BlockLookup resolves whether hash is known to the store and, if so,
// which qualified root it occupies and whether it is already confirmed.
type BlockLookup interface {
	Lookup(hash block.Hash) (root block.QualifiedRoot, confirmed bool, found bool)
}

// HintedConfig parameterizes a HintedScheduler.
type HintedConfig struct {
	Table   *Table
	Cache   *votecache.Cache
	Lookup  BlockLookup

	// OnlineWeight returns online_reps.trended(): the current trended
	// estimate of total online voting weight.
	OnlineWeight func() uint64

	// HintWeightPercent scales OnlineWeight into the tally threshold a
	// vote-cache entry must clear to be admitted.
	HintWeightPercent uint64

	// RequestBootstrap is called with hashes the vote cache has
	// endorsed but the store does not yet hold.
	RequestBootstrap func(hash block.Hash)

	PollInterval time.Duration
}

// HintedScheduler admits blocks the vote cache shows meaningful
// representative support for, ahead of the priority scheduler's backlog
// sweep, into the election table's reserved hinted slots.
type HintedScheduler struct {
	cfg HintedConfig

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewHintedScheduler constructs a HintedScheduler. Call Start to launch
// its polling loop, or call Tick directly in tests.
func NewHintedScheduler(cfg HintedConfig) *HintedScheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &HintedScheduler{
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Threshold returns the current tally a vote-cache entry must clear.
func (s *HintedScheduler) Threshold() uint64 {
	return s.cfg.OnlineWeight() * s.cfg.HintWeightPercent / 100
}

// Notify wakes the polling loop immediately instead of waiting for the
// next timer tick.
func (s *HintedScheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Start launches the background polling loop.
func (s *HintedScheduler) Start() {
	s.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(s.run)
}

// Stop halts the polling loop and waits for it to exit.
func (s *HintedScheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *HintedScheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick()
		case <-s.notify:
			s.Tick()
		}
	}
}

// Tick runs one admission pass: while the table has hinted vacancy and
// the vote cache's top entry clears the weight threshold, pop it and
// either admit it (if known to the store and unconfirmed) or request it
// be bootstrapped (if unknown). Returns the number admitted.
func (s *HintedScheduler) Tick() int {
	admitted := 0
	for s.cfg.Table.VacancyHinted() > 0 {
		hash, _, ok := s.cfg.Cache.Peek(s.Threshold())
		if !ok {
			break
		}
		if s.cfg.Table.Exists(hash) {
			s.cfg.Cache.Erase(hash)
			continue
		}

		root, confirmed, found := s.cfg.Lookup.Lookup(hash)
		if !found {
			if s.cfg.RequestBootstrap != nil {
				s.cfg.RequestBootstrap(hash)
			}
			s.cfg.Cache.Erase(hash)
			continue
		}
		if confirmed {
			s.cfg.Cache.Erase(hash)
			continue
		}

		if s.cfg.Table.Insert(hash, root, true) {
			s.cfg.Table.Activate(hash)
			admitted++
		}
		s.cfg.Cache.Erase(hash)
	}
	return admitted
}
