package channel

import (
	"sync"
	"time"

	"github.com/latticenet/latticenode/util/mstime"
	"github.com/latticenet/latticenode/util/panics"
)

// KeepaliveConfig parameterizes the keepalive-send and peer-merge timers.
type KeepaliveConfig struct {
	Registry *Registry

	Period      time.Duration
	MergePeriod time.Duration

	// RandomPeers returns up to 8 peer endpoints to gossip in the next
	// keepalive message.
	RandomPeers func() []string
	// SendKeepalive builds and sends the keepalive message carrying
	// peers to c.
	SendKeepalive func(c *Channel, peers []string)
	// PollReceived checks whether c's response server has a keepalive
	// waiting, returning its peer entries if so.
	PollReceived func(c *Channel) ([]string, bool)
	// MergePeer folds one gossiped endpoint into the known-peers table.
	MergePeer func(endpoint string)
}

// Keepalive drives the two timer-driven background tasks every channel
// participates in: periodic keepalive sends, and round-robin polling of
// each channel's response server to merge any keepalive it received.
type Keepalive struct {
	cfg KeepaliveConfig

	mergeCursor int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewKeepalive constructs a Keepalive. Call Start to launch its timers.
func NewKeepalive(cfg KeepaliveConfig) *Keepalive {
	if cfg.Period == 0 {
		cfg.Period = keepaliveInterval
	}
	if cfg.MergePeriod == 0 {
		cfg.MergePeriod = mergeInterval
	}
	return &Keepalive{cfg: cfg, stop: make(chan struct{})}
}

// Start launches the background loop.
func (k *Keepalive) Start() {
	k.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(k.run)
}

// Stop halts the loop and waits for it to exit.
func (k *Keepalive) Stop() {
	close(k.stop)
	k.wg.Wait()
}

func (k *Keepalive) run() {
	defer k.wg.Done()
	keepaliveTicker := time.NewTicker(k.cfg.Period)
	defer keepaliveTicker.Stop()
	mergeTicker := time.NewTicker(k.cfg.MergePeriod)
	defer mergeTicker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-keepaliveTicker.C:
			k.sendDue()
		case <-mergeTicker.C:
			k.mergeOne()
		}
	}
}

// sendDue sends a keepalive to every channel whose last keepalive
// predates the configured period.
func (k *Keepalive) sendDue() {
	now := mstime.Now()
	peers := k.cfg.RandomPeers()
	for _, c := range k.cfg.Registry.Channels() {
		if now.Sub(c.LastKeepaliveSent()) < k.cfg.Period {
			continue
		}
		k.cfg.SendKeepalive(c, peers)
		c.touchKeepaliveSent(now)
	}
}

// mergeOne advances the round-robin cursor over open channels by one and
// merges any keepalive the selected channel's response server has
// received.
func (k *Keepalive) mergeOne() {
	channels := k.cfg.Registry.Channels()
	if len(channels) == 0 {
		return
	}
	k.mergeCursor %= len(channels)
	c := channels[k.mergeCursor]
	k.mergeCursor++

	peers, ok := k.cfg.PollReceived(c)
	if !ok {
		return
	}
	for _, p := range peers {
		k.cfg.MergePeer(p)
	}
}
