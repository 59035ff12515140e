package channel

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/util/mstime"
	"github.com/latticenet/latticenode/util/panics"
)

const (
	socketPollInterval = 100 * time.Millisecond
	limiterChunkSize   = 128 * 1024
)

// Channel is one open TCP peer connection: its socket, its identity, and
// its own strand (a single goroutine that owns the socket exclusively)
// running the cooperative sending loop.
type Channel struct {
	endpoint        string
	nodeID          NodeID
	subnet          string
	protocolVersion uint32
	temporary       bool
	insertionSeq    uint64

	socket Socket
	stats  *stats.Registry
	queue  *sendQueue
	notify chan struct{}

	limiters [2]*rate.Limiter

	mu                   sync.Mutex
	lastPacketSent       time.Time
	lastBootstrapAttempt time.Time
	lastKeepaliveSent    time.Time
	dead                 bool

	pollInterval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config parameterizes a new Channel.
type Config struct {
	Endpoint        string
	NodeID          NodeID
	Subnet          string
	ProtocolVersion uint32
	Temporary       bool
	Socket          Socket
	Stats           *stats.Registry

	// GenericLimit and BootstrapLimit are each traffic type's outbound
	// allowance in 128 KiB chunks per second.
	GenericLimit   rate.Limit
	BootstrapLimit rate.Limit
}

func newChannel(cfg Config, insertionSeq uint64) *Channel {
	c := &Channel{
		endpoint:        cfg.Endpoint,
		nodeID:          cfg.NodeID,
		subnet:          cfg.Subnet,
		protocolVersion: cfg.ProtocolVersion,
		temporary:       cfg.Temporary,
		insertionSeq:    insertionSeq,
		socket:          cfg.Socket,
		stats:           cfg.Stats,
		queue:           newSendQueue(),
		notify:          make(chan struct{}, 1),
		pollInterval:    socketPollInterval,
		stop:            make(chan struct{}),
	}
	c.limiters[TrafficGeneric] = rate.NewLimiter(nonZero(cfg.GenericLimit), 1)
	c.limiters[TrafficBootstrap] = rate.NewLimiter(nonZero(cfg.BootstrapLimit), 1)
	c.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(c.sendLoop)
	return c
}

func nonZero(l rate.Limit) rate.Limit {
	if l == 0 {
		return rate.Inf
	}
	return l
}

// Endpoint returns the channel's unique TCP endpoint.
func (c *Channel) Endpoint() string { return c.endpoint }

// NodeID returns the peer's self-reported node identity.
func (c *Channel) NodeID() NodeID { return c.nodeID }

// Subnet returns the channel's endpoint's containing IP subnet.
func (c *Channel) Subnet() string { return c.subnet }

// ProtocolVersion returns the version negotiated at handshake.
func (c *Channel) ProtocolVersion() uint32 { return c.protocolVersion }

// Temporary reports whether this channel was created for a one-shot
// purpose (e.g. a bootstrap-only dial) rather than general gossip.
func (c *Channel) Temporary() bool { return c.temporary }

// LastPacketSent returns the time of the last successful write.
func (c *Channel) LastPacketSent() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPacketSent
}

// LastBootstrapAttempt returns the time bootstrap_peer last selected
// this channel.
func (c *Channel) LastBootstrapAttempt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBootstrapAttempt
}

func (c *Channel) touchBootstrapAttempt(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBootstrapAttempt = now
}

// LastKeepaliveSent returns the time a keepalive was last sent on this
// channel.
func (c *Channel) LastKeepaliveSent() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKeepaliveSent
}

func (c *Channel) touchKeepaliveSent(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKeepaliveSent = now
}

// IsDead reports whether the channel's socket has been marked broken and
// should be purged.
func (c *Channel) IsDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *Channel) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

// SendBuffer enqueues buf for sending under policy/typ, invoking
// callback (if non-nil) with the outcome once the write completes or the
// item is dropped for lack of buffer space. Returns false if dropped.
func (c *Channel) SendBuffer(buf []byte, callback func(error), policy SendPolicy, typ TrafficType) bool {
	if c.queue.push(sendItem{buf: buf, callback: callback}, typ, policy) {
		select {
		case c.notify <- struct{}{}:
		default:
		}
		return true
	}
	if c.stats != nil {
		c.stats.Inc("channel", "no_buffer_space", stats.DirectionOut)
	}
	if callback != nil {
		callback(ErrNoBufferSpace)
	}
	return false
}

// Close stops the sending strand, firing every still-queued callback
// with ErrNoBufferSpace, and closes the socket.
func (c *Channel) Close() error {
	close(c.stop)
	c.wg.Wait()
	for _, item := range c.queue.drainAll() {
		if item.callback != nil {
			item.callback(ErrNoBufferSpace)
		}
	}
	return c.socket.Close()
}

func (c *Channel) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-c.notify:
		}
		c.drainQueues()
	}
}

func (c *Channel) drainQueues() {
	for {
		batch := c.queue.nextBatch()
		if len(batch) == 0 {
			return
		}
		for _, item := range batch {
			if c.stopped() {
				if item.callback != nil {
					item.callback(ErrNoBufferSpace)
				}
				continue
			}
			c.sendOne(item)
		}
	}
}

func (c *Channel) sendOne(item sendItem) {
	if !c.awaitSocketAvailable() {
		if item.callback != nil {
			item.callback(ErrNoBufferSpace)
		}
		return
	}
	if !c.awaitBandwidth(item.typ, len(item.buf)) {
		if item.callback != nil {
			item.callback(ErrNoBufferSpace)
		}
		return
	}

	if err := c.socket.Write(item.buf); err != nil {
		c.markDead()
		if c.stats != nil {
			c.stats.Inc("channel", "host_unreachable", stats.DirectionOut)
		}
		if item.callback != nil {
			item.callback(ErrHostUnreachable{Err: err})
		}
		return
	}

	c.mu.Lock()
	c.lastPacketSent = mstime.Now()
	c.mu.Unlock()
	if item.callback != nil {
		item.callback(nil)
	}
}

func (c *Channel) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Channel) awaitSocketAvailable() bool {
	for c.socket.Full() {
		select {
		case <-c.stop:
			return false
		case <-time.After(c.pollInterval):
		}
	}
	return true
}

func chunksFor(n int) int {
	if n <= 0 {
		return 1
	}
	c := n / limiterChunkSize
	if n%limiterChunkSize != 0 {
		c++
	}
	return c
}

func (c *Channel) awaitBandwidth(typ TrafficType, size int) bool {
	limiter := c.limiters[typ]
	chunks := chunksFor(size)
	for i := 0; i < chunks; i++ {
		for !limiter.AllowN(time.Now(), 1) {
			select {
			case <-c.stop:
				return false
			case <-time.After(c.pollInterval):
			}
		}
	}
	return true
}
