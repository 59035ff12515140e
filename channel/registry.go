package channel

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/latticenet/latticenode/util/mstime"
)

// ErrEndpointExists is returned by Create when endpoint already has a
// channel.
var ErrEndpointExists = errors.New("channel: endpoint already connected")

// ErrNodeIDSpoofed is returned by Create when another channel on the
// same subnet already claims node_id — the spoofing-resistance check.
var ErrNodeIDSpoofed = errors.New("channel: node id already claimed on this subnet")

// ErrExcluded, ErrAlreadyConnected, ErrSubnetCap and ErrAttemptPending
// are the rejection reasons Reachout can return.
var (
	ErrExcluded          = errors.New("channel: endpoint is excluded")
	ErrAlreadyConnected  = errors.New("channel: already connected")
	ErrSubnetCap         = errors.New("channel: ip/subnet connection cap reached")
	ErrAttemptPending    = errors.New("channel: reachout attempt already recorded")
)

// ExcludedPeers reports endpoints that must never be dialed or accepted.
type ExcludedPeers interface {
	Check(endpoint string) bool
}

// PeerTable is the persisted reconnect-on-restart record of known
// endpoints, store.PeerTable's view from this package's perspective.
type PeerTable interface {
	Put(endpoint string, services uint64, lastSeen time.Time) error
	Clear() error
}

// Observer is notified when a channel is created.
type Observer func(c *Channel)

// RegistryConfig parameterizes a Registry.
type RegistryConfig struct {
	Excluded            ExcludedPeers
	Peers               PeerTable
	ProtocolVersionMin  uint32
	MaxPerSubnet        int
}

// Registry is the set of open TCP channels, indexed by endpoint, node
// id, and subnet, plus the attempt-tracking table reachout/purge consult.
type Registry struct {
	cfg RegistryConfig

	mu          sync.Mutex
	byEndpoint  map[string]*Channel
	byNodeID    map[NodeID]*Channel
	bySubnet    map[string]map[string]*Channel // subnet -> endpoint -> channel
	order       []*Channel
	nextSeq     uint64
	attempts    map[string]*attempt

	observers []Observer
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MaxPerSubnet == 0 {
		cfg.MaxPerSubnet = 8
	}
	return &Registry{
		cfg:        cfg,
		byEndpoint: make(map[string]*Channel),
		byNodeID:   make(map[NodeID]*Channel),
		bySubnet:   make(map[string]map[string]*Channel),
		attempts:   make(map[string]*attempt),
	}
}

// Subscribe registers fn to be called whenever Create succeeds.
func (r *Registry) Subscribe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Create admits a newly handshaken channel, rejecting it if the endpoint
// is already registered or another channel on the same subnet already
// claims this node id (spoofing resistance). On success it erases any
// matching attempt record and notifies observers.
func (r *Registry) Create(cfg Config) (*Channel, error) {
	if normalized, err := NormalizeEndpoint(cfg.Endpoint); err == nil {
		cfg.Endpoint = normalized
	}

	r.mu.Lock()

	if _, ok := r.byEndpoint[cfg.Endpoint]; ok {
		r.mu.Unlock()
		return nil, ErrEndpointExists
	}
	if peers, ok := r.bySubnet[cfg.Subnet]; ok {
		for _, existing := range peers {
			if existing.NodeID() == cfg.NodeID {
				r.mu.Unlock()
				return nil, ErrNodeIDSpoofed
			}
		}
	}

	r.nextSeq++
	c := newChannel(cfg, r.nextSeq)

	r.byEndpoint[c.Endpoint()] = c
	r.byNodeID[c.NodeID()] = c
	if r.bySubnet[c.Subnet()] == nil {
		r.bySubnet[c.Subnet()] = make(map[string]*Channel)
	}
	r.bySubnet[c.Subnet()][c.Endpoint()] = c
	r.order = append(r.order, c)
	delete(r.attempts, c.Endpoint())

	observers := append([]Observer{}, r.observers...)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
	return c, nil
}

// Erase closes and removes the channel at endpoint, if any.
func (r *Registry) Erase(endpoint string) {
	r.mu.Lock()
	c, ok := r.byEndpoint[endpoint]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byEndpoint, endpoint)
	delete(r.byNodeID, c.NodeID())
	if peers, ok := r.bySubnet[c.Subnet()]; ok {
		delete(peers, endpoint)
		if len(peers) == 0 {
			delete(r.bySubnet, c.Subnet())
		}
	}
	r.order = removeChannel(r.order, c)
	r.mu.Unlock()

	c.Close()
}

// FindChannel looks up a channel by endpoint.
func (r *Registry) FindChannel(endpoint string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEndpoint[endpoint]
	return c, ok
}

// FindNodeID looks up a channel by peer node id.
func (r *Registry) FindNodeID(id NodeID) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNodeID[id]
	return c, ok
}

// Size returns the number of open channels.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Channels returns a snapshot of every currently open channel, in
// insertion order.
func (r *Registry) Channels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, len(r.order))
	copy(out, r.order)
	return out
}

// RandomSet samples up to count distinct channels uniformly at random,
// performing up to 2*count draws and skipping dead, below-version, or
// (unless includeTemporary) temporary channels.
func (r *Registry) RandomSet(count int, minVersion uint32, includeTemporary bool) []*Channel {
	r.mu.Lock()
	pool := append([]*Channel{}, r.order...)
	r.mu.Unlock()

	if len(pool) == 0 || count <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	result := make([]*Channel, 0, count)
	draws := 2 * count
	for i := 0; i < draws && len(result) < count; i++ {
		c := pool[rand.Intn(len(pool))]
		if seen[c.Endpoint()] {
			continue
		}
		seen[c.Endpoint()] = true
		if c.IsDead() || c.ProtocolVersion() < minVersion {
			continue
		}
		if c.Temporary() && !includeTemporary {
			continue
		}
		result = append(result, c)
	}
	return result
}

// RandomFill samples into a fixed-size array, zero-filling unused slots.
func (r *Registry) RandomFill(out []string) {
	sample := r.RandomSet(len(out), 0, false)
	for i := range out {
		if i < len(sample) {
			out[i] = sample[i].Endpoint()
		} else {
			out[i] = ""
		}
	}
}

// BootstrapPeer returns the channel meeting protocolVersionMin with the
// oldest LastBootstrapAttempt, updating its timestamp before returning.
func (r *Registry) BootstrapPeer(protocolVersionMin uint32) (*Channel, bool) {
	r.mu.Lock()
	pool := append([]*Channel{}, r.order...)
	r.mu.Unlock()

	var best *Channel
	for _, c := range pool {
		if c.ProtocolVersion() < protocolVersionMin || c.IsDead() {
			continue
		}
		if best == nil || c.LastBootstrapAttempt().Before(best.LastBootstrapAttempt()) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	best.touchBootstrapAttempt(mstime.Now())
	return best, true
}

// Reachout validates that endpoint is a legal dial target: not excluded,
// not already connected, not over its subnet's connection cap, and not
// already mid-attempt.
func (r *Registry) Reachout(endpoint, subnet string) error {
	if r.cfg.Excluded != nil && r.cfg.Excluded.Check(endpoint) {
		return ErrExcluded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEndpoint[endpoint]; ok {
		return ErrAlreadyConnected
	}
	if peers := r.bySubnet[subnet]; len(peers) >= r.cfg.MaxPerSubnet {
		return ErrSubnetCap
	}
	now := time.Now()
	if a, ok := r.attempts[endpoint]; ok {
		if now.Sub(a.lastAttempt) < defaultRetryDuration || !a.ready(now) {
			return ErrAttemptPending
		}
		a.lastAttempt = now
		return nil
	}

	r.attempts[endpoint] = &attempt{endpoint: endpoint, lastAttempt: now}
	return nil
}

// RecordFailedAttempt advances endpoint's backoff after a failed dial.
func (r *Registry) RecordFailedAttempt(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[endpoint]
	if !ok {
		a = &attempt{endpoint: endpoint}
		r.attempts[endpoint] = a
	}
	if !a.exhausted() {
		a.retryCount++
	}
	a.lastAttempt = time.Now()
}

// Purge closes every channel whose LastPacketSent predates cutoff or
// whose protocol version is below protocolVersionMin, and drops attempt
// records for endpoints that are no longer connected and have exhausted
// their retries.
func (r *Registry) Purge(cutoff time.Time, protocolVersionMin uint32) {
	r.mu.Lock()
	var stale []*Channel
	for _, c := range r.order {
		if c.LastPacketSent().Before(cutoff) || c.ProtocolVersion() < protocolVersionMin || c.IsDead() {
			stale = append(stale, c)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		r.Erase(c.Endpoint())
	}

	r.mu.Lock()
	for endpoint, a := range r.attempts {
		if a.exhausted() {
			delete(r.attempts, endpoint)
		}
	}
	r.mu.Unlock()
}

// StoreAll snapshots every channel's endpoint under the registry lock,
// then persists them outside the lock via the configured PeerTable.
func (r *Registry) StoreAll(clear bool) error {
	r.mu.Lock()
	snapshot := make([]*Channel, len(r.order))
	copy(snapshot, r.order)
	r.mu.Unlock()

	if clear {
		if err := r.cfg.Peers.Clear(); err != nil {
			return err
		}
	}
	for _, c := range snapshot {
		if err := r.cfg.Peers.Put(c.Endpoint(), 0, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func removeChannel(list []*Channel, target *Channel) []*Channel {
	for i, c := range list {
		if c == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
