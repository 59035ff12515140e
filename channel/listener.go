package channel

import (
	"crypto/sha256"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/util/panics"
)

// ListenerConfig parameterizes both Listen's accept loop and Dial: the
// per-channel tuning every newly created Channel is built with.
type ListenerConfig struct {
	Stats           *stats.Registry
	ProtocolVersion uint32
	GenericLimit    rate.Limit
	BootstrapLimit  rate.Limit
}

// Listener accepts inbound TCP connections and admits each one into a
// Registry as a new Channel. The handshake that would negotiate a real
// node id and protocol version is wire-format machinery this
// implementation does not specify; NodeID is derived deterministically
// from the remote endpoint instead, giving the registry's spoofing and
// subnet-cap checks something stable to key on.
type Listener struct {
	registry *Registry
	cfg      ListenerConfig
	ln       net.Listener

	stop chan struct{}
	wg   sync.WaitGroup
}

// Listen binds addr and starts accepting inbound channels into registry.
func Listen(addr string, registry *Registry, cfg ListenerConfig) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{registry: registry, cfg: cfg, ln: ln, stop: make(chan struct{})}
	l.wg.Add(1)
	panics.GoroutineWrapperFunc(log)(l.run)
	return l, nil
}

// Addr returns the bound listen address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	close(l.stop)
	err := l.ln.Close()
	l.wg.Wait()
	return err
}

func (l *Listener) run() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
				log.Warnf("accept failed: %s", err)
				continue
			}
		}
		conn := conn
		panics.GoroutineWrapperFunc(log)(func() { l.admit(conn) })
	}
}

func (l *Listener) admit(conn net.Conn) {
	endpoint := conn.RemoteAddr().String()
	if normalized, err := NormalizeEndpoint(endpoint); err == nil {
		endpoint = normalized
	}
	_, err := l.registry.Create(Config{
		Endpoint:        endpoint,
		NodeID:          nodeIDFromEndpoint(endpoint),
		Subnet:          subnetOf(endpoint),
		ProtocolVersion: l.cfg.ProtocolVersion,
		Socket:          NewNetSocket(conn),
		Stats:           l.cfg.Stats,
		GenericLimit:    l.cfg.GenericLimit,
		BootstrapLimit:  l.cfg.BootstrapLimit,
	})
	if err != nil {
		log.Debugf("rejected inbound channel from %s: %s", endpoint, err)
		conn.Close()
	}
}

// Dial reaches out to addr, subject to the registry's normal reachout
// policy (exclusion list, subnet cap, attempt backoff), and admits the
// resulting connection as a new Channel on success.
func Dial(addr string, registry *Registry, cfg ListenerConfig) (*Channel, error) {
	endpoint := addr
	if normalized, err := NormalizeEndpoint(addr); err == nil {
		endpoint = normalized
	}
	subnet := subnetOf(endpoint)
	if err := registry.Reachout(endpoint, subnet); err != nil {
		return nil, err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		registry.RecordFailedAttempt(endpoint)
		return nil, err
	}

	return registry.Create(Config{
		Endpoint:        endpoint,
		NodeID:          nodeIDFromEndpoint(endpoint),
		Subnet:          subnet,
		ProtocolVersion: cfg.ProtocolVersion,
		Socket:          NewNetSocket(conn),
		Stats:           cfg.Stats,
		GenericLimit:    cfg.GenericLimit,
		BootstrapLimit:  cfg.BootstrapLimit,
	})
}

// NotAPeer reports whether endpoint should never be dialed or accepted
// as a peer: it names the loopback address, unless allowLocal permits
// local testing setups where multiple nodes share a host.
func NotAPeer(endpoint string, allowLocal bool) bool {
	if allowLocal {
		return false
	}
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		host = endpoint
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// nodeIDFromEndpoint derives a stand-in node identity from a connection's
// endpoint, in place of one negotiated during a real handshake.
func nodeIDFromEndpoint(endpoint string) NodeID {
	return sha256.Sum256([]byte(endpoint))
}

// subnetOf returns the /24 (or, for IPv6, /64-equivalent first eight
// bytes) grouping of endpoint's host, the granularity Reachout's
// per-subnet connection cap is enforced at.
func subnetOf(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		host = endpoint
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}
	v6 := ip.To16()
	return net.IP(v6[:8]).String()
}
