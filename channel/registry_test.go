package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(RegistryConfig{})
}

func testConfig(endpoint, subnet string, nodeID byte, version uint32) Config {
	var id NodeID
	id[0] = nodeID
	return Config{
		Endpoint:        endpoint,
		Subnet:          subnet,
		NodeID:          id,
		ProtocolVersion: version,
		Socket:          &fakeSocket{},
		Stats:           testStats(),
	}
}

func TestCreateRejectsDuplicateEndpoint(t *testing.T) {
	r := newTestRegistry()
	cfg := testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1)

	_, err := r.Create(cfg)
	require.NoError(t, err)

	_, err = r.Create(cfg)
	require.ErrorIs(t, err, ErrEndpointExists)
}

func TestCreateRejectsSpoofedNodeIDOnSameSubnet(t *testing.T) {
	r := newTestRegistry()
	first := testConfig("10.0.0.1:7075", "10.0.0.0/24", 9, 1)
	_, err := r.Create(first)
	require.NoError(t, err)

	second := testConfig("10.0.0.2:7075", "10.0.0.0/24", 9, 1)
	_, err = r.Create(second)
	require.ErrorIs(t, err, ErrNodeIDSpoofed)
}

func TestCreateNotifiesObservers(t *testing.T) {
	r := newTestRegistry()
	var observed *Channel
	r.Subscribe(func(c *Channel) { observed = c })

	cfg := testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1)
	c, err := r.Create(cfg)
	require.NoError(t, err)
	require.Equal(t, c, observed)
}

func TestFindChannelAndNodeID(t *testing.T) {
	r := newTestRegistry()
	cfg := testConfig("10.0.0.1:7075", "10.0.0.0/24", 5, 1)
	c, err := r.Create(cfg)
	require.NoError(t, err)

	found, ok := r.FindChannel("10.0.0.1:7075")
	require.True(t, ok)
	require.Equal(t, c, found)

	found, ok = r.FindNodeID(cfg.NodeID)
	require.True(t, ok)
	require.Equal(t, c, found)
}

func TestEraseRemovesFromAllIndices(t *testing.T) {
	r := newTestRegistry()
	cfg := testConfig("10.0.0.1:7075", "10.0.0.0/24", 5, 1)
	r.Create(cfg)
	r.Erase("10.0.0.1:7075")

	_, ok := r.FindChannel("10.0.0.1:7075")
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestBootstrapPeerReturnsOldestAttempt(t *testing.T) {
	r := newTestRegistry()
	a, _ := r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 5))
	b, _ := r.Create(testConfig("10.0.0.2:7075", "10.0.0.1/24", 2, 5))

	a.touchBootstrapAttempt(time.Now().Add(-time.Hour))
	b.touchBootstrapAttempt(time.Now())

	chosen, ok := r.BootstrapPeer(0)
	require.True(t, ok)
	require.Equal(t, a, chosen)
	require.False(t, a.LastBootstrapAttempt().Equal(time.Now().Add(-time.Hour)))
}

func TestBootstrapPeerSkipsBelowMinVersion(t *testing.T) {
	r := newTestRegistry()
	r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 3))

	_, ok := r.BootstrapPeer(5)
	require.False(t, ok)
}

func TestReachoutRejectsAlreadyConnected(t *testing.T) {
	r := newTestRegistry()
	r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))

	err := r.Reachout("10.0.0.1:7075", "10.0.0.0/24")
	require.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestReachoutRejectsPendingAttempt(t *testing.T) {
	r := newTestRegistry()
	err := r.Reachout("10.0.0.9:7075", "10.0.0.0/24")
	require.NoError(t, err)

	err = r.Reachout("10.0.0.9:7075", "10.0.0.0/24")
	require.ErrorIs(t, err, ErrAttemptPending)
}

func TestReachoutRejectsExcluded(t *testing.T) {
	r := NewRegistry(RegistryConfig{Excluded: excludeList{"10.0.0.9:7075"}})
	err := r.Reachout("10.0.0.9:7075", "10.0.0.0/24")
	require.ErrorIs(t, err, ErrExcluded)
}

func TestReachoutRejectsOverSubnetCap(t *testing.T) {
	r := NewRegistry(RegistryConfig{MaxPerSubnet: 1})
	r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))

	err := r.Reachout("10.0.0.2:7075", "10.0.0.0/24")
	require.ErrorIs(t, err, ErrSubnetCap)
}

func TestPurgeClosesStaleAndBelowVersionChannels(t *testing.T) {
	r := newTestRegistry()
	c, _ := r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))
	c.mu.Lock()
	c.lastPacketSent = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	r.Purge(time.Now().Add(-time.Minute), 0)
	require.Equal(t, 0, r.Size())

	fresh, _ := r.Create(testConfig("10.0.0.2:7075", "10.0.0.1/24", 2, 1))
	fresh.mu.Lock()
	fresh.lastPacketSent = time.Now()
	fresh.mu.Unlock()

	r.Purge(time.Now().Add(-time.Minute), 2)
	require.Equal(t, 0, r.Size())
}

func TestRandomSetSkipsDeadAndTemporary(t *testing.T) {
	r := newTestRegistry()
	alive, _ := r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))
	dead, _ := r.Create(testConfig("10.0.0.2:7075", "10.0.0.1/24", 2, 1))
	dead.markDead()

	set := r.RandomSet(5, 0, false)
	require.Contains(t, set, alive)
	require.NotContains(t, set, dead)

	cfg := testConfig("10.0.0.3:7075", "10.0.0.2/24", 3, 1)
	cfg.Temporary = true
	temporary, _ := r.Create(cfg)
	require.NotContains(t, r.RandomSet(5, 0, false), temporary)
}

type excludeList []string

func (e excludeList) Check(endpoint string) bool {
	for _, x := range e {
		if x == endpoint {
			return true
		}
	}
	return false
}
