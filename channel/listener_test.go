package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenAndDialEstablishChannel(t *testing.T) {
	serverRegistry := newTestRegistry()
	ln, err := Listen("127.0.0.1:0", serverRegistry, ListenerConfig{ProtocolVersion: 1})
	require.NoError(t, err)
	defer ln.Close()

	clientRegistry := newTestRegistry()
	c, err := Dial(ln.Addr().String(), clientRegistry, ListenerConfig{ProtocolVersion: 1})
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, func() bool {
		return serverRegistry.Size() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDialRejectsExcludedEndpoint(t *testing.T) {
	registry := NewRegistry(RegistryConfig{Excluded: excludedFunc(func(string) bool { return true })})
	_, err := Dial("127.0.0.1:1", registry, ListenerConfig{})
	require.ErrorIs(t, err, ErrExcluded)
}

type excludedFunc func(string) bool

func (f excludedFunc) Check(endpoint string) bool { return f(endpoint) }

func TestNotAPeerRejectsLoopbackUnlessAllowed(t *testing.T) {
	require.True(t, NotAPeer("127.0.0.1:7075", false))
	require.False(t, NotAPeer("127.0.0.1:7075", true))
	require.False(t, NotAPeer("203.0.113.5:7075", false))
}

func TestSubnetOfGroupsIPv4ByTwentyFourBits(t *testing.T) {
	require.Equal(t, subnetOf("10.0.0.5:7075"), subnetOf("10.0.0.9:7075"))
	require.NotEqual(t, subnetOf("10.0.0.5:7075"), subnetOf("10.0.1.5:7075"))
}
