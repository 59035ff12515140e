package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeepaliveSendsOnlyToDueChannels(t *testing.T) {
	r := newTestRegistry()
	c, _ := r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))
	c.touchKeepaliveSent(time.Now())

	var mu sync.Mutex
	var sentTo []*Channel

	k := NewKeepalive(KeepaliveConfig{
		Registry:      r,
		Period:        time.Hour,
		RandomPeers:   func() []string { return nil },
		SendKeepalive: func(ch *Channel, peers []string) { mu.Lock(); sentTo = append(sentTo, ch); mu.Unlock() },
		PollReceived:  func(ch *Channel) ([]string, bool) { return nil, false },
		MergePeer:     func(string) {},
	})

	k.sendDue()
	mu.Lock()
	require.Empty(t, sentTo)
	mu.Unlock()
}

func TestKeepaliveMergeCyclesThroughChannels(t *testing.T) {
	r := newTestRegistry()
	a, _ := r.Create(testConfig("10.0.0.1:7075", "10.0.0.0/24", 1, 1))
	b, _ := r.Create(testConfig("10.0.0.2:7075", "10.0.0.1/24", 2, 1))

	var merged []string
	k := NewKeepalive(KeepaliveConfig{
		Registry: r,
		PollReceived: func(ch *Channel) ([]string, bool) {
			if ch == a {
				return []string{"peer-a"}, true
			}
			return nil, false
		},
		MergePeer: func(endpoint string) { merged = append(merged, endpoint) },
	})

	k.mergeOne()
	k.mergeOne()

	_ = b
	require.Contains(t, merged, "peer-a")
}
