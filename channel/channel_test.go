package channel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/stats"
)

type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
	full    bool
	failNext bool
}

func (s *fakeSocket) Write(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("boom")
	}
	s.written = append(s.written, append([]byte{}, buf...))
	return nil
}

func (s *fakeSocket) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

func (s *fakeSocket) Close() error { return nil }

func (s *fakeSocket) writtenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func testStats() *stats.Registry {
	return stats.New(prometheus.NewRegistry())
}

func newTestChannel(socket Socket) *Channel {
	return newChannel(Config{
		Endpoint: "10.0.0.1:7075",
		Socket:   socket,
		Stats:    testStats(),
	}, 1)
}

func TestSendBufferDeliversToSocket(t *testing.T) {
	socket := &fakeSocket{}
	c := newTestChannel(socket)
	defer c.Close()

	done := make(chan error, 1)
	c.SendBuffer([]byte("hello"), func(err error) { done <- err }, PolicyDefault, TrafficGeneric)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send callback")
	}
	require.Equal(t, 1, socket.writtenCount())
	require.False(t, c.LastPacketSent().IsZero())
}

func TestSendBufferDropsPastMaxUnderDefaultPolicy(t *testing.T) {
	socket := &fakeSocket{full: true}
	c := newTestChannel(socket)
	defer c.Close()

	for i := 0; i < sendQueueMax; i++ {
		ok := c.queue.push(sendItem{buf: []byte{byte(i)}}, TrafficGeneric, PolicyDefault)
		require.True(t, ok)
	}
	ok := c.SendBuffer([]byte("overflow"), nil, PolicyDefault, TrafficGeneric)
	require.False(t, ok)
}

func TestSendBufferWriteErrorMarksDeadAndInvokesCallback(t *testing.T) {
	socket := &fakeSocket{failNext: true}
	c := newTestChannel(socket)
	defer c.Close()

	done := make(chan error, 1)
	c.SendBuffer([]byte("x"), func(err error) { done <- err }, PolicyDefault, TrafficGeneric)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.True(t, c.IsDead())
}

func TestSendQueueRoundRobinsBetweenTrafficTypes(t *testing.T) {
	q := newSendQueue()
	q.items[TrafficGeneric] = []sendItem{{buf: []byte("g1")}, {buf: []byte("g2")}}
	q.items[TrafficBootstrap] = []sendItem{{buf: []byte("b1")}}

	batch := q.nextBatch()
	require.Len(t, batch, 3)
	require.Equal(t, "g1", string(batch[0].buf))
	require.Equal(t, "b1", string(batch[1].buf))
	require.Equal(t, "g2", string(batch[2].buf))
}
