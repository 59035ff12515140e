package processingqueue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/stats"
)

func testRegistry() *stats.Registry {
	return stats.New(prometheus.NewRegistry())
}

func testLog() *logger.Logger {
	l, _ := logger.Get(logger.SubsystemTags.BLKP)
	return l
}

// TestQueueParallelism enqueues 16 items to 16 threads where each handler
// sleeps 2s, and asserts they all drain well within 3s thanks to parallel
// workers rather than running serially.
func TestQueueParallelism(t *testing.T) {
	var processed atomic.Int64
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   16,
		MaxQueueSize: 1024,
		MaxBatchSize: 1,
		ProcessBatch: func(batch []int) {
			time.Sleep(2 * time.Second)
			processed.Add(int64(len(batch)))
		},
	})
	q.Start()
	defer q.Stop()

	start := time.Now()
	for i := 0; i < 16; i++ {
		q.Add(i)
	}

	require.Eventually(t, func() bool {
		return processed.Load() == 16
	}, 3*time.Second, 10*time.Millisecond)
	require.Less(t, time.Since(start), 3*time.Second)
}

// TestQueueMaxBatchSize pre-enqueues 1024 items before any worker starts,
// and asserts no observed batch ever exceeds MaxBatchSize.
func TestQueueMaxBatchSize(t *testing.T) {
	var maxObserved atomic.Int64
	var totalProcessed atomic.Int64

	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   4,
		MaxQueueSize: 1024,
		MaxBatchSize: 128,
		ProcessBatch: func(batch []int) {
			if int64(len(batch)) > maxObserved.Load() {
				maxObserved.Store(int64(len(batch)))
			}
			totalProcessed.Add(int64(len(batch)))
		},
	})

	for i := 0; i < 1024; i++ {
		q.Add(i)
	}

	q.Start()
	defer q.Stop()

	require.Eventually(t, func() bool {
		return totalProcessed.Load() == 1024
	}, 5*time.Second, 10*time.Millisecond)
	require.LessOrEqual(t, maxObserved.Load(), int64(128))
}

// TestQueueOverflowDrops exercises the universal overflow property: adding
// more than MaxQueueSize elements before workers drain any of them leaves
// size() capped at MaxQueueSize.
func TestQueueOverflowDrops(t *testing.T) {
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   0,
		MaxQueueSize: 8,
		MaxBatchSize: 8,
		ProcessBatch: func(batch []int) {},
	})

	for i := 0; i < 20; i++ {
		q.Add(i)
	}

	require.LessOrEqual(t, q.Size(), 8)
	require.Equal(t, 8, q.Size())
}

// TestQueueInsertionOrderWithinBatch checks that a single worker's batch
// preserves insertion order.
func TestQueueInsertionOrderWithinBatch(t *testing.T) {
	done := make(chan []int, 1)
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   1,
		MaxQueueSize: 64,
		MaxBatchSize: 64,
		ProcessBatch: func(batch []int) {
			done <- append([]int(nil), batch...)
		},
	})

	for i := 0; i < 10; i++ {
		q.Add(i)
	}
	q.Start()
	defer q.Stop()

	select {
	case batch := <-done:
		for i, v := range batch {
			require.Equal(t, i, v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never processed")
	}
}

// TestQueueProcessBatchPanicRecovers ensures a panicking handler does not
// take down the worker: later adds still get processed.
func TestQueueProcessBatchPanicRecovers(t *testing.T) {
	var calls atomic.Int64
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   1,
		MaxQueueSize: 64,
		MaxBatchSize: 1,
		ProcessBatch: func(batch []int) {
			n := calls.Add(1)
			if n == 1 {
				panic("boom")
			}
		},
	})
	q.Start()
	defer q.Stop()

	q.Add(1)
	q.Add(2)

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

// TestQueueProcessBatchPanicIncrementsPanicsStat confirms a recovered panic
// is also counted, not just logged.
func TestQueueProcessBatchPanicIncrementsPanicsStat(t *testing.T) {
	promReg := prometheus.NewRegistry()
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        stats.New(promReg),
		StatsType:    "test",
		NumThreads:   1,
		MaxQueueSize: 64,
		MaxBatchSize: 1,
		ProcessBatch: func(batch []int) {
			panic("boom")
		},
	})
	q.Start()
	defer q.Stop()

	q.Add(1)

	require.Eventually(t, func() bool {
		return panicsCounterValue(t, promReg) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func panicsCounterValue(t *testing.T, reg *prometheus.Registry) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "latticenode_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			var typ, detail, direction string
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "type":
					typ = label.GetValue()
				case "detail":
					detail = label.GetValue()
				case "direction":
					direction = label.GetValue()
				}
			}
			if typ == "test" && detail == "panics" && direction == "out" {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// TestQueueStopDrainsInFlightOnly confirms Stop does not wait for elements
// that were never picked up by a worker.
func TestQueueStopDrainsInFlightOnly(t *testing.T) {
	q := New(Config[int]{
		Log:          testLog(),
		Stats:        testRegistry(),
		StatsType:    "test",
		NumThreads:   0,
		MaxQueueSize: 64,
		MaxBatchSize: 64,
		ProcessBatch: func(batch []int) {},
	})
	q.Add(1)
	q.Add(2)
	q.Stop()
	require.Equal(t, 2, q.Size())
}
