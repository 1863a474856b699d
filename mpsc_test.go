package wgcore

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMPSCQueue_SingleProducerOrder(t *testing.T) {
	q := NewMPSCQueue[Task, *Task]()
	const n = 1000
	for i := 0; i < n; i++ {
		q.Push(&Task{Due: uint64(i)})
	}
	for i := 0; i < n; i++ {
		node := q.Pop()
		require.NotNil(t, node)
		require.Equal(t, uint64(i), node.Due)
	}
	require.Nil(t, q.Pop())
}

// TestMPSCQueue_ConcurrentProducers exercises the "every pushed node is
// popped exactly once" property: P producers each push N nodes carrying a
// per-producer sequence number; the single consumer verifies per-producer
// monotonicity and a total count of P*N.
func TestMPSCQueue_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 5000

	// Task has no producer/seq fields of its own, so both are packed into
	// Due: high 32 bits producer index, low 32 bits per-producer sequence.
	q := NewMPSCQueue[Task, *Task]()
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for s := 0; s < perProducer; s++ {
				q.Push(&Task{Due: uint64(p)<<32 | uint64(s)})
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	lastSeq := make([]int, producers)
	for i := range lastSeq {
		lastSeq[i] = -1
	}
	total := 0
	for total < producers*perProducer {
		node := q.PopSpin(10000)
		if node == nil {
			select {
			case <-done:
			default:
			}
			continue
		}
		producer := int(node.Due >> 32)
		seq := int(node.Due & 0xffffffff)
		require.Greater(t, seq, lastSeq[producer])
		lastSeq[producer] = seq
		total++
	}
	require.Equal(t, producers*perProducer, total)
}

func TestTimerHeap_NonDecreasingOrder(t *testing.T) {
	h := NewTimerHeap[Task, *Task]()
	dues := []uint64{50, 10, 30, 10, 0, 99}
	for _, d := range dues {
		h.Push(&Task{Due: d})
	}
	var last uint64
	for h.Len() > 0 {
		n := h.Pop()
		require.GreaterOrEqual(t, n.Due, last)
		last = n.Due
	}
}

func TestTimerHeap_DrainExpired(t *testing.T) {
	h := NewTimerHeap[Task, *Task]()
	h.Push(&Task{Due: 10})
	h.Push(&Task{Due: 20})
	h.Push(&Task{Due: 30})

	var fired []uint64
	h.DrainExpired(20, func(t *Task) { fired = append(fired, t.Due) })
	require.Equal(t, []uint64{10, 20}, fired)
	require.Equal(t, 1, h.Len())
}

func TestPendingQueue_FIFOAndGrowth(t *testing.T) {
	q := NewPendingQueue[Task](2)
	const n = 100
	for i := 0; i < n; i++ {
		q.Push(&Task{Due: uint64(i)})
	}
	require.Equal(t, n, q.Len())
	for i := 0; i < n; i++ {
		node := q.Pop()
		require.NotNil(t, node)
		require.Equal(t, uint64(i), node.Due)
	}
	require.Nil(t, q.Pop())
}

func TestTask_RefcountRecyclesAtZero(t *testing.T) {
	var called atomic.Int32
	tk := MakeTask(func(ctx TaskContext) { called.Add(1) })
	tk.addRef()
	tk.dispatch(TaskContext{})
	tk.release()
	require.Equal(t, int32(1), called.Load())
	tk.dispatch(TaskContext{})
	tk.release()
	require.Equal(t, int32(2), called.Load())
}
