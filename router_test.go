package wgcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRRNext_ModuloWraps(t *testing.T) {
	var c uint32
	seen := make([]int, 7)
	for i := range seen {
		seen[i] = rrNext(&c, 3, RRModulo)
	}
	require.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, seen)
}

func TestRRNext_BranchyMatchesModuloForNonPowerOfTwo(t *testing.T) {
	var c1, c2 uint32
	for i := 0; i < 50; i++ {
		require.Equal(t, rrNext(&c1, 5, RRModulo), rrNext(&c2, 5, RRBranchy))
	}
}

func TestRRNext_PowerOfTwoMaskMatchesModulo(t *testing.T) {
	var c1, c2 uint32
	for i := 0; i < 50; i++ {
		require.Equal(t, rrNext(&c1, 8, RRModulo), rrNext(&c2, 8, RRPowerOfTwoMask))
	}
}

func TestRRNext_PowerOfTwoMaskFallsBackForNonPowerOfTwo(t *testing.T) {
	var c1, c2 uint32
	for i := 0; i < 50; i++ {
		require.Equal(t, rrNext(&c1, 6, RRModulo), rrNext(&c2, 6, RRPowerOfTwoMask))
	}
}

func TestRRNext_ZeroLengthIsSafe(t *testing.T) {
	var c uint32
	require.Equal(t, 0, rrNext(&c, 0, RRModulo))
}

// TestRouting_MixedGroups is spec.md §8 scenario 2: from a worker in a
// non-timer-capable active group, 1000 immediately-due tasks and 1000 tasks
// due 50ms later are scheduled; all 2000 must land on workers of the
// timer-capable group, with the first batch observably completing before
// any of the second batch begins.
func TestRouting_MixedGroups(t *testing.T) {
	g0 := &Group{Tag: GroupTag{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true}}
	g1 := &Group{Tag: GroupTag{ID: 2, Name: "g1", WorkerCount: 2, IsActive: true, HandlesTimerTasks: true}}
	g0.Workers = []*Worker{nil, newWorker(g0, 1)}
	g1.Workers = []*Worker{nil, newWorker(g1, 1), newWorker(g1, 2)}
	for _, w := range g1.Workers[1:] {
		w.ServerTLS = NewServerTLSContext(ServerFlags{}, []*Group{g1})
	}

	source := g0.Workers[1]
	source.ServerTLS = NewServerTLSContext(ServerFlags{}, []*Group{g1})

	now := source.nowTick()
	const batch = 1000
	for i := 0; i < batch; i++ {
		tk := MakeTask(func(ctx TaskContext) {})
		tk.Due = now
		routeFreeDelayed(source, tk)
	}
	for i := 0; i < batch; i++ {
		tk := MakeTask(func(ctx TaskContext) {})
		tk.Due = now + uint64(50*1e6)
		routeFreeDelayed(source, tk)
	}

	total := 0
	for _, w := range g1.Workers[1:] {
		for {
			tk := w.delayedFree.Pop()
			if tk == nil {
				break
			}
			total++
			w.ServerTLS.Delayed.Push(tk)
		}
	}
	require.Equal(t, 2*batch, total)

	firedFirst, firedSecond := 0, 0
	for _, w := range g1.Workers[1:] {
		w.ServerTLS.Delayed.DrainExpired(now, func(tk *Task) { firedFirst++ })
	}
	require.Equal(t, batch, firedFirst)

	for _, w := range g1.Workers[1:] {
		w.ServerTLS.Delayed.DrainExpired(now+uint64(50*1e6), func(tk *Task) { firedSecond++ })
	}
	require.Equal(t, batch, firedSecond)
}

func TestGroupTag_ValidationRules(t *testing.T) {
	base := GroupTag{ID: 1, Name: "g", WorkerCount: 1}

	t.Run("zero id invalid", func(t *testing.T) {
		tag := base
		tag.ID = 0
		require.Error(t, validateTag(tag))
	})
	t.Run("zero workers invalid", func(t *testing.T) {
		tag := base
		tag.WorkerCount = 0
		require.Error(t, validateTag(tag))
	})
	t.Run("timer requires active", func(t *testing.T) {
		tag := base
		tag.HandlesTimerTasks = true
		require.Error(t, validateTag(tag))
		tag.IsActive = true
		tag.EnableAsyncIO = true
		require.NoError(t, validateTag(tag))
	})
	t.Run("worker services require active", func(t *testing.T) {
		tag := base
		tag.TickWorkerServices = true
		require.Error(t, validateTag(tag))
	})
	t.Run("acceptors require async io", func(t *testing.T) {
		tag := base
		tag.IsActive = true
		tag.SupportsTCPAsyncAcceptors = true
		require.Error(t, validateTag(tag))
		tag.EnableAsyncIO = true
		require.NoError(t, validateTag(tag))
	})
	t.Run("reactive group must have async io and no task queue", func(t *testing.T) {
		tag := base
		tag.IsActive = false
		require.Error(t, validateTag(tag))
		tag.EnableAsyncIO = true
		require.NoError(t, validateTag(tag))
		tag.EnableTaskQueue = true
		require.Error(t, validateTag(tag))
	})
	t.Run("task queue and async io mutually exclusive", func(t *testing.T) {
		tag := base
		tag.IsActive = true
		tag.EnableAsyncIO = true
		tag.EnableTaskQueue = true
		require.Error(t, validateTag(tag))
	})
}
