package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simkern/simkern/sim/internal/testutil"
)

type stamp struct {
	name string
	at   float64
}

func TestMutex_Waiters_AcquireInFIFOOrder(t *testing.T) {
	// GIVEN four processes locking the same mutex and holding it 1 s each
	k := newTestKernel(t)
	m := k.NewMutex()
	var got []stamp
	for _, name := range []string{"A", "B", "C", "D"} {
		mustSpawn(t, k, name, "h1", func(p *Process) {
			p.Lock(m)
			got = append(got, stamp{p.Name(), p.Now()})
			require.NoError(t, p.Sleep(1))
			p.Unlock(m)
		})
	}

	// WHEN the simulation runs
	report := mustRun(t, k)

	// THEN ownership passes in lock order, one second apart
	want := []stamp{{"A", 0}, {"B", 1}, {"C", 2}, {"D", 3}}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].name, got[i].name)
		testutil.AssertFloat64Equal(t, want[i].name, want[i].at, got[i].at, tol)
	}
	testutil.AssertFloat64Equal(t, "end time", 4, report.EndTime, tol)
	assert.False(t, m.IsLocked())
}

func TestMutex_Unlock_HandsOverBeforeSameRoundTryLock(t *testing.T) {
	// GIVEN A holding the mutex until t=1, B queued on it, and C waking at
	// t=1 to run a zero-cost execution then try the lock
	k := newTestKernel(t)
	m := k.NewMutex()
	var owners []stamp
	var cTried bool
	var cAt float64
	var ownerAtTry *Context
	var b *Context
	mustSpawn(t, k, "A", "h1", func(p *Process) {
		p.Lock(m)
		owners = append(owners, stamp{p.Name(), p.Now()})
		require.NoError(t, p.Sleep(1))
		p.Unlock(m)
	})
	b = mustSpawn(t, k, "B", "h1", func(p *Process) {
		p.Lock(m)
		owners = append(owners, stamp{p.Name(), p.Now()})
		require.NoError(t, p.Sleep(1))
		p.Unlock(m)
	})
	mustSpawn(t, k, "C", "h1", func(p *Process) {
		require.NoError(t, p.Sleep(1))
		require.NoError(t, p.Execute(0))
		cAt = p.Now()
		cTried = p.TryLock(m)
		ownerAtTry = m.Owner()
		if cTried {
			p.Unlock(m)
		}
	})

	// WHEN the simulation runs
	mustRun(t, k)

	// THEN the waiter B is the next owner and C's attempt at the same date fails
	want := []stamp{{"A", 0}, {"B", 1}}
	require.Len(t, owners, len(want))
	for i := range want {
		assert.Equal(t, want[i].name, owners[i].name)
		testutil.AssertFloat64Equal(t, want[i].name, want[i].at, owners[i].at, tol)
	}
	testutil.AssertFloat64Equal(t, "try date", 1, cAt, tol)
	assert.False(t, cTried)
	assert.Same(t, b, ownerAtTry)
}

func TestMutex_TryLock_FailsWhileHeld(t *testing.T) {
	k := newTestKernel(t)
	m := k.NewMutex()
	var whileHeld, afterRelease bool
	mustSpawn(t, k, "holder", "h1", func(p *Process) {
		p.Lock(m)
		require.NoError(t, p.Sleep(1))
		p.Unlock(m)
	})
	mustSpawn(t, k, "prober", "h1", func(p *Process) {
		require.NoError(t, p.Sleep(0.5))
		whileHeld = p.TryLock(m)
		require.NoError(t, p.Sleep(1))
		afterRelease = p.TryLock(m)
		p.Unlock(m)
	})

	mustRun(t, k)

	assert.False(t, whileHeld)
	assert.True(t, afterRelease)
}

func TestMutex_Recursive_ReleasedAfterMatchingUnlocks(t *testing.T) {
	k := newTestKernel(t)
	m := k.NewRecursiveMutex()
	var ownedAfterOne bool
	mustSpawn(t, k, "p", "h1", func(p *Process) {
		p.Lock(m)
		p.Lock(m)
		p.Unlock(m)
		ownedAfterOne = m.Owner() == p.Self()
		p.Unlock(m)
	})

	mustRun(t, k)

	assert.True(t, ownedAfterOne)
	assert.False(t, m.IsLocked())
}

func TestCond_Signal_WaiterReacquiresMutexFirst(t *testing.T) {
	// GIVEN a waiter on a condition and a signaler keeping the mutex 1 s
	// after signaling
	k := newTestKernel(t)
	m, cond := k.NewMutex(), k.NewCond()
	ready := false
	var resumedAt float64
	var ownedOnResume bool
	mustSpawn(t, k, "waiter", "h1", func(p *Process) {
		p.Lock(m)
		for !ready {
			p.Wait(cond, m)
		}
		resumedAt = p.Now()
		ownedOnResume = m.Owner() == p.Self()
		p.Unlock(m)
	})
	mustSpawn(t, k, "signaler", "h1", func(p *Process) {
		require.NoError(t, p.Sleep(1))
		p.Lock(m)
		ready = true
		p.Signal(cond)
		require.NoError(t, p.Sleep(1))
		p.Unlock(m)
	})

	// WHEN the simulation runs
	mustRun(t, k)

	// THEN the waiter resumes only once the signaler released the mutex
	testutil.AssertFloat64Equal(t, "resume date", 2, resumedAt, tol)
	assert.True(t, ownedOnResume)
	assert.Equal(t, 0, cond.Waiters())
}

func TestCond_Broadcast_WakesEveryWaiter(t *testing.T) {
	k := newTestKernel(t)
	m, cond := k.NewMutex(), k.NewCond()
	var woken []string
	for _, name := range []string{"w1", "w2", "w3"} {
		mustSpawn(t, k, name, "h1", func(p *Process) {
			p.Lock(m)
			p.Wait(cond, m)
			woken = append(woken, p.Name())
			p.Unlock(m)
		})
	}
	mustSpawn(t, k, "caller", "h1", func(p *Process) {
		require.NoError(t, p.Sleep(1))
		p.Broadcast(cond)
	})

	mustRun(t, k)

	assert.Equal(t, []string{"w1", "w2", "w3"}, woken)
}

func TestCond_SignalWithoutWaiters_IsLost(t *testing.T) {
	k := newTestKernel(t)
	m, cond := k.NewMutex(), k.NewCond()
	var err error
	mustSpawn(t, k, "p", "h1", func(p *Process) {
		p.Signal(cond)
		p.Lock(m)
		err = p.WaitTimeout(cond, m, 1)
		p.Unlock(m)
	})

	mustRun(t, k)

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCond_WaitTimeout_ExpiresAndReacquires(t *testing.T) {
	tests := []struct {
		name       string
		holdFrom   float64 // < 0: nobody else takes the mutex
		wantResume float64
	}{
		{name: "mutex free at expiry", holdFrom: -1, wantResume: 2},
		{name: "mutex held at expiry", holdFrom: 1, wantResume: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := newTestKernel(t)
			m, cond := k.NewMutex(), k.NewCond()
			var err error
			var resumedAt float64
			var owned bool
			mustSpawn(t, k, "waiter", "h1", func(p *Process) {
				p.Lock(m)
				err = p.WaitTimeout(cond, m, 2)
				resumedAt = p.Now()
				owned = m.Owner() == p.Self()
				p.Unlock(m)
			})
			if tc.holdFrom >= 0 {
				mustSpawn(t, k, "holder", "h1", func(p *Process) {
					require.NoError(t, p.Sleep(tc.holdFrom))
					p.Lock(m)
					require.NoError(t, p.Sleep(2))
					p.Unlock(m)
				})
			}

			mustRun(t, k)

			assert.ErrorIs(t, err, ErrTimeout)
			testutil.AssertFloat64Equal(t, "resume date", tc.wantResume, resumedAt, tol)
			assert.True(t, owned)
		})
	}
}

func TestSemaphore_CapacityOne_ReleasesWaitersInOrder(t *testing.T) {
	// GIVEN a one-permit semaphore and four processes holding it 1 s each
	k := newTestKernel(t)
	s := k.NewSemaphore(1)
	var got []stamp
	for _, name := range []string{"holder", "w1", "w2", "w3"} {
		mustSpawn(t, k, name, "h1", func(p *Process) {
			p.Acquire(s)
			got = append(got, stamp{p.Name(), p.Now()})
			require.NoError(t, p.Sleep(1))
			p.Release(s)
		})
	}

	mustRun(t, k)

	// THEN the permit moves from one waiter to the next in arrival order
	want := []stamp{{"holder", 0}, {"w1", 1}, {"w2", 2}, {"w3", 3}}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].name, got[i].name)
		testutil.AssertFloat64Equal(t, want[i].name, want[i].at, got[i].at, tol)
	}
	assert.Equal(t, 1, s.Value())
}

func TestSemaphore_AcquireTimeoutAndWouldBlock(t *testing.T) {
	k := newTestKernel(t)
	s := k.NewSemaphore(0)
	var (
		timeoutErr, laterErr error
		timedOutAt           float64
		blockBefore          bool
		blockAfter           bool
	)
	mustSpawn(t, k, "taker", "h1", func(p *Process) {
		timeoutErr = p.AcquireTimeout(s, 1.5)
		timedOutAt = p.Now()
		blockBefore = p.WouldBlock(s)
		require.NoError(t, p.Sleep(1))
		blockAfter = p.WouldBlock(s)
		laterErr = p.AcquireTimeout(s, 5)
	})
	mustSpawn(t, k, "giver", "h1", func(p *Process) {
		require.NoError(t, p.Sleep(2))
		p.Release(s)
	})

	report := mustRun(t, k)

	assert.ErrorIs(t, timeoutErr, ErrTimeout)
	testutil.AssertFloat64Equal(t, "timeout date", 1.5, timedOutAt, tol)
	assert.True(t, blockBefore)
	assert.False(t, blockAfter)
	assert.NoError(t, laterErr)
	testutil.AssertFloat64Equal(t, "end time", 2.5, report.EndTime, tol)
	assert.Equal(t, 0, s.Value())
}

func TestSyncPrimitives_Misuse_AbortsWithUsageError(t *testing.T) {
	tests := []struct {
		name    string
		entry   func(k *Kernel) Entry
		wantOp  string
		wantMsg string
	}{
		{
			name: "unlock a mutex not owned",
			entry: func(k *Kernel) Entry {
				m := k.NewMutex()
				return func(p *Process) { p.Unlock(m) }
			},
			wantOp:  "mutex-unlock",
			wantMsg: "not owned by the caller",
		},
		{
			name: "lock a non-recursive mutex twice",
			entry: func(k *Kernel) Entry {
				m := k.NewMutex()
				return func(p *Process) {
					p.Lock(m)
					p.Lock(m)
				}
			},
			wantOp:  "mutex-lock",
			wantMsg: "already owned",
		},
		{
			name: "wait without holding the mutex",
			entry: func(k *Kernel) Entry {
				m, cond := k.NewMutex(), k.NewCond()
				return func(p *Process) { p.Wait(cond, m) }
			},
			wantOp:  "cond-wait",
			wantMsg: "not owned by the caller",
		},
		{
			name: "destroy a locked mutex",
			entry: func(k *Kernel) Entry {
				m := k.NewMutex()
				return func(p *Process) {
					p.Lock(m)
					p.Destroy(m)
				}
			},
			wantOp:  "sync-destroy",
			wantMsg: "destroyed while in use",
		},
		{
			name: "acquire a destroyed semaphore",
			entry: func(k *Kernel) Entry {
				s := k.NewSemaphore(1)
				return func(p *Process) {
					p.Destroy(s)
					p.Acquire(s)
				}
			},
			wantOp:  "sem-acquire",
			wantMsg: "was destroyed",
		},
		{
			name: "destroy twice",
			entry: func(k *Kernel) Entry {
				cond := k.NewCond()
				return func(p *Process) {
					p.Destroy(cond)
					p.Destroy(cond)
				}
			},
			wantOp:  "sync-destroy",
			wantMsg: "destroyed twice",
		},
		{
			name: "destroy something else",
			entry: func(k *Kernel) Entry {
				return func(p *Process) { p.Destroy("not a primitive") }
			},
			wantOp:  "sync-destroy",
			wantMsg: "cannot destroy string",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a process misusing a primitive
			k := newTestKernel(t)
			mustSpawn(t, k, "culprit", "h1", tc.entry(k))

			// WHEN the simulation runs
			_, err := k.Run(context.Background())

			// THEN it aborts with a usage error and every context is unwound
			var ue *UsageError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.Equal(t, tc.wantOp, ue.Op)
			assert.Equal(t, "culprit", ue.Process)
			assert.Contains(t, ue.Msg, tc.wantMsg)
			assert.Empty(t, k.Contexts())
		})
	}
}

func TestNewSemaphore_NegativePermits_Panics(t *testing.T) {
	k := newTestKernel(t)
	assert.PanicsWithValue(t, "Semaphore: initial permits must be >= 0, got -1", func() {
		k.NewSemaphore(-1)
	})
}
