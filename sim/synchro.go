// Synchronization primitives. Each one keeps an ordered queue of the requests
// blocked on it; the context behind a queued request is blocked until the
// kernel answers that request. All operations run in kernel context, from
// dispatch.

package sim

import "fmt"

// SyncID identifies a primitive inside one kernel.
type SyncID int

type syncBase struct {
	id        SyncID
	destroyed bool
}

func (s *syncBase) ID() SyncID { return s.id }

// removeRequest drops req from q and reports whether it was there.
func removeRequest(q []*Request, req *Request) ([]*Request, bool) {
	for i, r := range q {
		if r == req {
			return append(q[:i], q[i+1:]...), true
		}
	}
	return q, false
}

// Mutex is a FIFO lock: unlocking hands ownership directly to the oldest
// waiter, so no other context can grab it in between.
type Mutex struct {
	syncBase
	recursive bool
	owner     *Context
	count     int
	queue     []*Request
}

func (m *Mutex) Owner() *Context { return m.owner }
func (m *Mutex) IsLocked() bool  { return m.owner != nil }

// Waiters returns the number of contexts blocked on the mutex.
func (m *Mutex) Waiters() int { return len(m.queue) }

func (m *Mutex) String() string {
	owner := "none"
	if m.owner != nil {
		owner = m.owner.String()
	}
	return fmt.Sprintf("Mutex: (ID: %d, Owner: %s, Waiters: %d)", m.id, owner, len(m.queue))
}

// Cond is a condition variable with Mesa semantics: signaled waiters
// re-acquire their mutex before resuming.
type Cond struct {
	syncBase
	queue []*Request
}

func (c *Cond) Waiters() int { return len(c.queue) }

func (c *Cond) String() string {
	return fmt.Sprintf("Cond: (ID: %d, Waiters: %d)", c.id, len(c.queue))
}

// Semaphore holds a permit count. A release with waiters transfers the
// permit to the oldest one.
type Semaphore struct {
	syncBase
	value int
	queue []*Request
}

func (s *Semaphore) Value() int   { return s.value }
func (s *Semaphore) Waiters() int { return len(s.queue) }

func (s *Semaphore) String() string {
	return fmt.Sprintf("Semaphore: (ID: %d, Value: %d, Waiters: %d)", s.id, s.value, len(s.queue))
}

// NewMutex creates a non-recursive mutex.
func (k *Kernel) NewMutex() *Mutex {
	k.nextSync++
	return &Mutex{syncBase: syncBase{id: k.nextSync}}
}

// NewRecursiveMutex creates a mutex its owner may lock again; it is released
// once unlocked as many times as locked.
func (k *Kernel) NewRecursiveMutex() *Mutex {
	m := k.NewMutex()
	m.recursive = true
	return m
}

func (k *Kernel) NewCond() *Cond {
	k.nextSync++
	return &Cond{syncBase: syncBase{id: k.nextSync}}
}

// NewSemaphore creates a semaphore holding permits permits.
func (k *Kernel) NewSemaphore(permits int) *Semaphore {
	if permits < 0 {
		panic(fmt.Sprintf("Semaphore: initial permits must be >= 0, got %d", permits))
	}
	k.nextSync++
	return &Semaphore{syncBase: syncBase{id: k.nextSync}, value: permits}
}

func (k *Kernel) mutexLock(req *Request, m *Mutex) error {
	c := req.issuer
	if m.destroyed {
		return k.usage(req, "mutex %d was destroyed", m.id)
	}
	switch {
	case m.owner == nil:
		k.grantMutex(m, c)
		k.answer(req, OutcomeSuccess, nil)
	case m.owner == c && m.recursive:
		m.count++
		k.answer(req, OutcomeSuccess, nil)
	case m.owner == c:
		return k.usage(req, "mutex %d is already owned by the caller", m.id)
	default:
		m.queue = append(m.queue, req)
	}
	return nil
}

func (k *Kernel) mutexTryLock(req *Request, m *Mutex) error {
	c := req.issuer
	if m.destroyed {
		return k.usage(req, "mutex %d was destroyed", m.id)
	}
	switch {
	case m.owner == nil:
		k.grantMutex(m, c)
		k.answer(req, OutcomeSuccess, true)
	case m.owner == c && m.recursive:
		m.count++
		k.answer(req, OutcomeSuccess, true)
	default:
		k.answer(req, OutcomeSuccess, false)
	}
	return nil
}

func (k *Kernel) mutexUnlock(req *Request, m *Mutex) error {
	if m.destroyed {
		return k.usage(req, "mutex %d was destroyed", m.id)
	}
	if m.owner != req.issuer {
		return k.usage(req, "mutex %d is not owned by the caller", m.id)
	}
	k.releaseMutex(m, false)
	k.answer(req, OutcomeSuccess, nil)
	return nil
}

func (k *Kernel) grantMutex(m *Mutex, c *Context) {
	m.owner = c
	m.count = 1
	c.owned = append(c.owned, m)
}

// releaseMutex drops one level of ownership, or all of them when full is
// set, and hands the mutex to the head waiter once it is free.
func (k *Kernel) releaseMutex(m *Mutex, full bool) {
	m.count--
	if full {
		m.count = 0
	}
	if m.count > 0 {
		return
	}
	prev := m.owner
	m.owner = nil
	for i, o := range prev.owned {
		if o == m {
			prev.owned = append(prev.owned[:i], prev.owned[i+1:]...)
			break
		}
	}
	if len(m.queue) == 0 {
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	k.grantMutex(m, next.issuer)
	// A condition waiter re-acquiring its mutex gets the outcome of its wait.
	k.answer(next, next.pendingOutcome, nil)
}

func (k *Kernel) condWait(req *Request, args CondWaitArgs) error {
	cond, m := args.Cond, args.Mutex
	if cond.destroyed {
		return k.usage(req, "cond %d was destroyed", cond.id)
	}
	if m == nil || m.destroyed {
		return k.usage(req, "cond %d: waiting requires a live mutex", cond.id)
	}
	if m.owner != req.issuer {
		return k.usage(req, "cond %d: mutex %d is not owned by the caller", cond.id, m.id)
	}
	k.releaseMutex(m, true)
	cond.queue = append(cond.queue, req)
	if args.Timeout >= 0 {
		req.timer = k.setTimer(k.now+args.Timeout, func() {
			var ok bool
			if cond.queue, ok = removeRequest(cond.queue, req); ok {
				k.reacquire(req, OutcomeTimeout)
			}
		})
	}
	return nil
}

// reacquire makes a condition waiter take its mutex back before its wait
// is answered with outcome.
func (k *Kernel) reacquire(req *Request, outcome Outcome) {
	k.cancelTimer(req)
	req.pendingOutcome = outcome
	m := req.Args.(CondWaitArgs).Mutex
	if m.owner == nil {
		k.grantMutex(m, req.issuer)
		k.answer(req, outcome, nil)
		return
	}
	m.queue = append(m.queue, req)
}

func (k *Kernel) condSignal(req *Request, args CondArgs) error {
	cond := args.Cond
	if cond.destroyed {
		return k.usage(req, "cond %d was destroyed", cond.id)
	}
	for len(cond.queue) > 0 {
		w := cond.queue[0]
		cond.queue = cond.queue[1:]
		k.reacquire(w, OutcomeSuccess)
		if !args.Broadcast {
			break
		}
	}
	k.answer(req, OutcomeSuccess, nil)
	return nil
}

func (k *Kernel) semAcquire(req *Request, args SemArgs) error {
	s := args.Sem
	if s.destroyed {
		return k.usage(req, "semaphore %d was destroyed", s.id)
	}
	if s.value > 0 {
		s.value--
		k.answer(req, OutcomeSuccess, nil)
		return nil
	}
	s.queue = append(s.queue, req)
	if args.Timeout >= 0 {
		req.timer = k.setTimer(k.now+args.Timeout, func() {
			var ok bool
			if s.queue, ok = removeRequest(s.queue, req); ok {
				k.answer(req, OutcomeTimeout, nil)
			}
		})
	}
	return nil
}

func (k *Kernel) semRelease(req *Request, s *Semaphore) error {
	if s.destroyed {
		return k.usage(req, "semaphore %d was destroyed", s.id)
	}
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		k.answer(next, OutcomeSuccess, nil)
	} else {
		s.value++
	}
	k.answer(req, OutcomeSuccess, nil)
	return nil
}

func (k *Kernel) semWouldBlock(req *Request, s *Semaphore) error {
	if s.destroyed {
		return k.usage(req, "semaphore %d was destroyed", s.id)
	}
	k.answer(req, OutcomeSuccess, s.value <= 0)
	return nil
}

// syncDestroy destroys a primitive. Destroying one with blocked contexts,
// or a locked mutex, or destroying twice, is a usage error.
func (k *Kernel) syncDestroy(req *Request, obj any) error {
	var base *syncBase
	switch o := obj.(type) {
	case *Mutex:
		if o.owner != nil || len(o.queue) > 0 {
			return k.usage(req, "mutex %d destroyed while in use", o.id)
		}
		base = &o.syncBase
	case *Cond:
		if len(o.queue) > 0 {
			return k.usage(req, "cond %d destroyed with %d waiters", o.id, len(o.queue))
		}
		base = &o.syncBase
	case *Semaphore:
		if len(o.queue) > 0 {
			return k.usage(req, "semaphore %d destroyed with %d waiters", o.id, len(o.queue))
		}
		base = &o.syncBase
	default:
		return k.usage(req, "cannot destroy %T", obj)
	}
	if base.destroyed {
		return k.usage(req, "primitive %d destroyed twice", base.id)
	}
	base.destroyed = true
	k.answer(req, OutcomeSuccess, nil)
	return nil
}

// withdrawSync removes req from whatever primitive queue holds it.
func (k *Kernel) withdrawSync(req *Request) {
	switch a := req.Args.(type) {
	case MutexArgs:
		a.Mutex.queue, _ = removeRequest(a.Mutex.queue, req)
	case CondWaitArgs:
		a.Cond.queue, _ = removeRequest(a.Cond.queue, req)
		a.Mutex.queue, _ = removeRequest(a.Mutex.queue, req)
	case SemArgs:
		a.Sem.queue, _ = removeRequest(a.Sem.queue, req)
	}
}
