package scenario

import (
	"fmt"

	"github.com/simkern/simkern/sim"
)

// world holds what the scripted processes of one kernel share: named
// primitives and the contexts started per process name.
type world struct {
	kernel     *sim.Kernel
	templates  map[string]*ProcessSpec
	mutexes    map[string]*sim.Mutex
	conds      map[string]*sim.Cond
	semaphores map[string]*sim.Semaphore
	running    map[string]*sim.Context // latest context started per name
}

func newWorld(s *Spec, k *sim.Kernel) *world {
	w := &world{
		kernel:     k,
		templates:  make(map[string]*ProcessSpec, len(s.Processes)),
		mutexes:    make(map[string]*sim.Mutex, len(s.Mutexes)),
		conds:      make(map[string]*sim.Cond, len(s.Conds)),
		semaphores: make(map[string]*sim.Semaphore, len(s.Semaphores)),
		running:    make(map[string]*sim.Context),
	}
	for i := range s.Processes {
		w.templates[s.Processes[i].Name] = &s.Processes[i]
	}
	for _, m := range s.Mutexes {
		if m.Recursive {
			w.mutexes[m.Name] = k.NewRecursiveMutex()
		} else {
			w.mutexes[m.Name] = k.NewMutex()
		}
	}
	for _, c := range s.Conds {
		w.conds[c] = k.NewCond()
	}
	for _, sem := range s.Semaphores {
		w.semaphores[sem.Name] = k.NewSemaphore(sem.Permits)
	}
	return w
}

// started records c as the running instance of ps and applies its daemon
// flag and kill time.
func (w *world) started(ps *ProcessSpec, c *sim.Context) {
	w.running[ps.Name] = c
	if ps.Daemon {
		w.kernel.Daemonize(c)
	}
	if ps.KillTime != nil {
		w.kernel.SetKillTime(c, *ps.KillTime)
	}
}

func (w *world) entry(ps *ProcessSpec) sim.Entry {
	keepGoing := ps.OnError == "continue"
	return func(p *sim.Process) {
		if err := w.run(p, ps.Steps, keepGoing); err != nil {
			p.Logf("stopped: %v", err)
		}
	}
}

// run executes steps in order. A failing step stops the script unless
// keepGoing is set, in which case the error is logged.
func (w *world) run(p *sim.Process, steps []StepSpec, keepGoing bool) error {
	for i := range steps {
		st := &steps[i]
		err := w.step(p, st, keepGoing)
		if err == nil {
			continue
		}
		if !keepGoing {
			return fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
		p.Logf("step %d (%s): %v", i, st.Op, err)
	}
	return nil
}

func (w *world) step(p *sim.Process, st *StepSpec, keepGoing bool) error {
	switch st.Op {
	case OpExecute:
		return p.ExecuteWith(st.Amount, sim.ExecOptions{Priority: st.Priority, Bound: st.Bound})
	case OpSleep:
		return p.Sleep(st.Duration)
	case OpSend:
		return p.SendWithRate(st.Mailbox, st.Payload, st.Amount, st.Bound)
	case OpRecv:
		v, err := p.Recv(st.Mailbox)
		if err == nil {
			p.Logf("received %v on %s", v, st.Mailbox)
		}
		return err

	case OpLock:
		p.Lock(w.mutexes[st.Target])
	case OpTryLock:
		if !p.TryLock(w.mutexes[st.Target]) {
			return ErrBusy
		}
	case OpUnlock:
		p.Unlock(w.mutexes[st.Target])
	case OpWait:
		cond, m := w.conds[st.Target], w.mutexes[st.Mutex]
		if st.Timeout != nil {
			return p.WaitTimeout(cond, m, *st.Timeout)
		}
		p.Wait(cond, m)
	case OpSignal:
		p.Signal(w.conds[st.Target])
	case OpBroadcast:
		p.Broadcast(w.conds[st.Target])
	case OpAcquire:
		s := w.semaphores[st.Target]
		if st.Timeout != nil {
			return p.AcquireTimeout(s, *st.Timeout)
		}
		p.Acquire(s)
	case OpRelease:
		p.Release(w.semaphores[st.Target])

	case OpRead, OpWrite:
		f, err := p.Open(st.Disk, st.Path)
		if err != nil {
			return err
		}
		defer p.Close(f)
		if st.Op == OpWrite {
			_, err = p.Write(f, st.Amount)
		} else {
			_, err = p.Read(f, st.Amount)
		}
		return err

	case OpSpawn:
		ps := w.templates[st.Target]
		host := st.Host
		if host == "" {
			host = ps.Host
		}
		c := p.SpawnWith(sim.SpawnArgs{Name: ps.Name, Host: host, Entry: w.entry(ps), Args: ps.Args})
		if c == nil {
			return fmt.Errorf("spawning %q on %q: %w", ps.Name, host, sim.ErrResourceFailure)
		}
		w.started(ps, c)
	case OpKill, OpSuspend, OpResume:
		c := w.running[st.Target]
		if c == nil || !c.IsAlive() {
			return fmt.Errorf("process %q is not running", st.Target)
		}
		switch st.Op {
		case OpKill:
			p.Kill(c)
		case OpSuspend:
			p.Suspend(c)
		case OpResume:
			p.Resume(c)
		}

	case OpRepeat:
		for i := 0; i < st.Times; i++ {
			if err := w.run(p, st.Steps, keepGoing); err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
		}
	case OpLog:
		p.Logf("%s", st.Message)
	default:
		panic(fmt.Sprintf("scenario: unhandled op %q", st.Op))
	}
	return nil
}
