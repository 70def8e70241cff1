// Process contexts and the cooperative scheduler. Every context runs its
// entry point on its own goroutine, but the kernel passes a baton: a context
// only runs between a resume from the kernel and its next yield, and the
// kernel waits for that yield. Exactly one of them runs at any instant.

package sim

import (
	"fmt"
	"runtime"
	"strings"
)

// ProcessID identifies a context inside one kernel, in spawn order.
type ProcessID int

// Entry is the code of a simulated process.
type Entry func(p *Process)

// ContextState is the scheduling state of a context.
type ContextState int

const (
	ContextReady ContextState = iota
	ContextRunning
	ContextBlocked
	ContextDead
)

func (s ContextState) String() string {
	switch s {
	case ContextReady:
		return "ready"
	case ContextRunning:
		return "running"
	case ContextBlocked:
		return "blocked"
	case ContextDead:
		return "dead"
	}
	return fmt.Sprintf("ContextState(%d)", int(s))
}

// Context is the suspendable control state of one simulated process.
type Context struct {
	pid    ProcessID
	name   string
	host   string
	args   []string
	entry  Entry
	kernel *Kernel

	state     ContextState
	inReady   bool
	started   bool
	exited    bool
	dying     bool
	killed    bool
	daemon    bool
	suspended bool
	// wokenWhileSuspended records that the context became runnable while
	// suspended; Resume puts it back on the ready queue.
	wokenWhileSuspended bool

	resume  chan struct{}
	pending *Request

	owned     []*Mutex
	onExit    []func(killed bool)
	killTimer *Timer

	startTime float64
	panicErr  error
}

func (c *Context) PID() ProcessID      { return c.pid }
func (c *Context) Name() string        { return c.name }
func (c *Context) Host() string        { return c.host }
func (c *Context) Args() []string      { return c.args }
func (c *Context) State() ContextState { return c.state }
func (c *Context) IsDaemon() bool      { return c.daemon }
func (c *Context) IsSuspended() bool   { return c.suspended }
func (c *Context) IsDying() bool       { return c.dying }
func (c *Context) IsAlive() bool       { return c.state != ContextDead }

// Pending returns the request the context waits on, if any.
func (c *Context) Pending() *Request { return c.pending }

// String returns a human-readable representation of a Context.
func (c *Context) String() string {
	return fmt.Sprintf("%s(%d)@%s", c.name, c.pid, c.host)
}

// main is the goroutine body. It always ends with a yield to the kernel,
// whether the entry returned, panicked or was unwound by a kill.
func (c *Context) main() {
	defer func() {
		if r := recover(); r != nil {
			c.panicErr = &UsageError{
				Op:      "process",
				Process: c.name,
				PID:     c.pid,
				Msg:     fmt.Sprintf("panic: %v", r),
			}
		}
		c.exited = true
		c.kernel.yield <- struct{}{}
	}()
	if c.dying {
		return
	}
	c.entry(&Process{c: c})
}

// issue hands req to the kernel and parks until it is answered. A dying
// context never blocks again: its requests are answered canceled on the spot,
// so deferred cleanup code in the entry runs to completion.
func (c *Context) issue(args RequestArgs) Result {
	if c.dying {
		return Result{Outcome: OutcomeCanceled}
	}
	req := NewRequest(c, args)
	c.pending = req
	c.state = ContextBlocked
	c.kernel.yield <- struct{}{}
	<-c.resume
	if c.dying {
		runtime.Goexit()
	}
	return req.result
}

// exit unwinds the calling context from its own goroutine.
func (c *Context) exit() {
	c.dying = true
	runtime.Goexit()
}

// Spawn creates a context running entry on host. It becomes ready at once
// and first runs in the next scheduling round. Spawning on a host that is off
// fails with an error wrapping ErrResourceFailure.
func (k *Kernel) Spawn(name, host string, entry Entry, args []string) (*Context, error) {
	if entry == nil {
		return nil, fmt.Errorf("spawn %q: nil entry", name)
	}
	if k.cpu != nil {
		if !k.cpu.HasHost(host) {
			return nil, fmt.Errorf("spawn %q: unknown host %q", name, host)
		}
		if r, ok := k.resources[host]; ok && !r.res.IsOn() {
			return nil, fmt.Errorf("spawn %q: host %q is off: %w", name, host, ErrResourceFailure)
		}
	}
	k.nextPID++
	c := &Context{
		pid:       k.nextPID,
		name:      name,
		host:      host,
		args:      args,
		entry:     entry,
		kernel:    k,
		state:     ContextBlocked,
		resume:    make(chan struct{}),
		startTime: k.now,
	}
	k.contexts = append(k.contexts, c)
	k.log.Debugf("[t=%f] spawned %s", k.now, c)
	k.makeReady(c)
	return c, nil
}

// Kill marks c dying. A blocked context is detached from what it waits on;
// at its next turn it unwinds, running its deferred code, and the kernel
// releases everything it holds.
func (k *Kernel) Kill(c *Context) {
	if c.state == ContextDead || c.dying {
		return
	}
	k.log.Debugf("[t=%f] killing %s", k.now, c)
	c.dying = true
	c.killed = true
	if c.pending != nil && !c.pending.answered {
		k.detach(c.pending)
	}
	k.makeReady(c)
}

// SetKillTime schedules a kill of c at date at.
func (k *Kernel) SetKillTime(c *Context, at float64) {
	if c.killTimer != nil {
		c.killTimer.Cancel()
	}
	c.killTimer = k.setTimer(at, func() {
		c.killTimer = nil
		k.Kill(c)
	})
}

// Daemonize makes c a daemon: daemons are killed once only daemons remain.
func (k *Kernel) Daemonize(c *Context) {
	c.daemon = true
}

// Suspend stops c from running until Resume. The action it waits on, if it
// owns it alone, is suspended too.
func (k *Kernel) Suspend(c *Context) {
	if c.state == ContextDead || c.suspended {
		return
	}
	c.suspended = true
	if a := k.waitedAction(c); a != nil {
		a.Suspend()
	}
	if c.inReady {
		k.removeReady(c)
		c.wokenWhileSuspended = true
	}
}

// Resume undoes Suspend.
func (k *Kernel) Resume(c *Context) {
	if c.state == ContextDead || !c.suspended {
		return
	}
	c.suspended = false
	if a := k.waitedAction(c); a != nil {
		a.Resume()
	}
	if c.wokenWhileSuspended {
		c.wokenWhileSuspended = false
		k.makeReady(c)
	}
}

// IsSuspended reports whether c is suspended.
func (k *Kernel) IsSuspended(c *Context) bool { return c.suspended }

// waitedAction returns the non-communication action c alone waits on.
func (k *Kernel) waitedAction(c *Context) *Action {
	if c.pending == nil || c.pending.answered || c.pending.action == nil {
		return nil
	}
	if a := c.pending.action; a.kind != KindComm {
		return a
	}
	return nil
}

// makeReady queues c for the next round, unless it is suspended.
func (k *Kernel) makeReady(c *Context) {
	if c.state == ContextDead || c.inReady {
		return
	}
	if c.suspended && !c.dying {
		c.wokenWhileSuspended = true
		return
	}
	c.state = ContextReady
	c.inReady = true
	k.ready = append(k.ready, c)
}

func (k *Kernel) removeReady(c *Context) {
	for i, r := range k.ready {
		if r == c {
			k.ready = append(k.ready[:i], k.ready[i+1:]...)
			break
		}
	}
	c.inReady = false
	c.state = ContextBlocked
}

// runContext passes the baton to c and waits until c yields it back.
func (k *Kernel) runContext(c *Context) {
	c.state = ContextRunning
	if !c.started {
		c.started = true
		go c.main()
	} else {
		c.resume <- struct{}{}
	}
	<-k.yield
}

// cleanup tears down an exited context: held mutexes are released, on-exit
// callbacks run in reverse registration order, and c leaves the kernel.
func (k *Kernel) cleanup(c *Context) {
	c.state = ContextDead
	c.pending = nil
	if c.killTimer != nil {
		c.killTimer.Cancel()
		c.killTimer = nil
	}
	for len(c.owned) > 0 {
		k.releaseMutex(c.owned[0], true)
	}
	for i := len(c.onExit) - 1; i >= 0; i-- {
		c.onExit[i](c.killed)
	}
	for i, o := range k.contexts {
		if o == c {
			k.contexts = append(k.contexts[:i], k.contexts[i+1:]...)
			break
		}
	}
	k.recordContext(c)
	if c.panicErr != nil {
		k.abort(c.panicErr)
	}
	k.log.Debugf("[t=%f] %s terminated (killed: %v)", k.now, c, c.killed)
}

// statusDump describes every live context, for deadlock reports.
func (k *Kernel) statusDump() string {
	var b strings.Builder
	for _, c := range k.contexts {
		fmt.Fprintf(&b, "  %s [%s", c, c.state)
		if c.suspended {
			b.WriteString(", suspended")
		}
		if c.daemon {
			b.WriteString(", daemon")
		}
		b.WriteString("]")
		if c.pending != nil {
			fmt.Fprintf(&b, " waiting on %s", c.pending.Kind())
			if a := c.pending.action; a != nil {
				fmt.Fprintf(&b, " (%s)", a)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
