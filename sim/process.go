package sim

import "fmt"

// Process is the handle simulated code uses to talk to the kernel. Every
// blocking method issues one request and parks the process until the kernel
// answers it. Methods must only be called from the process's own entry.
type Process struct {
	c *Context
}

func (p *Process) Self() *Context  { return p.c }
func (p *Process) Name() string    { return p.c.name }
func (p *Process) PID() ProcessID  { return p.c.pid }
func (p *Process) Host() string    { return p.c.host }
func (p *Process) Args() []string  { return p.c.args }
func (p *Process) Now() float64    { return p.c.kernel.now }
func (p *Process) Kernel() *Kernel { return p.c.kernel }
func (p *Process) IsDaemon() bool  { return p.c.daemon }
func (p *Process) String() string  { return p.c.String() }

// Logf logs a line tagged with the simulated date and the process.
func (p *Process) Logf(format string, args ...any) {
	p.c.kernel.log.Infof("[t=%f] %s: %s", p.c.kernel.now, p.c, fmt.Sprintf(format, args...))
}

// Execute runs flops on the process's host.
func (p *Process) Execute(flops float64) error {
	return p.ExecuteWith(flops, ExecOptions{})
}

// ExecuteWith runs flops with a sharing priority and an optional rate cap.
func (p *Process) ExecuteWith(flops float64, opts ExecOptions) error {
	return p.c.issue(ExecuteArgs{Flops: flops, Priority: opts.Priority, Bound: opts.Bound}).Outcome.Err()
}

// Sleep blocks for duration seconds. It fails if the host turns off.
func (p *Process) Sleep(duration float64) error {
	return p.c.issue(SleepArgs{Duration: duration}).Outcome.Err()
}

// Send blocks until a receiver took payload from mailbox and size bytes
// crossed the network.
func (p *Process) Send(mailbox string, payload any, size float64) error {
	return p.SendWithRate(mailbox, payload, size, 0)
}

// SendWithRate is Send with the transfer capped at rate bytes/s.
func (p *Process) SendWithRate(mailbox string, payload any, size, rate float64) error {
	return p.c.issue(SendArgs{Mailbox: mailbox, Payload: payload, Size: size, Rate: rate}).Outcome.Err()
}

// Recv blocks until a message arrives on mailbox and returns its payload.
func (p *Process) Recv(mailbox string) (any, error) {
	res := p.c.issue(RecvArgs{Mailbox: mailbox})
	return res.Value, res.Outcome.Err()
}

func (p *Process) NewMutex() *Mutex              { return p.c.kernel.NewMutex() }
func (p *Process) NewRecursiveMutex() *Mutex     { return p.c.kernel.NewRecursiveMutex() }
func (p *Process) NewCond() *Cond                { return p.c.kernel.NewCond() }
func (p *Process) NewSemaphore(n int) *Semaphore { return p.c.kernel.NewSemaphore(n) }

// Lock blocks until the process owns m.
func (p *Process) Lock(m *Mutex) {
	p.c.issue(MutexArgs{Mutex: m, kind: ReqMutexLock})
}

// TryLock takes m if it is free and reports whether it did.
func (p *Process) TryLock(m *Mutex) bool {
	ok, _ := p.c.issue(MutexArgs{Mutex: m, kind: ReqMutexTryLock}).Value.(bool)
	return ok
}

// Unlock releases m. Unlocking a mutex the process does not own aborts the
// simulation.
func (p *Process) Unlock(m *Mutex) {
	p.c.issue(MutexArgs{Mutex: m, kind: ReqMutexUnlock})
}

// Wait releases m, blocks until cond is signaled, then re-acquires m.
func (p *Process) Wait(cond *Cond, m *Mutex) {
	p.c.issue(CondWaitArgs{Cond: cond, Mutex: m, Timeout: -1})
}

// WaitTimeout is Wait giving up after timeout seconds with ErrTimeout. The
// mutex is re-acquired in both cases.
func (p *Process) WaitTimeout(cond *Cond, m *Mutex, timeout float64) error {
	if timeout < 0 {
		timeout = 0
	}
	return p.c.issue(CondWaitArgs{Cond: cond, Mutex: m, Timeout: timeout}).Outcome.Err()
}

func (p *Process) Signal(cond *Cond) {
	p.c.issue(CondArgs{Cond: cond})
}

func (p *Process) Broadcast(cond *Cond) {
	p.c.issue(CondArgs{Cond: cond, Broadcast: true})
}

// Acquire takes one permit of s, blocking while none is available.
func (p *Process) Acquire(s *Semaphore) {
	p.c.issue(SemArgs{Sem: s, Timeout: -1, kind: ReqSemAcquire})
}

// AcquireTimeout is Acquire giving up after timeout seconds with ErrTimeout.
func (p *Process) AcquireTimeout(s *Semaphore, timeout float64) error {
	if timeout < 0 {
		timeout = 0
	}
	return p.c.issue(SemArgs{Sem: s, Timeout: timeout, kind: ReqSemAcquireTimeout}).Outcome.Err()
}

func (p *Process) Release(s *Semaphore) {
	p.c.issue(SemArgs{Sem: s, Timeout: -1, kind: ReqSemRelease})
}

// WouldBlock reports whether Acquire would block right now.
func (p *Process) WouldBlock(s *Semaphore) bool {
	block, _ := p.c.issue(SemArgs{Sem: s, Timeout: -1, kind: ReqSemWouldBlock}).Value.(bool)
	return block
}

// Destroy destroys a *Mutex, *Cond or *Semaphore. Destroying a primitive in
// use aborts the simulation.
func (p *Process) Destroy(obj any) {
	p.c.issue(DestroyArgs{Object: obj})
}

// Spawn starts a new process on the same host.
func (p *Process) Spawn(name string, entry Entry, args ...string) *Context {
	return p.SpawnWith(SpawnArgs{Name: name, Entry: entry, Args: args})
}

// SpawnWith starts a new process; an empty Host means the caller's host. It
// returns nil when the host is off.
func (p *Process) SpawnWith(args SpawnArgs) *Context {
	child, _ := p.c.issue(args).Value.(*Context)
	return child
}

// Kill kills target. Killing oneself is Exit.
func (p *Process) Kill(target *Context) {
	if target == p.c {
		p.Exit()
	}
	p.c.issue(ProcessArgs{Target: target, kind: ReqProcessKill})
}

// Suspend suspends target, possibly the process itself.
func (p *Process) Suspend(target *Context) {
	p.c.issue(ProcessArgs{Target: target, kind: ReqProcessSuspend})
}

func (p *Process) Resume(target *Context) {
	p.c.issue(ProcessArgs{Target: target, kind: ReqProcessResume})
}

// Exit ends the process now. Deferred calls run, then the kernel releases
// whatever it holds.
func (p *Process) Exit() {
	p.c.exit()
}

// Daemonize makes the process a daemon, killed once only daemons remain.
func (p *Process) Daemonize() {
	p.c.kernel.Daemonize(p.c)
}

// OnExit registers fn to run in the kernel once the process terminated.
// fn must not call Process methods.
func (p *Process) OnExit(fn func(killed bool)) {
	p.c.onExit = append(p.c.onExit, fn)
}

// Open opens path on disk.
func (p *Process) Open(disk, path string) (*File, error) {
	res := p.c.issue(IOOpenArgs{Disk: disk, Path: path})
	f, _ := res.Value.(*File)
	return f, res.Outcome.Err()
}

// Read reads size bytes from f and returns the amount read.
func (p *Process) Read(f *File, size float64) (float64, error) {
	res := p.c.issue(IOArgs{File: f, Size: size})
	n, _ := res.Value.(float64)
	return n, res.Outcome.Err()
}

// Write writes size bytes to f and returns the amount written.
func (p *Process) Write(f *File, size float64) (float64, error) {
	res := p.c.issue(IOArgs{File: f, Size: size, Write: true})
	n, _ := res.Value.(float64)
	return n, res.Outcome.Err()
}

func (p *Process) Close(f *File) {
	p.c.issue(IOCloseArgs{File: f})
}
