// Implements the Kernel, the single object owning a simulation: models,
// contexts, timers, live actions and primitives. Its Run loop alternates
// scheduling rounds (contexts run, issued requests are dispatched, ended
// actions are answered) with time advances to the next event of any model,
// timer or trace feed.

package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/simkern/simkern/sim/trace"
)

// Timer is a callback scheduled on the kernel's event clock. Canceled timers
// stay in the clock and are skipped when popped.
type Timer struct {
	at       float64
	fn       func()
	canceled bool
}

func (t *Timer) At() float64 { return t.at }

// Cancel prevents the timer from firing.
func (t *Timer) Cancel() { t.canceled = true }

// TraceEvent is an exogenous change of a resource state at some date.
type TraceEvent struct {
	Date     float64
	Resource string
	Event    StateEvent
}

// TraceFeed supplies trace events in date order. The kernel applies every
// event at its exact date.
type TraceFeed interface {
	// NextDate returns the date of the next event, or false when exhausted.
	NextDate() (float64, bool)
	// PopDue removes and returns the events dated at or before now.
	PopDue(now float64) []TraceEvent
}

type resourceRef struct {
	model ResourceModel
	res   Resource
}

// Report summarizes a finished run.
type Report struct {
	RunID          string
	EndTime        float64
	Rounds         int
	Deadlocked     bool
	HorizonReached bool
	Trace          *trace.SimulationTrace
}

// Kernel owns one simulation. It is not safe for concurrent use; independent
// kernels may run in parallel.
type Kernel struct {
	ID  string
	cfg Config
	now float64

	models    []ResourceModel
	resources map[string]resourceRef
	cpu       ComputeModel
	network   NetworkModel
	storage   StorageModel

	timers *EventClock[*Timer]
	feed   TraceFeed

	contexts []*Context
	ready    []*Context
	yield    chan struct{}
	nextPID  ProcessID

	live       map[ActionID]*Action
	nextAction ActionID
	mailboxes  map[string]*mailbox
	nextSync   SyncID
	nextFile   int

	rounds int
	fatal  error
	trace  *trace.SimulationTrace
	log    *logrus.Entry
}

// NewKernel creates a kernel at date 0 with no model registered.
func NewKernel(cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kernel config: %w", err)
	}
	id := uuid.NewString()
	return &Kernel{
		ID:        id,
		cfg:       cfg,
		resources: make(map[string]resourceRef),
		timers:    NewEventClock[*Timer](),
		yield:     make(chan struct{}),
		live:      make(map[ActionID]*Action),
		mailboxes: make(map[string]*mailbox),
		trace:     trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.TraceLevel}),
		log:       logrus.WithField("run", id[:8]),
	}, nil
}

// Now returns the current simulated date.
func (k *Kernel) Now() float64 { return k.now }

// Config returns the kernel configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Models returns the registered models, in registration order.
func (k *Kernel) Models() []ResourceModel { return k.models }

// Contexts returns the live contexts, in spawn order.
func (k *Kernel) Contexts() []*Context { return k.contexts }

// Trace returns the run trace.
func (k *Kernel) Trace() *trace.SimulationTrace { return k.trace }

// RegisterModel appends m to the model list. The first compute, network and
// storage models registered receive the corresponding requests.
func (k *Kernel) RegisterModel(m ResourceModel) error {
	for _, r := range m.Resources() {
		if prev, dup := k.resources[r.Name()]; dup {
			return fmt.Errorf("resource %q of model %s already declared by model %s",
				r.Name(), m.Name(), prev.model.Name())
		}
		k.resources[r.Name()] = resourceRef{model: m, res: r}
	}
	k.models = append(k.models, m)
	if cm, ok := m.(ComputeModel); ok && k.cpu == nil {
		k.cpu = cm
	}
	if nm, ok := m.(NetworkModel); ok && k.network == nil {
		k.network = nm
	}
	if sm, ok := m.(StorageModel); ok && k.storage == nil {
		k.storage = sm
	}
	return nil
}

// SetTraceFeed installs the source of exogenous resource state changes.
func (k *Kernel) SetTraceFeed(f TraceFeed) { k.feed = f }

// Resource returns the named resource of any registered model.
func (k *Kernel) Resource(name string) (Resource, bool) {
	r, ok := k.resources[name]
	return r.res, ok
}

// UpdateResourceState applies ev to the named resource right away.
func (k *Kernel) UpdateResourceState(name string, ev StateEvent) error {
	r, ok := k.resources[name]
	if !ok {
		return fmt.Errorf("unknown resource %q", name)
	}
	k.log.Infof("[t=%f] resource %s: %s %g", k.now, name, ev.Kind, ev.Value)
	r.model.UpdateResourceState(r.res, ev, k.now)
	return nil
}

func (k *Kernel) setTimer(at float64, fn func()) *Timer {
	t := &Timer{at: at, fn: fn}
	k.timers.Push(at, t)
	return t
}

func (k *Kernel) cancelTimer(req *Request) {
	if req.timer != nil {
		req.timer.Cancel()
		req.timer = nil
	}
}

// nextTimerDate drops canceled timers from the head of the clock and
// returns the date of the first live one.
func (k *Kernel) nextTimerDate() (float64, bool) {
	for k.timers.Len() > 0 {
		t, _ := k.timers.PeekMin()
		if !t.canceled {
			return t.at, true
		}
		k.timers.PopMin()
	}
	return 0, false
}

func (k *Kernel) fireTimers() {
	for {
		at, ok := k.nextTimerDate()
		if !ok || at > k.now {
			return
		}
		t := k.timers.PopMin()
		t.canceled = true
		t.fn()
	}
}

// abort records the first fatal error; the run stops at the next check.
func (k *Kernel) abort(err error) {
	if k.fatal == nil {
		k.fatal = err
		k.log.Errorf("[t=%f] aborting: %v", k.now, err)
	}
}

// usage builds the usage error of a request.
func (k *Kernel) usage(req *Request, format string, args ...any) error {
	e := &UsageError{Op: req.Kind().String(), Msg: fmt.Sprintf(format, args...)}
	if c := req.issuer; c != nil {
		e.Process, e.PID = c.name, c.pid
	}
	return e
}

// track registers a model-accepted action in the live registry and makes
// req wait on it.
func (k *Kernel) track(req *Request, a *Action) {
	if a.id == 0 {
		k.nextAction++
		a.id = k.nextAction
		k.live[a.id] = a
	}
	req.action = a
	a.addWaiter(req)
	if req.issuer != nil && req.issuer.suspended && a.kind != KindComm {
		a.Suspend()
	}
}

// StartBackground starts flops of load on host that no process waits for.
// If it fails, the failure is reported as uncollected.
func (k *Kernel) StartBackground(host string, flops float64, opts ExecOptions) (*Action, error) {
	if k.cpu == nil {
		return nil, fmt.Errorf("background load: no compute model registered")
	}
	a, err := k.cpu.Execute(k.now, host, flops, opts)
	if err != nil {
		return nil, fmt.Errorf("background load: %w", err)
	}
	k.nextAction++
	a.id = k.nextAction
	k.live[a.id] = a
	return a, nil
}

// answer delivers the single answer of req and makes its issuer ready.
func (k *Kernel) answer(req *Request, outcome Outcome, value any) {
	if req.answered {
		panic(fmt.Sprintf("Kernel: %s answered twice", req))
	}
	req.answered = true
	req.result = Result{Outcome: outcome, Value: value}
	k.cancelTimer(req)
	if c := req.issuer; c != nil && c.pending == req {
		c.pending = nil
		k.makeReady(c)
	}
}

// detach withdraws the pending request of a dying context from whatever it
// waits on. An action left without waiters is canceled; a communication is
// always canceled, so the peer learns about it.
func (k *Kernel) detach(req *Request) {
	k.cancelTimer(req)
	if a := req.action; a != nil {
		a.removeWaiter(req)
		req.action = nil
		if a.kind == KindComm || len(a.waiters) == 0 {
			a.Cancel(k.now)
		}
	}
	if req.comm == nil {
		switch req.Kind() {
		case ReqSend, ReqRecv:
			k.withdrawMailbox(req)
		default:
			k.withdrawSync(req)
		}
	}
	req.answered = true
	req.result = Result{Outcome: OutcomeCanceled}
	req.issuer.pending = nil
}

// handleEndedActions answers every request waiting on an action that
// reached a terminal state, model by model in registration order.
func (k *Kernel) handleEndedActions() {
	for _, m := range k.models {
		for _, a := range m.ExtractTerminated() {
			k.endAction(a)
		}
	}
}

func (k *Kernel) endAction(a *Action) {
	outcome := a.state.Outcome()
	k.trace.RecordAction(trace.ActionRecord{
		ID:       uint64(a.id),
		Kind:     string(a.kind),
		Resource: a.resource,
		Cost:     a.cost,
		Start:    a.startTime,
		Finish:   a.finishTime,
		State:    a.state.String(),
	})
	if len(a.waiters) == 0 && a.state == ActionFailed {
		k.log.Warnf("[t=%f] %s failed and nobody collected it", k.now, a)
		k.trace.RecordFailure(trace.FailureRecord{
			ActionID: uint64(a.id),
			Kind:     string(a.kind),
			Resource: a.resource,
			Time:     a.finishTime,
		})
	}
	waiters := a.waiters
	a.waiters = nil
	for _, req := range waiters {
		a.Unref()
		req.action = nil
		k.answer(req, outcome, k.resultValue(req, outcome))
	}
	if a.refs == 0 {
		delete(k.live, a.id)
	}
}

// resultValue computes the kind-specific value of an action-backed answer.
func (k *Kernel) resultValue(req *Request, outcome Outcome) any {
	if outcome != OutcomeSuccess {
		return nil
	}
	switch args := req.Args.(type) {
	case RecvArgs:
		return req.comm.payload
	case IOArgs:
		if args.Write {
			args.File.size += args.Size
		}
		return args.Size
	}
	return nil
}

// LiveActions returns the number of actions the kernel still tracks.
func (k *Kernel) LiveActions() int { return len(k.live) }

// runRounds runs scheduling rounds at the current date until no context is
// ready: ready contexts run in queue order, then their requests are
// dispatched in the same order, then ended actions are answered.
func (k *Kernel) runRounds() {
	for len(k.ready) > 0 && k.fatal == nil {
		batch := k.ready
		k.ready = nil
		issued := make([]*Request, 0, len(batch))
		for _, c := range batch {
			// Suspended after being queued: Resume queues it again.
			if !c.inReady || c.state == ContextDead {
				continue
			}
			c.inReady = false
			k.runContext(c)
			if c.exited {
				k.cleanup(c)
			} else if c.pending != nil {
				issued = append(issued, c.pending)
			}
		}
		for _, req := range issued {
			if k.fatal != nil {
				break
			}
			if req.answered || req.issuer.dying {
				continue
			}
			if err := k.dispatch(req); err != nil {
				k.abort(err)
			}
		}
		k.handleEndedActions()
		k.killDaemonsIfAlone()
	}
}

// killDaemonsIfAlone kills the daemons once no regular context is left.
func (k *Kernel) killDaemonsIfAlone() {
	if len(k.contexts) == 0 {
		return
	}
	for _, c := range k.contexts {
		if !c.daemon {
			return
		}
	}
	for _, c := range append([]*Context(nil), k.contexts...) {
		k.Kill(c)
	}
}

// killAll kills every live context and lets each one unwind.
func (k *Kernel) killAll() {
	for _, c := range append([]*Context(nil), k.contexts...) {
		k.Kill(c)
	}
	fatal := k.fatal
	k.fatal = nil
	k.runRounds()
	if fatal != nil {
		k.fatal = fatal
	}
}

// nextEventDate returns the date of the next thing that can happen: a model
// event, a timer or a trace event.
func (k *Kernel) nextEventDate() (date, delay float64, found bool) {
	date = math.Inf(1)
	for _, m := range k.models {
		if dt, ok := m.NextOccurringEvent(k.now); ok && k.now+dt < date {
			date, delay, found = k.now+dt, dt, true
		}
	}
	if at, ok := k.nextTimerDate(); ok && at < date {
		date, delay, found = at, at-k.now, true
	}
	if k.feed != nil {
		if at, ok := k.feed.NextDate(); ok && at < date {
			date, delay, found = at, at-k.now, true
		}
	}
	if !found {
		return date, delay, false
	}
	if delay < 0 {
		date, delay = k.now, 0
	}
	// A delay below the clock resolution at now still has to move time.
	if delay > 0 && date <= k.now {
		date = math.Nextafter(k.now, math.Inf(1))
	}
	return date, delay, true
}

// advanceTo moves every model, then the clock, to date.
func (k *Kernel) advanceTo(date float64) {
	k.advance(date, date-k.now)
}

// advance moves the clock to date and every model forward by dt, then
// applies the trace events due, fires the due timers, and answers the ended
// actions. dt is the delay the models reported, not date-now, so rounding of
// large dates cannot leave an action with a remainder it never finishes.
func (k *Kernel) advance(date, dt float64) {
	if date < k.now {
		panic(fmt.Sprintf("Clock went backwards: %f < %f", date, k.now))
	}
	for _, m := range k.models {
		m.Advance(date, dt)
	}
	k.now = date
	if k.feed != nil {
		for _, ev := range k.feed.PopDue(k.now) {
			if err := k.UpdateResourceState(ev.Resource, ev.Event); err != nil {
				k.abort(fmt.Errorf("trace event at %f: %w", ev.Date, err))
				return
			}
		}
	}
	k.fireTimers()
	k.handleEndedActions()
}

// Run drives the simulation until nothing can happen anymore, the horizon is
// reached, ctx is canceled, or a usage error aborts it. On return every
// context has been unwound.
func (k *Kernel) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: k.ID, Trace: k.trace}
	k.log.Infof("[t=%f] simulation starts with %d processes and %d models", k.now, len(k.contexts), len(k.models))
	for {
		if err := ctx.Err(); err != nil {
			k.abort(err)
		}
		k.runRounds()
		if k.fatal != nil || len(k.contexts) == 0 {
			break
		}
		k.rounds++

		next, delay, ok := k.nextEventDate()
		if !ok {
			report.Deadlocked = true
			k.log.Warnf("[t=%f] deadlock: %d processes blocked and nothing left to happen:\n%s",
				k.now, len(k.contexts), k.statusDump())
			break
		}
		if k.cfg.Horizon != NoHorizon && next > k.cfg.Horizon {
			k.advanceTo(math.Max(k.now, k.cfg.Horizon))
			report.HorizonReached = true
			k.log.Infof("[t=%f] horizon reached with %d processes alive", k.now, len(k.contexts))
			break
		}
		k.advance(next, delay)
	}
	k.killAll()
	report.EndTime = k.now
	report.Rounds = k.rounds
	if k.fatal != nil {
		return report, k.fatal
	}
	k.log.Infof("[t=%f] simulation ends after %d rounds", k.now, k.rounds)
	return report, nil
}

func (k *Kernel) recordContext(c *Context) {
	k.trace.RecordProcess(trace.ProcessRecord{
		PID:    int(c.pid),
		Name:   c.name,
		Host:   c.host,
		Start:  c.startTime,
		End:    k.now,
		Killed: c.killed,
		Daemon: c.daemon,
	})
}
