// Defines the Request struct: the single value by which simulated code asks
// the kernel to do something. Issuing one suspends the issuing context until
// the kernel answers it, exactly once.

package sim

import "fmt"

// RequestTableVersion is bumped whenever a request kind or payload shape changes.
const RequestTableVersion = 1

// RequestKind tags the operation a request carries.
type RequestKind int

const (
	ReqNone RequestKind = iota
	ReqExecute
	ReqSleep
	ReqSend
	ReqRecv
	ReqMutexLock
	ReqMutexUnlock
	ReqMutexTryLock
	ReqCondWait
	ReqCondWaitTimeout
	ReqCondSignal
	ReqCondBroadcast
	ReqSemAcquire
	ReqSemAcquireTimeout
	ReqSemRelease
	ReqSemWouldBlock
	ReqProcessSpawn
	ReqProcessKill
	ReqProcessSuspend
	ReqProcessResume
	ReqIOOpen
	ReqIORead
	ReqIOWrite
	ReqIOClose
	ReqSyncDestroy
)

var requestKindNames = map[RequestKind]string{
	ReqNone:              "none",
	ReqExecute:           "execute",
	ReqSleep:             "sleep",
	ReqSend:              "send",
	ReqRecv:              "recv",
	ReqMutexLock:         "mutex-lock",
	ReqMutexUnlock:       "mutex-unlock",
	ReqMutexTryLock:      "mutex-trylock",
	ReqCondWait:          "cond-wait",
	ReqCondWaitTimeout:   "cond-wait-timeout",
	ReqCondSignal:        "cond-signal",
	ReqCondBroadcast:     "cond-broadcast",
	ReqSemAcquire:        "sem-acquire",
	ReqSemAcquireTimeout: "sem-acquire-timeout",
	ReqSemRelease:        "sem-release",
	ReqSemWouldBlock:     "sem-would-block",
	ReqProcessSpawn:      "process-spawn",
	ReqProcessKill:       "process-kill",
	ReqProcessSuspend:    "process-suspend",
	ReqProcessResume:     "process-resume",
	ReqIOOpen:            "io-open",
	ReqIORead:            "io-read",
	ReqIOWrite:           "io-write",
	ReqIOClose:           "io-close",
	ReqSyncDestroy:       "sync-destroy",
}

func (k RequestKind) String() string {
	if name, ok := requestKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// RequestArgs is the input payload of a request. Each kind has exactly one
// payload type.
type RequestArgs interface {
	Kind() RequestKind
}

type ExecuteArgs struct {
	Flops    float64
	Priority float64
	Bound    float64
}

type SleepArgs struct {
	Duration float64
}

type SendArgs struct {
	Mailbox string
	Payload any
	Size    float64 // bytes
	Rate    float64 // optional rate cap; 0 means none
}

type RecvArgs struct {
	Mailbox string
}

type MutexArgs struct {
	Mutex *Mutex
	kind  RequestKind
}

// CondWaitArgs waits on Cond with Mutex held. Timeout < 0 waits forever.
type CondWaitArgs struct {
	Cond    *Cond
	Mutex   *Mutex
	Timeout float64
}

type CondArgs struct {
	Cond      *Cond
	Broadcast bool
}

// SemArgs covers acquire, release and would-block. Timeout < 0 waits forever.
type SemArgs struct {
	Sem     *Semaphore
	Timeout float64
	kind    RequestKind
}

type SpawnArgs struct {
	Name   string
	Host   string
	Entry  Entry
	Args   []string
	Daemon bool
}

type ProcessArgs struct {
	Target *Context
	kind   RequestKind
}

type IOOpenArgs struct {
	Disk string
	Path string
}

type IOArgs struct {
	File  *File
	Size  float64
	Write bool
}

type IOCloseArgs struct {
	File *File
}

// DestroyArgs destroys a *Mutex, *Cond or *Semaphore.
type DestroyArgs struct {
	Object any
}

func (ExecuteArgs) Kind() RequestKind   { return ReqExecute }
func (SleepArgs) Kind() RequestKind     { return ReqSleep }
func (SendArgs) Kind() RequestKind      { return ReqSend }
func (RecvArgs) Kind() RequestKind      { return ReqRecv }
func (a MutexArgs) Kind() RequestKind   { return a.kind }
func (SpawnArgs) Kind() RequestKind     { return ReqProcessSpawn }
func (a ProcessArgs) Kind() RequestKind { return a.kind }
func (a SemArgs) Kind() RequestKind     { return a.kind }
func (IOOpenArgs) Kind() RequestKind    { return ReqIOOpen }
func (IOCloseArgs) Kind() RequestKind   { return ReqIOClose }
func (DestroyArgs) Kind() RequestKind   { return ReqSyncDestroy }

func (a CondWaitArgs) Kind() RequestKind {
	if a.Timeout >= 0 {
		return ReqCondWaitTimeout
	}
	return ReqCondWait
}

func (a CondArgs) Kind() RequestKind {
	if a.Broadcast {
		return ReqCondBroadcast
	}
	return ReqCondSignal
}

func (a IOArgs) Kind() RequestKind {
	if a.Write {
		return ReqIOWrite
	}
	return ReqIORead
}

// Result is the output slot of an answered request.
type Result struct {
	Outcome Outcome
	Value   any // kind-specific: received payload, bytes read, trylock success, spawned context...
}

// Request is one kernel operation in flight.
type Request struct {
	Args   RequestArgs
	issuer *Context

	result   Result
	answered bool

	action *Action // action the request waits on, if any
	timer  *Timer  // timeout registered for the request, if any

	// pendingOutcome is delivered once a condition waiter has re-acquired
	// its mutex (timeout or success).
	pendingOutcome Outcome
	// comm is the rendezvous the request takes part in, for send/recv.
	comm *comm
}

// NewRequest builds a request issued by c.
func NewRequest(c *Context, args RequestArgs) *Request {
	return &Request{Args: args, issuer: c}
}

// Kind returns the tag of the request.
func (r *Request) Kind() RequestKind {
	if r.Args == nil {
		return ReqNone
	}
	return r.Args.Kind()
}

// Issuer returns the context that issued the request.
func (r *Request) Issuer() *Context { return r.issuer }

// Result returns the answer. Only meaningful once answered.
func (r *Request) Result() Result { return r.result }

// Answered reports whether the kernel already answered the request.
func (r *Request) Answered() bool { return r.answered }

// String returns a human-readable representation of a Request.
func (r *Request) String() string {
	issuer := "<kernel>"
	if r.issuer != nil {
		issuer = r.issuer.String()
	}
	return fmt.Sprintf("Request: (Kind: %s, Issuer: %s, Answered: %v)", r.Kind(), issuer, r.answered)
}
