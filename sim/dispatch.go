package sim

import (
	"errors"
	"fmt"
)

// dispatch routes a request to the component handling its kind. The request
// is either answered right away or left waiting on an action, a primitive
// queue or a mailbox. A returned error is a usage error and aborts the run.
func (k *Kernel) dispatch(req *Request) error {
	c := req.issuer
	k.log.Debugf("[t=%f] %s issued %s", k.now, c, req.Kind())
	switch args := req.Args.(type) {
	case ExecuteArgs:
		if k.cpu == nil {
			return k.usage(req, "no compute model registered")
		}
		a, err := k.cpu.Execute(k.now, c.host, args.Flops, ExecOptions{Priority: args.Priority, Bound: args.Bound})
		if err != nil {
			return k.usage(req, "%v", err)
		}
		k.track(req, a)
	case SleepArgs:
		if k.cpu == nil {
			return k.usage(req, "no compute model registered")
		}
		a, err := k.cpu.Sleep(k.now, c.host, args.Duration)
		if err != nil {
			return k.usage(req, "%v", err)
		}
		k.track(req, a)
	case SendArgs:
		return k.mailboxSend(req, args)
	case RecvArgs:
		return k.mailboxRecv(req, args)

	case MutexArgs:
		if args.Mutex == nil {
			return k.usage(req, "nil mutex")
		}
		switch args.kind {
		case ReqMutexLock:
			return k.mutexLock(req, args.Mutex)
		case ReqMutexTryLock:
			return k.mutexTryLock(req, args.Mutex)
		case ReqMutexUnlock:
			return k.mutexUnlock(req, args.Mutex)
		}
	case CondWaitArgs:
		if args.Cond == nil {
			return k.usage(req, "nil cond")
		}
		return k.condWait(req, args)
	case CondArgs:
		if args.Cond == nil {
			return k.usage(req, "nil cond")
		}
		return k.condSignal(req, args)
	case SemArgs:
		if args.Sem == nil {
			return k.usage(req, "nil semaphore")
		}
		switch args.kind {
		case ReqSemAcquire, ReqSemAcquireTimeout:
			return k.semAcquire(req, args)
		case ReqSemRelease:
			return k.semRelease(req, args.Sem)
		case ReqSemWouldBlock:
			return k.semWouldBlock(req, args.Sem)
		}
	case DestroyArgs:
		return k.syncDestroy(req, args.Object)

	case SpawnArgs:
		host := args.Host
		if host == "" {
			host = c.host
		}
		child, err := k.Spawn(args.Name, host, args.Entry, args.Args)
		if errors.Is(err, ErrResourceFailure) {
			k.log.Warnf("[t=%f] %s cannot launch %q on failed host %s", k.now, c, args.Name, host)
			k.answer(req, OutcomeResourceError, nil)
			return nil
		}
		if err != nil {
			return k.usage(req, "%v", err)
		}
		if args.Daemon {
			k.Daemonize(child)
		}
		k.answer(req, OutcomeSuccess, child)
	case ProcessArgs:
		t := args.Target
		if t == nil || t.kernel != k {
			return k.usage(req, "unknown target process")
		}
		switch args.kind {
		case ReqProcessKill:
			k.Kill(t)
		case ReqProcessSuspend:
			k.Suspend(t)
		case ReqProcessResume:
			k.Resume(t)
		}
		// A self-suspension parks the caller until someone resumes it.
		if !req.answered {
			k.answer(req, OutcomeSuccess, nil)
		}

	case IOOpenArgs:
		return k.ioOpen(req, args)
	case IOArgs:
		return k.ioTransfer(req, args)
	case IOCloseArgs:
		return k.ioClose(req, args)

	default:
		panic(fmt.Sprintf("Kernel: unhandled request kind %s", req.Kind()))
	}
	return nil
}
