package sim

// comm is a matched send/recv pair and the network action moving the data.
type comm struct {
	send    *Request
	recv    *Request
	payload any
	action  *Action
}

// mailbox is a rendezvous point: sends and receives queue up in arrival
// order until a counterpart shows up.
type mailbox struct {
	name  string
	sends []*Request
	recvs []*Request
}

func (k *Kernel) mailboxNamed(name string) *mailbox {
	mb, ok := k.mailboxes[name]
	if !ok {
		mb = &mailbox{name: name}
		k.mailboxes[name] = mb
	}
	return mb
}

func (k *Kernel) mailboxSend(req *Request, args SendArgs) error {
	if args.Size < 0 {
		return k.usage(req, "negative message size %v", args.Size)
	}
	mb := k.mailboxNamed(args.Mailbox)
	if len(mb.recvs) == 0 {
		mb.sends = append(mb.sends, req)
		return nil
	}
	recv := mb.recvs[0]
	mb.recvs = mb.recvs[1:]
	return k.startComm(req, recv)
}

func (k *Kernel) mailboxRecv(req *Request, args RecvArgs) error {
	mb := k.mailboxNamed(args.Mailbox)
	if len(mb.sends) == 0 {
		mb.recvs = append(mb.recvs, req)
		return nil
	}
	send := mb.sends[0]
	mb.sends = mb.sends[1:]
	return k.startComm(send, req)
}

// startComm starts the transfer of a matched pair; both requests wait on the
// same action.
func (k *Kernel) startComm(send, recv *Request) error {
	if k.network == nil {
		return k.usage(send, "no network model registered")
	}
	args := send.Args.(SendArgs)
	a, err := k.network.Communicate(k.now, send.issuer.host, recv.issuer.host, args.Size, args.Rate)
	if err != nil {
		return k.usage(send, "%v", err)
	}
	c := &comm{send: send, recv: recv, payload: args.Payload, action: a}
	send.comm, recv.comm = c, c
	k.track(send, a)
	k.track(recv, a)
	return nil
}

// withdrawMailbox removes an unmatched send or recv from its mailbox queue.
func (k *Kernel) withdrawMailbox(req *Request) {
	var name string
	switch args := req.Args.(type) {
	case SendArgs:
		name = args.Mailbox
	case RecvArgs:
		name = args.Mailbox
	}
	mb, ok := k.mailboxes[name]
	if !ok {
		return
	}
	mb.sends, _ = removeRequest(mb.sends, req)
	mb.recvs, _ = removeRequest(mb.recvs, req)
}

// MailboxBacklog returns the numbers of unmatched sends and receives queued
// on the named mailbox.
func (k *Kernel) MailboxBacklog(name string) (sends, recvs int) {
	if mb, ok := k.mailboxes[name]; ok {
		return len(mb.sends), len(mb.recvs)
	}
	return 0, 0
}
