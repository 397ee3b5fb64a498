package actor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/internal/logging"
)

const (
	statusStarting uint32 = iota
	statusRunning
	statusTerminating
	statusTerminated
)

// StartOptions configures Start (§4.2).
type StartOptions struct {
	// Name registers the server under a unique local name. Empty means
	// unregistered.
	Name string
	// InitArgs is passed verbatim to Behavior.Init.
	InitArgs []interface{}
	// MailboxSize overrides DefaultMailboxSize.
	MailboxSize int
	// TrapExit, when true, delivers LinkExit as a normal mailbox
	// message instead of terminating the server (§4.4).
	TrapExit bool
}

// Server is the actor: identity, mailbox, behavior and state. Only the
// loop goroutine touches `state`; every other field is either immutable
// after construction or synchronized via atomics/channels.
type Server struct {
	id   ServerId
	name string
	rt   *Runtime

	mailbox chan envelope
	status  uint32

	behavior Behavior
	state    interface{}

	messageCount uint64
	startedAt    time.Time
	trapExit     int32 // atomic bool

	links *linkSet
}

// Self returns this server's ref; exposed to callbacks via Context.
func (s *Server) Self() ServerRef { return ServerRef{ID: s.id, Node: ""} }

// Info returns a safe-to-share snapshot of this server's stats (§6).
func (s *Server) Info() Info {
	return Info{
		Ref:          s.Self(),
		Name:         s.name,
		Status:       atomicLoadStatus(&s.status),
		MessageCount: atomic.LoadUint64(&s.messageCount),
		StartedAt:    s.startedAt,
		TrapExit:     atomic.LoadInt32(&s.trapExit) != 0,
	}
}

// Start runs behavior.Init and, on success, spawns the server's worker
// goroutine (§4.2). On Init failure, the server never becomes visible
// to the registry and the error is InitializationError.
func Start(rt *Runtime, behavior Behavior, opts StartOptions) (ServerRef, error) {
	mailboxSize := DefaultMailboxSize
	if opts.MailboxSize > 0 {
		mailboxSize = opts.MailboxSize
	}

	s := &Server{
		id:        newServerId(),
		name:      opts.Name,
		rt:        rt,
		mailbox:   make(chan envelope, mailboxSize),
		status:    statusStarting,
		behavior:  behavior,
		startedAt: time.Now(),
		links:     newLinkSet(),
	}
	if opts.TrapExit {
		atomic.StoreInt32(&s.trapExit, 1)
	}

	ctx := &Context{server: s}

	state, err := runInit(ctx, behavior, opts.InitArgs)
	if err != nil {
		return ServerRef{}, actorerr.Wrap(actorerr.ErrInitializationError, err)
	}
	s.state = state

	entry := &processEntry{id: s.id, ref: s.Self(), name: s.name, server: s, startedAt: s.startedAt}
	if err := rt.registry.add(entry); err != nil {
		return ServerRef{}, err
	}

	atomic.StoreUint32(&s.status, statusRunning)
	go s.loop()

	rt.bus.Publish(Event{Kind: EventStarted, Ref: s.Self(), Name: s.name})
	return s.Self(), nil
}

func runInit(ctx *Context, behavior Behavior, args []interface{}) (state interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Init: %v", r)
		}
	}()
	return behavior.Init(ctx, args)
}

// Call sends a synchronous request and blocks until reply, Timeout,
// NoProcess, or NoConnection (§4.2). timeout<=0 uses DefaultCallTimeout.
func Call(rt *Runtime, ref ServerRef, msg interface{}, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if !ref.IsLocal() {
		if rt.remote == nil {
			return nil, actorerr.ErrNoConnection
		}
		return rt.remote.RemoteCall(ref, msg, timeout)
	}

	entry := rt.registry.byID(ref.ID)
	if entry == nil {
		return nil, actorerr.ErrNoProcess
	}
	target := entry.server
	if atomicLoadStatus(&target.status) == StatusTerminated {
		return nil, actorerr.ErrNoProcess
	}

	reply := make(chan callResult, 1)
	var cancelled int32
	env := envelope{
		kind:          envCall,
		correlationID: uuid.NewString(),
		payload:       msg,
		replyCh:       reply,
		deadline:      time.Now().Add(timeout),
		cancelled:     &cancelled,
	}

	select {
	case target.mailbox <- env:
	default:
		// Mailbox buffer is momentarily full; fall back to a blocking
		// send bounded by the same deadline instead of failing
		// spuriously on a healthy, merely busy, server.
		select {
		case target.mailbox <- env:
		case <-time.After(timeout):
			return nil, actorerr.ErrTimeout
		}
	}

	select {
	case res := <-reply:
		return res.reply, res.err
	case <-time.After(timeout):
		atomic.StoreInt32(&cancelled, 1)
		return nil, actorerr.ErrTimeout
	}
}

// Cast sends a fire-and-forget message (§4.2). It never fails on a live
// ref and silently drops on a dead one.
func Cast(rt *Runtime, ref ServerRef, msg interface{}) error {
	if !ref.IsLocal() {
		if rt.remote == nil {
			return nil
		}
		return rt.remote.RemoteCast(ref, msg)
	}
	entry := rt.registry.byID(ref.ID)
	if entry == nil {
		return nil
	}
	if atomicLoadStatus(&entry.server.status) == StatusTerminated {
		return nil
	}
	env := envelope{kind: envCast, payload: msg}
	select {
	case entry.server.mailbox <- env:
	default:
		// Buffer is momentarily full; block up to the deadline rather than
		// handing the send to a goroutine, which could race ahead of or
		// behind a later call and break per-sender cast ordering.
		select {
		case entry.server.mailbox <- env:
		case <-time.After(DefaultBackpressureTimeout):
		}
	}
	return nil
}

// Stop requests a graceful shutdown (§4.2): it enqueues a system Stop
// envelope and returns immediately.
func Stop(rt *Runtime, ref ServerRef, reason string) {
	if !ref.IsLocal() {
		return
	}
	entry := rt.registry.byID(ref.ID)
	if entry == nil {
		return
	}
	if atomicLoadStatus(&entry.server.status) == StatusTerminated {
		return
	}
	select {
	case entry.server.mailbox <- envelope{kind: envStop, reason: reason}:
	default:
		go func() { entry.server.mailbox <- envelope{kind: envStop, reason: reason} }()
	}
}

// LinkExit is delivered to a trap-exit server's HandleCast in place of
// the default terminate-on-exit behavior (§4.4).
type LinkExit struct {
	From   ServerRef
	Reason string
}

// Timeout is delivered to HandleCast when a server-scheduled timer
// fires (the system Timeout envelope of §3).
type Timeout struct {
	Tag string
}

func (s *Server) loop() {
	log := logging.Component("actor.server")
	for {
		env := <-s.mailbox
		atomic.AddUint64(&s.messageCount, 1)

		switch env.kind {
		case envCall:
			if env.cancelled != nil && atomic.LoadInt32(env.cancelled) != 0 {
				continue // caller already gave up; any reply would be discarded
			}
			s.dispatchCall(env)

		case envCast:
			if stop, reason := s.dispatchCast(env.payload); stop {
				s.terminate(reason)
				return
			}

		case envStop:
			s.terminate(env.reason)
			return

		case envLinkExit:
			if atomic.LoadInt32(&s.trapExit) != 0 {
				if stop, reason := s.dispatchCast(LinkExit{From: env.from, Reason: env.reason}); stop {
					s.terminate(reason)
					return
				}
				continue
			}
			s.terminate(env.reason)
			return

		case envTimeout:
			if stop, reason := s.dispatchCast(Timeout{Tag: env.tag}); stop {
				s.terminate(reason)
				return
			}

		default:
			log.Warn().Int("kind", int(env.kind)).Msg("unknown envelope kind")
		}
	}
}

func (s *Server) dispatchCall(env envelope) {
	ctx := &Context{server: s}
	reply, newState, err := s.invokeHandleCall(ctx, env.payload)
	s.state = newState

	if env.cancelled != nil && atomic.LoadInt32(env.cancelled) != 0 {
		return // reply produced too late; discard per §4.1 cancellation semantics
	}

	if err != nil {
		select {
		case env.replyCh <- callResult{err: actorerr.CalleeError(err)}:
		default:
		}
		return
	}
	select {
	case env.replyCh <- callResult{reply: reply}:
	default:
	}
}

func (s *Server) invokeHandleCall(ctx *Context, msg interface{}) (reply interface{}, newState interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in HandleCall: %v", r)
			newState = s.state
		}
	}()
	return s.behavior.HandleCall(ctx, msg, s.state)
}

// dispatchCast runs HandleCast and reports whether the server must now
// terminate abnormally (a non-nil error), along with the exit reason.
func (s *Server) dispatchCast(msg interface{}) (stop bool, reason string) {
	ctx := &Context{server: s}
	newState, err := s.invokeHandleCast(ctx, msg)
	s.state = newState
	if err != nil {
		return true, fmt.Sprintf("error(%v)", err)
	}
	return false, ""
}

func (s *Server) invokeHandleCast(ctx *Context, msg interface{}) (newState interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in HandleCast: %v", r)
			newState = s.state
		}
	}()
	return s.behavior.HandleCast(ctx, msg, s.state)
}

func (s *Server) terminate(reason string) {
	atomic.StoreUint32(&s.status, statusTerminating)

	func() {
		defer func() { recover() }() // Terminate's own panics are swallowed (§4.2)
		ctx := &Context{server: s}
		s.behavior.Terminate(ctx, asError(reason), s.state)
	}()

	atomic.StoreUint32(&s.status, statusTerminated)

	s.rt.registry.remove(s.id)
	s.rt.monitors.notifyDown(s.rt, s.Self(), reason)
	if reason != ReasonNormal && reason != ReasonShutdown {
		s.links.propagate(s.rt, s.Self(), reason)
	}
	s.rt.bus.Publish(Event{Kind: EventTerminated, Ref: s.Self(), Name: s.name, Reason: reason})
}

func asError(reason string) error {
	if reason == "" {
		return nil
	}
	return fmt.Errorf("%s", reason)
}
