package actor

import (
	"sync/atomic"
	"time"
)

// Context is passed to every Behavior callback. It exposes the subset
// of the running Server's capabilities callbacks are allowed to use:
// identity, outgoing call/cast, monitors and links. It is not safe to
// retain a Context past the callback invocation that received it.
type Context struct {
	server *Server
}

// Self returns the ref of the server executing the callback.
func (c *Context) Self() ServerRef { return c.server.Self() }

// Runtime returns the Runtime this server belongs to, for callbacks
// that need to Start child servers or inspect the registry.
func (c *Context) Runtime() *Runtime { return c.server.rt }

// Call issues a synchronous request to another server (§4.2).
func (c *Context) Call(ref ServerRef, msg interface{}, timeout time.Duration) (interface{}, error) {
	return Call(c.server.rt, ref, msg, timeout)
}

// Cast issues a fire-and-forget request to another server (§4.2).
func (c *Context) Cast(ref ServerRef, msg interface{}) error {
	return Cast(c.server.rt, ref, msg)
}

// StopSelf requests this server's own graceful shutdown once the
// current callback returns.
func (c *Context) StopSelf(reason string) {
	Stop(c.server.rt, c.Self(), reason)
}

// Monitor installs a unidirectional death watch on target (§4.4).
func (c *Context) Monitor(target ServerRef) (MonitorID, error) {
	return c.server.rt.monitors.monitor(c.server.rt, c.Self(), target)
}

// Demonitor cancels a pending monitor notification. A remote target's
// monitor is cancelled by sending a monitor_cancel frame (§4.11).
func (c *Context) Demonitor(id MonitorID) {
	c.server.rt.monitors.demonitor(c.server.rt, id)
}

// Link creates a symmetric link with another local server (§4.4).
func (c *Context) Link(with ServerRef) error {
	return c.server.rt.linkTwo(c.Self(), with)
}

// Unlink removes a previously created link.
func (c *Context) Unlink(with ServerRef) {
	c.server.rt.unlinkTwo(c.Self(), with)
}

// SetTrapExit toggles whether this server receives LinkExit as a normal
// message (true) or terminates abnormally on a linked peer's exit
// (false, the default).
func (c *Context) SetTrapExit(trap bool) {
	var v int32
	if trap {
		v = 1
	}
	atomic.StoreInt32(&c.server.trapExit, v)
}

// TrapExit reports the current trap-exit setting.
func (c *Context) TrapExit() bool {
	return atomic.LoadInt32(&c.server.trapExit) != 0
}

// SendTimeout schedules a system Timeout(tag) envelope to be delivered
// to this same server after d, without blocking the mailbox (§4.1,
// §5's "any timer" suspension point). The returned cancel function
// prevents delivery if called before the timer fires; it is a no-op
// afterwards.
func (c *Context) SendTimeout(tag string, d time.Duration) (cancel func()) {
	s := c.server
	stop := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		select {
		case <-stop:
			return
		default:
		}
		env := envelope{kind: envTimeout, tag: tag}
		select {
		case s.mailbox <- env:
		case <-stop:
		}
	})
	return func() {
		close(stop)
		timer.Stop()
	}
}
