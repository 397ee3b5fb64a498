package actor

import "errors"

// ErrUnhandledCall is the default HandleCall result for behaviors that
// embed BaseBehavior without overriding it; it is reported to the
// caller as a CalleeError.
var ErrUnhandledCall = errors.New("actor: unhandled call")

// Behavior is the set of callbacks a Server runs. A Behavior value
// itself holds no mutable state; state is threaded explicitly through
// Init/HandleCall/HandleCast/Terminate, the way an OTP gen_server
// module is stateless code operating on an externally-held state term.
type Behavior interface {
	// Init runs once, before the server is registered or reachable.
	// A non-nil error fails start() with InitializationError.
	Init(ctx *Context, args []interface{}) (state interface{}, err error)

	// HandleCall answers a synchronous call. Panics are recovered by
	// the server loop and reported to the caller as a CalleeError.
	HandleCall(ctx *Context, msg interface{}, state interface{}) (reply interface{}, newState interface{}, err error)

	// HandleCast handles a fire-and-forget message.
	HandleCast(ctx *Context, msg interface{}, state interface{}) (newState interface{}, err error)

	// Terminate runs once while the server transitions to Terminated.
	// Any panic here is swallowed (the exit reason already decided).
	Terminate(ctx *Context, reason error, state interface{})
}

// BaseBehavior supplies no-op defaults so concrete behaviors only
// implement the callbacks they actually need.
type BaseBehavior struct{}

func (BaseBehavior) Init(ctx *Context, args []interface{}) (interface{}, error) {
	return nil, nil
}

func (BaseBehavior) HandleCall(ctx *Context, msg interface{}, state interface{}) (interface{}, interface{}, error) {
	return nil, state, ErrUnhandledCall
}

func (BaseBehavior) HandleCast(ctx *Context, msg interface{}, state interface{}) (interface{}, error) {
	return state, nil
}

func (BaseBehavior) Terminate(ctx *Context, reason error, state interface{}) {}
