// Package supervisor implements the L2 supervision engine: child specs,
// the three OTP restart strategies, restart-intensity throttling, and
// ordered startup/shutdown (§4.5 of SPEC_FULL.md). A Supervisor is
// itself started as an actor.Server (package actor) whose mailbox
// carries child-exit notifications bridged in from the lifecycle bus;
// this generalizes the teacher's Supervisor.loop, which handled the
// same EXIT tuples arriving in a Process' own mailbox.
package supervisor

import (
	"time"

	"github.com/nodeforge/actorframe/actor"
)

// Strategy selects how sibling children react to one child's exit (§4.5).
type Strategy string

const (
	OneForOne  Strategy = "one_for_one"
	OneForAll  Strategy = "one_for_all"
	RestForOne Strategy = "rest_for_one"
)

// RestartPolicy governs whether a child is restarted after it exits (§4.5).
type RestartPolicy string

const (
	Permanent RestartPolicy = "permanent"
	Transient RestartPolicy = "transient"
	Temporary RestartPolicy = "temporary"
)

// StartFunc starts one child on rt and returns its ref. Supervisors call
// this both for the initial start and for every subsequent restart.
type StartFunc func(rt *actor.Runtime) (actor.ServerRef, error)

// ChildSpec describes one supervised child (§3).
type ChildSpec struct {
	ID              string
	Start           StartFunc
	Restart         RestartPolicy
	ShutdownTimeout time.Duration
}

// Intensity bounds how many restarts a supervisor tolerates in a
// rolling window before it gives up and exits with MaxRestartsExceeded
// (§4.5, §8 property 4).
type Intensity struct {
	MaxRestarts int
	Within      time.Duration
}

// Spec is the full definition handed to Start: the declaration-ordered
// child list, the strategy, and the intensity throttle.
type Spec struct {
	Strategy  Strategy
	Children  []ChildSpec
	Intensity Intensity
}

// ChildInfo is a point-in-time snapshot of one child's state (§3),
// returned by ListChildren and consumed by the Observer.
type ChildInfo struct {
	ID           string
	Ref          actor.ServerRef
	Restart      RestartPolicy
	RestartCount int
	Removed      bool // true once a Temporary child has exited
}
