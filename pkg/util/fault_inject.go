package util

import (
	"sync"
	"sync/atomic"
)

const (
	FaultScopeStorage int = iota
	faultScopeCount
)

var faultScopes [faultScopeCount]faultScope

type faultScope struct {
	_enable atomic.Bool
	_faults sync.Map
}

// FaultAction decides the outcome of a fault point. A non nil error fails
// the operation at the point.
type FaultAction func(args []string) error

type fault struct {
	_args   []string
	_action FaultAction
	_hits   atomic.Int64
}

func validScope(scope int) bool {
	return scope >= 0 && scope < faultScopeCount
}

// EnableFaults turns on the fault points of scope.
func EnableFaults(scope int) {
	if !validScope(scope) {
		return
	}
	faultScopes[scope]._enable.Store(true)
}

// DisableFaults turns off the fault points of scope and forgets the
// registered faults.
func DisableFaults(scope int) {
	if !validScope(scope) {
		return
	}
	faultScopes[scope]._enable.Store(false)
	faultScopes[scope]._faults.Clear()
}

// RegisterFault arms name in an enabled scope.
func RegisterFault(scope int, name string, args []string, action FaultAction) {
	if !validScope(scope) || !faultScopes[scope]._enable.Load() {
		return
	}
	faultScopes[scope]._faults.Store(name, &fault{_args: args, _action: action})
}

// InjectFault runs the action armed for name. It is nil when the scope is
// disabled or nothing is armed.
func InjectFault(scope int, name string) error {
	if !validScope(scope) || !faultScopes[scope]._enable.Load() {
		return nil
	}
	val, ok := faultScopes[scope]._faults.Load(name)
	if !ok {
		return nil
	}
	f := val.(*fault)
	f._hits.Add(1)
	return f._action(f._args)
}

// FaultHits is how often name was reached since it was armed.
func FaultHits(scope int, name string) int64 {
	if !validScope(scope) {
		return 0
	}
	val, ok := faultScopes[scope]._faults.Load(name)
	if !ok {
		return 0
	}
	return val.(*fault)._hits.Load()
}
