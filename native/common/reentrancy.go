package common

import (
	"errors"
	"sync/atomic"
)

var ErrReentrancyDetected = errors.New("reentrant call")

// ReentrancyGuard is a single lock flag scoped to one module instance. Enter
// never blocks: a nested or concurrent caller fails immediately.
type ReentrancyGuard struct {
	locked atomic.Bool
}

// Enter acquires the guard. The returned release func must run on every exit
// path, typically through defer.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.locked.CompareAndSwap(false, true) {
		return nil, ErrReentrancyDetected
	}
	return g.release, nil
}

func (g *ReentrancyGuard) release() {
	g.locked.Store(false)
}

// Locked reports whether an operation currently holds the guard.
func (g *ReentrancyGuard) Locked() bool {
	return g.locked.Load()
}
