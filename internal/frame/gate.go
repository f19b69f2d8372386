package frame

import (
	"context"
	"sync"
	"time"
)

// Gate reasons.
const (
	ReasonReady   = "ready"
	ReasonTimeout = "timeout"
)

// GateState is what the loading screen polls.
type GateState struct {
	Loaded bool   `json:"loaded"`
	Reason string `json:"reason,omitempty"`
}

// LoadingGate opens when Ready is called or the timeout elapses, whichever
// happens first. Opening by Ready clears the timer.
type LoadingGate struct {
	done chan struct{}

	mu     sync.Mutex
	reason string
	stop   func() bool
}

func NewLoadingGate(timeout time.Duration, scheduler Scheduler) *LoadingGate {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	g := &LoadingGate{done: make(chan struct{})}

	stop := scheduler.AfterFunc(timeout, func() { g.open(ReasonTimeout) })

	g.mu.Lock()
	if g.reason == "" {
		g.stop = stop
	}
	g.mu.Unlock()
	return g
}

// Ready opens the gate. It reports false if the gate was already open.
func (g *LoadingGate) Ready() bool {
	return g.open(ReasonReady)
}

func (g *LoadingGate) open(reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reason != "" {
		return false
	}
	g.reason = reason
	if reason == ReasonReady && g.stop != nil {
		g.stop()
	}
	g.stop = nil
	close(g.done)
	return true
}

func (g *LoadingGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateState{Loaded: g.reason != "", Reason: g.reason}
}

func (g *LoadingGate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate opens or ctx ends.
func (g *LoadingGate) Wait(ctx context.Context) (GateState, error) {
	select {
	case <-g.done:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}
