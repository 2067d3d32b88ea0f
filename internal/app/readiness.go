package app

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// ErrGateClosed is returned by Wait when the gate failed instead of being
// published. It wraps the failure cause.
var ErrGateClosed = errors.New("readiness gate closed")

// ReadinessGate is a one-shot broadcast of the proxy's bound address.
// Any number of goroutines may Wait; after Publish every Wait returns
// immediately with the same address.
type ReadinessGate struct {
	mu        sync.Mutex
	done      chan struct{}
	addr      netip.AddrPort
	err       error
	published bool
}

// NewReadinessGate creates an unresolved gate.
func NewReadinessGate() *ReadinessGate {
	return &ReadinessGate{done: make(chan struct{})}
}

// Publish resolves the gate with addr. It fails if the gate is already
// resolved.
func (g *ReadinessGate) Publish(addr netip.AddrPort) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved() {
		if g.published {
			return fmt.Errorf("readiness already published as %s", g.addr)
		}
		return g.err
	}
	g.addr = addr
	g.published = true
	close(g.done)
	return nil
}

// Fail resolves the gate with an error. It has no effect once the gate is
// resolved.
func (g *ReadinessGate) Fail(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved() {
		return
	}
	g.err = fmt.Errorf("%w: %w", ErrGateClosed, cause)
	close(g.done)
}

// Wait blocks until the gate is resolved or ctx is done.
func (g *ReadinessGate) Wait(ctx context.Context) (netip.AddrPort, error) {
	if !g.resolved() {
		select {
		case <-g.done:
		case <-ctx.Done():
			return netip.AddrPort{}, ctx.Err()
		}
	}
	// Fields are immutable once done is closed.
	if g.err != nil {
		return netip.AddrPort{}, g.err
	}
	return g.addr, nil
}

func (g *ReadinessGate) resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
