// Package respool correlates outbound gateway queries with their
// asynchronous responses by an opaque echo token, with per-waiter
// deadlines and a background sweeper for expired entries.
package respool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned by Await when a waiter's deadline passes before a
// matching Deliver arrives.
var ErrTimeout = errors.New("respool: timeout waiting for response")

// DefaultTimeout is used by callers that do not specify one, per the
// adapter's single chosen default for the caller sites that previously
// left it implicit.
const DefaultTimeout = 10 * time.Second

type waiter struct {
	ch       chan map[string]any
	deadline time.Time
	done     atomicBool
}

// atomicBool is a mutex-guarded bool whose trySet gives set-once
// (CompareAndSwap-like) semantics without importing sync/atomic.
type atomicBool struct {
	mu  sync.Mutex
	set bool
}

func (b *atomicBool) trySet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.set {
		return false
	}
	b.set = true
	return true
}

// Pool is the registry of outstanding requests, keyed by echo token. A
// single Pool may serve successive gateway connections.
type Pool struct {
	log *slog.Logger

	mu      sync.Mutex
	waiters map[string]*waiter

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs a Pool and starts its background sweeper.
func New(log *slog.Logger) *Pool {
	p := &Pool{
		log:       log,
		waiters:   make(map[string]*waiter),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// NewEcho generates a fresh UUIDv4 echo token.
func NewEcho() string { return uuid.NewString() }

// Await registers echo and blocks until Deliver posts a matching response,
// ctx is cancelled, or timeout elapses, whichever comes first.
func (p *Pool) Await(ctx context.Context, echo string, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	w := &waiter{ch: make(chan map[string]any, 1), deadline: time.Now().Add(timeout)}

	p.mu.Lock()
	p.waiters[echo] = w
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, echo)
		p.mu.Unlock()
	}()

	select {
	case resp := <-w.ch:
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver posts resp to the waiter registered under resp's "echo" field.
// Unknown tokens are dropped with a warning. Only the first Deliver for a
// given echo wins a concurrent race; later ones are dropped.
func (p *Pool) Deliver(resp map[string]any) {
	echo, _ := resp["echo"].(string)
	if echo == "" {
		return
	}
	p.mu.Lock()
	w, ok := p.waiters[echo]
	p.mu.Unlock()
	if !ok {
		p.log.Warn("respool: dropping response for unknown echo token", "echo", echo)
		return
	}
	if !w.done.trySet() {
		return
	}
	select {
	case w.ch <- resp:
	default:
	}
}

const sweepInterval = 1 * time.Second

func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweepExpired()
		case <-p.sweepStop:
			return
		}
	}
}

func (p *Pool) sweepExpired() {
	now := time.Now()
	p.mu.Lock()
	var expired []string
	for echo, w := range p.waiters {
		if now.After(w.deadline) {
			expired = append(expired, echo)
		}
	}
	for _, echo := range expired {
		delete(p.waiters, echo)
	}
	p.mu.Unlock()
	// Await's own time.After already wakes each waiter with ErrTimeout,
	// and Await removes its entry on every return path (including ctx
	// cancellation); the sweep here is only a backstop that reclaims any
	// entry still present past its deadline.
}

// Close stops the background sweeper.
func (p *Pool) Close() {
	close(p.sweepStop)
	<-p.sweepDone
}
