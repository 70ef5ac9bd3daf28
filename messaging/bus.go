package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cart-autofill/internal/types"

	"github.com/google/uuid"
)

// Handler answers an envelope delivered to an address
type Handler func(ctx context.Context, env Envelope) Envelope

// Bus routes envelopes between contexts. Each address has at most one listener.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]*listener
	timeout   time.Duration
	logger    types.Logger
}

type listener struct {
	handler Handler
}

// NewBus creates a bus whose requests give up after timeout
func NewBus(timeout time.Duration, logger types.Logger) *Bus {
	return &Bus{
		listeners: make(map[string]*listener),
		timeout:   timeout,
		logger:    logger,
	}
}

// Listen attaches handler to addr, replacing any previous listener.
// The returned func detaches it again, unless it was replaced meanwhile.
func (b *Bus) Listen(addr string, handler Handler) func() {
	l := &listener{handler: handler}

	b.mu.Lock()
	b.listeners[addr] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.listeners[addr] == l {
			delete(b.listeners, addr)
		}
	}
}

// Listening reports whether addr has a listener
func (b *Bus) Listening(addr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.listeners[addr]
	return ok
}

// Request delivers env to addr and waits for the reply.
// It fails with ErrNoListener when nothing listens and ErrRequestTimeout when
// the reply does not arrive in time. A panicking handler replies with an error envelope.
func (b *Bus) Request(ctx context.Context, addr string, env Envelope) (Envelope, error) {
	l := b.lookup(addr)
	if l == nil {
		return Envelope{}, fmt.Errorf("%w: %s", types.ErrNoListener, addr)
	}

	if env.ID == "" {
		env.ID = uuid.NewString()
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	replies := make(chan Envelope, 1)
	go func() {
		replies <- b.invoke(ctx, addr, l, env)
	}()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		b.logger.Warnf("Request %s to %s (%s) abandoned: %v", env.ID, addr, env.Action, ctx.Err())
		return Envelope{}, fmt.Errorf("%w: %s %s: %v", types.ErrRequestTimeout, addr, env.Action, ctx.Err())
	}
}

// Notify hands env to the listener on addr and drops its reply.
// Delivery happens in the caller's goroutine so notifications keep their order.
// A missing listener is not an error.
func (b *Bus) Notify(ctx context.Context, addr string, env Envelope) {
	l := b.lookup(addr)
	if l == nil {
		b.logger.Debugf("No listener for %s notification on %s", env.Action, addr)
		return
	}

	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	b.invoke(ctx, addr, l, env)
}

func (b *Bus) lookup(addr string) *listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listeners[addr]
}

func (b *Bus) invoke(ctx context.Context, addr string, l *listener, env Envelope) (reply Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Handler on %s panicked on %s: %v", addr, env.Action, r)
			reply = ErrorEnvelope(fmt.Sprintf("internal error: %v", r))
		}
		reply.ID = env.ID
	}()
	return l.handler(ctx, env)
}
