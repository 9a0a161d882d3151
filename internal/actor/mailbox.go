package actor

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// ChannelMailbox is a Mailbox implementation backed by a Go channel. It
// provides thread-safe send and receive operations with support for context
// cancellation.
type ChannelMailbox[M Message, R any] struct {
	ch chan envelope[M, R]

	// closed indicates whether the mailbox has been closed. Uses atomic
	// operations for lock-free reads.
	closed atomic.Bool

	// mu protects send operations to prevent sending to a closed
	// channel.
	mu sync.RWMutex

	closeOnce sync.Once

	// actorCtx is the context governing the actor's lifecycle. When
	// this context is cancelled, receive operations terminate.
	actorCtx context.Context
}

// NewChannelMailbox creates a new channel-based mailbox with the given
// capacity and actor context. If capacity is 0 or negative, it defaults to
// 1 to ensure the mailbox is buffered.
func NewChannelMailbox[M Message, R any](
	actorCtx context.Context, capacity int,
) *ChannelMailbox[M, R] {

	if capacity <= 0 {
		capacity = 1
	}

	return &ChannelMailbox[M, R]{
		ch:       make(chan envelope[M, R], capacity),
		actorCtx: actorCtx,
	}
}

// Send attempts to send an envelope to the mailbox. It blocks until either
// the envelope is accepted, the caller's context is cancelled, or the
// actor's context is cancelled. Returns true if the envelope was
// successfully sent.
func (m *ChannelMailbox[M, R]) Send(ctx context.Context,
	env envelope[M, R]) bool {

	if ctx.Err() != nil {
		return false
	}
	if m.actorCtx.Err() != nil {
		return false
	}

	// Hold the read lock for the entire send operation to prevent
	// send-on-closed-channel panics: Close cannot acquire the write lock
	// while any read lock is held, so the channel cannot close out from
	// under us mid-select.
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	select {
	case m.ch <- env:
		log.TraceS(ctx, "Mailbox send succeeded",
			"msg_type", env.message.MessageType(),
			"queue_len", len(m.ch))
		return true

	case <-ctx.Done():
		return false

	case <-m.actorCtx.Done():
		return false
	}
}

// TrySend attempts to send an envelope to the mailbox without blocking.
func (m *ChannelMailbox[M, R]) TrySend(env envelope[M, R]) bool {
	if m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	select {
	case m.ch <- env:
		return true
	default:
		return false
	}
}

// Receive returns an iterator over envelopes in the mailbox. Context
// cancellation is checked before each receive attempt so shutdown is
// deterministic rather than racing a ready channel against a cancelled
// context in the select.
func (m *ChannelMailbox[M, R]) Receive(
	ctx context.Context,
) iter.Seq[envelope[M, R]] {

	return func(yield func(envelope[M, R]) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			select {
			case env, ok := <-m.ch:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}
}

// Close closes the mailbox, preventing any further sends. Safe to call
// multiple times; only the first call has an effect.
func (m *ChannelMailbox[M, R]) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		log.DebugS(m.actorCtx, "Mailbox closing",
			"remaining_messages", len(m.ch))

		m.closed.Store(true)
		close(m.ch)
	})
}

// IsClosed returns true if the mailbox has been closed.
func (m *ChannelMailbox[M, R]) IsClosed() bool {
	return m.closed.Load()
}

// Drain returns an iterator over any remaining envelopes in the mailbox.
// Only valid after Close(); if the mailbox is not closed it returns
// immediately without draining.
func (m *ChannelMailbox[M, R]) Drain() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !m.IsClosed() {
			return
		}

		for {
			select {
			case env, ok := <-m.ch:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}

			default:
				return
			}
		}
	}
}
