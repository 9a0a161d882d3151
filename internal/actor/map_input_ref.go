package actor

import (
	"context"
	"fmt"
)

// MapInputRef is a message-transforming wrapper around a TellOnlyRef. It
// implements TellOnlyRef[In] and forwards transformed messages to a
// TellOnlyRef[Out]. Useful for bridging a generic event source (e.g. a
// cluster NodeDown notification) to a specific actor's own message type.
type MapInputRef[In Message, Out Message] struct {
	targetRef TellOnlyRef[Out]
	mapFn     func(In) Out
}

// NewMapInputRef creates a new message-transforming wrapper.
func NewMapInputRef[In Message, Out Message](
	targetRef TellOnlyRef[Out], mapFn func(In) Out) *MapInputRef[In, Out] {

	return &MapInputRef[In, Out]{targetRef: targetRef, mapFn: mapFn}
}

func (m *MapInputRef[In, Out]) Tell(ctx context.Context, msg In) {
	m.targetRef.Tell(ctx, m.mapFn(msg))
}

func (m *MapInputRef[In, Out]) ID() string {
	return fmt.Sprintf("map-input->%s", m.targetRef.ID())
}

// Compile-time check that MapInputRef implements TellOnlyRef.
var _ TellOnlyRef[Message] = (*MapInputRef[Message, Message])(nil)
