package actor

import "context"

// FunctionBehavior adapts two plain functions into a Behavior, useful for
// small system actors (e.g. the dead letter office) that do not warrant
// their own named type.
type FunctionBehavior[M Message, R any] struct {
	callFn func(ctx context.Context, msg M) (R, error)
	castFn func(ctx context.Context, msg M) error
}

// NewFunctionBehavior builds a Behavior whose HandleCall delegates to callFn
// and whose HandleCast is a no-op returning nil. This matches the dead
// letter office's needs: tells are simply accepted.
func NewFunctionBehavior[M Message, R any](
	callFn func(ctx context.Context, msg M) (R, error),
) *FunctionBehavior[M, R] {

	return &FunctionBehavior[M, R]{callFn: callFn}
}

// NewFunctionBehaviorFull builds a Behavior from both a call and a cast
// function.
func NewFunctionBehaviorFull[M Message, R any](
	callFn func(ctx context.Context, msg M) (R, error),
	castFn func(ctx context.Context, msg M) error,
) *FunctionBehavior[M, R] {

	return &FunctionBehavior[M, R]{callFn: callFn, castFn: castFn}
}

func (f *FunctionBehavior[M, R]) HandleCall(ctx context.Context, msg M) (R, error) {
	if f.callFn != nil {
		return f.callFn(ctx, msg)
	}

	var zero R
	return zero, nil
}

func (f *FunctionBehavior[M, R]) HandleCast(ctx context.Context, msg M) error {
	if f.castFn != nil {
		return f.castFn(ctx, msg)
	}

	return nil
}
