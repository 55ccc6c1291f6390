package session

import "context"

// Hooks observe the progress of one Encode or Decode call. They run synchronously
// on the calling goroutine.
type Hooks struct {
	// Staged runs once the input artifact is written and the output artifact is
	// reserved.
	Staged func()
	// Invoked runs right before the model is called.
	Invoked func()
}

type hooksKey struct{}

// WithHooks returns a copy of ctx that carries h.
func WithHooks(ctx context.Context, h Hooks) context.Context {
	return context.WithValue(ctx, hooksKey{}, h)
}

// HooksFrom returns the hooks carried by ctx. Missing hooks are no-ops.
func HooksFrom(ctx context.Context) Hooks {
	h, _ := ctx.Value(hooksKey{}).(Hooks)
	if h.Staged == nil {
		h.Staged = func() {}
	}
	if h.Invoked == nil {
		h.Invoked = func() {}
	}

	return h
}
