package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/session"
)

// RequestState is the state of one compress or decompress request.
type RequestState int

const (
	StateReceived RequestState = iota
	StateValidating
	StateStaged
	StateCodecInvoked
	StateSucceeded
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidating:
		return "validating"
	case StateStaged:
		return "staged"
	case StateCodecInvoked:
		return "codec_invoked"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure kinds recorded on a failed Trace.
const (
	FailureValidation       = "validation"
	FailureCodecUnavailable = "codec_unavailable"
	FailureCodec            = "codec"
	FailureStaging          = "staging"
	FailureCanceled         = "canceled"
	FailureInternal         = "internal"
)

// FailureKind classifies err into one of the Failure* kinds.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	case errs.IsValidation(err):
		return FailureValidation
	case errors.Is(err, errs.ErrCodecUnavailable):
		return FailureCodecUnavailable
	case errors.Is(err, errs.ErrCodecEncode), errors.Is(err, errs.ErrCodecDecode):
		return FailureCodec
	case errors.Is(err, errs.ErrStaging):
		return FailureStaging
	default:
		return FailureInternal
	}
}

var requestSeq atomic.Uint64

// Trace records the states a request passed through.
type Trace struct {
	ID      uint64
	Op      string
	States  []RequestState
	Failure string
}

func newTrace(op string) *Trace {
	return &Trace{
		ID:     requestSeq.Add(1),
		Op:     op,
		States: []RequestState{StateReceived},
	}
}

// State returns the latest state.
func (t *Trace) State() RequestState {
	return t.States[len(t.States)-1]
}

func (t *Trace) to(s RequestState) {
	t.States = append(t.States, s)
}

// hooks returns ctx carrying session hooks that record the staged and
// codec_invoked states as the codec reaches them.
func (t *Trace) hooks(ctx context.Context) context.Context {
	return session.WithHooks(ctx, session.Hooks{
		Staged:  func() { t.to(StateStaged) },
		Invoked: func() { t.to(StateCodecInvoked) },
	})
}

func (t *Trace) fail(err error) {
	t.Failure = FailureKind(err)
	t.to(StateFailed)
}

// String renders the path, e.g. "received>validating>failed(validation)".
func (t *Trace) String() string {
	parts := make([]string, len(t.States))
	for i, s := range t.States {
		parts[i] = s.String()
	}
	out := strings.Join(parts, ">")
	if t.Failure != "" {
		out += "(" + t.Failure + ")"
	}

	return out
}
