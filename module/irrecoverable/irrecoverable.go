package irrecoverable

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Signaler sends the error out.
type Signaler struct {
	errChan   chan error
	errThrown sync.Once
}

func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{errChan: errChan}, errChan
}

// Throw is a narrow drop-in replacement for panic, log.Fatal, log.Panic, etc
// anywhere there's something connected to the error channel. It only sends
// the first error it is called with; subsequent errors are dropped since the
// component is already shutting down.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	s.errThrown.Do(func() {
		s.errChan <- err
		close(s.errChan)
	})
}

// SignalerContext is a constrained drop-in replacement for context.Context
// that can also throw irrecoverable errors to whoever started the component.
type SignalerContext interface {
	context.Context
	Throw(err error) // delegates to the signaler
	sealed()         // private, to constrain builder to using WithSignaler
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler is the One True Way of getting a SignalerContext.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}

// Throw enables throwing an irrecoverable error using any context.Context.
// If the context is not a SignalerContext, there is no signaler to pass the
// error to, which indicates a bug, so we panic.
func Throw(ctx context.Context, err error) {
	signalerAbleContext, ok := ctx.(SignalerContext)
	if ok {
		signalerAbleContext.Throw(err)
	}
	panic(fmt.Sprintf("irrecoverable error signaler not found for context, please implement! Unhandled irrecoverable error: %v", err))
}

// exception wraps an error to mark it as an unexpected fault, stripping any
// sentinel or typed error information from it.
type exception struct {
	err error
}

func (e exception) Error() string {
	return e.err.Error() + " (exception!)"
}

// NewExceptionf wraps a formatted error as an exception, invalidating any
// error matching (errors.Is / errors.As) on the wrapped error. Use it when
// an error from a lower layer is unexpected and must not be interpreted as
// one of this layer's sentinel errors.
func NewExceptionf(msg string, args ...interface{}) error {
	return exception{err: fmt.Errorf(msg, args...)}
}
