// Package contxt builds contexts for work started from callbacks that have
// no caller context of their own, such as socket or timer callbacks.
package contxt

import (
	"context"
	"time"
)

// NewContext returns a context that expires after timeout and releases its
// timer on its own once done.
func NewContext(timeout time.Duration) context.Context {
	return WithTimeout(context.Background(), timeout)
}

// WithTimeout is NewContext rooted at parent. A non-positive timeout only
// inherits parent's cancellation.
func WithTimeout(parent context.Context, timeout time.Duration) context.Context {
	if timeout <= 0 {
		return parent
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
