package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds a single store or gateway call
	DefaultTimeout = 10 * time.Second

	// MessageTimeout bounds the whole handling of one inbound message,
	// AI generation included
	MessageTimeout = 60 * time.Second

	// ShortTimeout is for quick operations (cache lookups, health pings)
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// DetachedMessageContext starts the processing context for a message that
// outlives the webhook request which delivered it.
func DetachedMessageContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), MessageTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
