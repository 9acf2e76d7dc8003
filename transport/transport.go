// Package transport defines the modem transport boundary the connection
// core consumes: a framed command/response channel plus an
// independent unsolicited-event stream. Concrete framing (AT, QMI, MBIM,
// ...) lives below this interface; the core only ever sees semantic
// callbacks dispatched by the dialect layer on top of it.
package transport

import "context"

// Response is the final outcome of one issued command: whether it
// succeeded, plus the intermediate lines the transport captured before
// the terminal frame.
type Response struct {
	OK    bool
	Lines []string // captured intermediate lines, in arrival order
	Err   error
}

// ResponseFunc is invoked exactly once with the final response to a
// Send call. It always runs on the transport's own serialized loop.
type ResponseFunc func(Response)

// EventHandler is invoked for every unsolicited line whose prefix was
// registered via Register. Order across distinct prefixes is arrival
// order; a handler must not block.
type EventHandler func(line string)

// Channel is the framed command/response + event transport the modem
// dialect layer drives. Implementations must serialize Send calls FIFO
//: at most one command is outstanding at a time.
type Channel interface {
	// Send issues cmd and invokes fn exactly once with the final
	// response. expectedPrefix, when non-empty, is the prefix of the
	// terminal success line the transport should wait for (e.g. "OK" or
	// a named final result); transports that don't need this hint may
	// ignore it.
	Send(ctx context.Context, cmd string, expectedPrefix string, fn ResponseFunc)

	// Register subscribes handler to unsolicited lines beginning with
	// prefix. Multiple handlers may share a prefix; all are invoked.
	Register(prefix string, handler EventHandler) (unregister func())

	// Close releases the channel. Pending Send callbacks are invoked
	// with a Response{Err: ErrClosed} before Close returns.
	Close() error
}
