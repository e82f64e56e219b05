// Package transport carries counter commands to the distributed counter service.
//
// A command is a slice such as ["INCR", key] or ["EXPIRE", key, 60]. Transports
// return the raw command result and leave its interpretation to the caller.
package transport

import (
	"context"
	"errors"
)

// ErrCommandFailed is wrapped by every error a transport returns.
var ErrCommandFailed = errors.New("counter command failed")

// Transport executes a single counter command.
type Transport interface {
	Do(ctx context.Context, args ...interface{}) (interface{}, error)
	Close() error
}
