// Package core defines sentinel errors shared across dgcap packages.
package core

import "errors"

var (
	// Receive queue errors
	ErrQueueExhausted = errors.New("dgcap: receive queue exhausted")
	ErrQueueClosed    = errors.New("dgcap: receive queue closed")

	// Decapsulation errors
	ErrNotDatagram = errors.New("dgcap: frame does not carry a datagram")

	// Hardware register window errors
	ErrSnapshotUnavailable = errors.New("dgcap: hardware snapshot unavailable")
	ErrUnsupported         = errors.New("dgcap: not supported on this platform")

	// Configuration errors
	ErrConfigInvalid = errors.New("dgcap: invalid configuration")
)
