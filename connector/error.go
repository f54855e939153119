package connector

import "errors"

var (
	// ErrIncompatible is returned by OnConnectOutput when the producer
	// cannot satisfy this input's requirements (§4.1, §7
	// "connector-incompatible").
	ErrIncompatible = errors.New("connector: incompatible with producer output")

	// ErrDelayUnsupported is a specific incompatibility: the consumer
	// asked for delay > 0 but the producer's output does not support it.
	ErrDelayUnsupported = errors.New("connector: output does not support delay")

	// ErrPersistentDelay is a specific incompatibility: the producer's
	// output is persistent, which forbids delayed consumers (§3).
	ErrPersistentDelay = errors.New("connector: persistent output cannot have a delayed consumer")
)
