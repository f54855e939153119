package gpu

import "errors"

// Sentinel errors surfaced by allocators and devices. Per §4.4 / §7 of the
// graph spec these are the only failures that propagate out of the engine
// directly (resource-exhaustion); everything else is attributed to a node
// and handled by a rebuild.
var (
	// ErrAllocatorNotFound indicates the requested allocator kind has no
	// registered factory.
	ErrAllocatorNotFound = errors.New("gpu: allocator not found")

	// ErrOutOfMemory indicates the device has exhausted its memory while
	// creating a resource. Surfaces to the caller of connect()/run().
	ErrOutOfMemory = errors.New("gpu: device out of memory")

	// ErrDeviceLost indicates the device has been lost (driver reset,
	// hardware disconnect, TDR timeout). Out of scope to recover from;
	// it surfaces from the queue as specified by §4.4.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrTimeout indicates a fence wait exceeded its deadline.
	ErrTimeout = errors.New("gpu: timeout")

	// ErrUnsupportedDelay indicates a consumer asked for a delay the
	// producing output cannot supply (connector-incompatible, §7).
	ErrUnsupportedDelay = errors.New("gpu: output does not support the requested delay")
)
