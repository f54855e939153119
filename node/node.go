// Package node defines the Node contract nodes implement (§6), the
// status flags they and their connectors return, and the opaque
// per-node in-flight state container (§9, "Opaque per-node in-flight
// state").
package node

import (
	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// Status flags a node may return from OnConnected or PreProcess (§6).
type Status uint32

const (
	StatusOK Status = 0

	// NeedsReconnect requests another build pass before the next
	// iteration proceeds.
	NeedsReconnect Status = 1 << iota

	// ResetInFlightData discards every ring slot's opaque state for
	// this node, forcing re-initialization on next access.
	ResetInFlightData

	// RemoveNode requests the node be removed once the current build
	// completes (§9, Open Questions: "after the current build").
	RemoveNode
)

// IOLayout is the read-only view of a node's final wiring handed to
// OnConnected (§6).
type IOLayout struct {
	Inputs  map[string]connector.Input
	Outputs map[string]connector.Output
}

// IO is the per-iteration resource map a node's PreProcess/Process
// calls receive: input name -> bound resource (nil if optional and
// unconnected), output name -> bound resource for the current copy.
type IO struct {
	Inputs  map[string]*resource.Resource
	Outputs map[string]*resource.Resource
}

// Node is the user-supplied computation unit (§6).
type Node interface {
	// DescribeInputs enumerates this node's input connectors. Called
	// once per build pass, before any output is resolved.
	DescribeInputs() []connector.Input

	// DescribeOutputs is invoked once the input-to-output map is
	// finalised; delayed inputs are represented by a FeedbackSentinel
	// rather than their real producer.
	DescribeOutputs(forInput map[string]connector.OutputRef) []connector.Output

	// OnConnected is called after wiring completes for this build pass.
	OnConnected(layout IOLayout) Status

	// PreProcess runs every iteration before execution begins.
	PreProcess(io IO) Status

	// Process performs the node's actual work for one iteration.
	Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io IO) error

	// Properties exposes the node's configuration for interactive
	// inspection; out of the engine's core concern, but every node
	// must implement it (§6).
	Properties(cfg any) error
}
