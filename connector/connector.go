// Package connector implements the typed endpoints a node declares on
// its inputs and outputs (§4.1): descriptor-binding info, barrier
// contribution, delay, optionality, and the five concrete connector
// kinds of §4.1.1.
package connector

import (
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// Status flags returned by the pre/post-process hooks, mirroring the
// node-level status flags of §6 but scoped to a single connector call.
type Status uint32

const (
	StatusOK Status = 0

	// NeedsDescriptorUpdate flags that the resource bound to this
	// connector changed and its descriptor write must be re-emitted.
	NeedsDescriptorUpdate Status = 1 << iota

	// NeedsReconnect demands the owning node go through another build
	// pass before the next iteration.
	NeedsReconnect
)

// Barriers accumulates the image/buffer memory barriers contributed by
// one phase (pre or post) across every connector of a node, to be
// coalesced into a single pipeline-barrier command (§4.3 step 7c).
type Barriers struct {
	Images  []gpu.ImageBarrier
	Buffers []gpu.BufferBarrier
	Accels  []gpu.AccelBarrier
}

func (b *Barriers) AddImage(bar gpu.ImageBarrier)   { b.Images = append(b.Images, bar) }
func (b *Barriers) AddBuffer(bar gpu.BufferBarrier) { b.Buffers = append(b.Buffers, bar) }
func (b *Barriers) AddAccel(bar gpu.AccelBarrier)   { b.Accels = append(b.Accels, bar) }
func (b *Barriers) Empty() bool {
	return len(b.Images) == 0 && len(b.Buffers) == 0 && len(b.Accels) == 0
}
func (b *Barriers) Reset() {
	b.Images = b.Images[:0]
	b.Buffers = b.Buffers[:0]
	b.Accels = b.Accels[:0]
}

// DescriptorInfo describes the shader-visible binding a connector
// contributes, or the zero value with Present == false when the
// connector has no GPU-visible representation (§4.1 "descriptor_info").
type DescriptorInfo struct {
	Present bool
	Type    gpu.DescriptorType
	Count   uint32
	Stages  gpu.ShaderStage
}

// OutputRef is the handle an input's producer is known by during
// describe_outputs/on_connect_output — either a concrete Output or a
// FeedbackSentinel standing in for a delayed edge's not-yet-visible
// producer (§4.2 step 4, §9 "Cyclic graphs").
type OutputRef interface {
	isOutputRef()
}

// FeedbackSentinel is handed to a node's DescribeOutputs in place of
// the real producer when the edge carries delay > 0, preventing the
// node from inspecting the producer's shape before it is finalised.
type FeedbackSentinel struct{ Name string }

func (FeedbackSentinel) isOutputRef() {}

// ConcreteOutput wraps a resolved Output reference.
type ConcreteOutput struct{ Output Output }

func (ConcreteOutput) isOutputRef() {}

// Input is the contract every input connector kind implements (§4.1).
type Input interface {
	// Name is unique within the owning node.
	Name() string

	// Delay is the number of iterations back this input reads from its
	// producer's output ring (0 means "current iteration").
	Delay() int

	// Optional reports whether the graph may leave this input
	// unconnected.
	Optional() bool

	// DescriptorInfo returns the binding template, if GPU-visible.
	DescriptorInfo() DescriptorInfo

	// OnConnectOutput validates compatibility with the chosen producer
	// and snapshots any metadata (e.g. array length) needed later. It
	// returns ErrIncompatible (or a wrapped error) to reject the edge.
	OnConnectOutput(output Output) error

	// EmitDescriptorUpdate appends the write for (set, binding) to the
	// batch, if this connector is bound to res this iteration.
	EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet)

	// OnPreProcess may push barriers and request status flags before
	// the node's Process call.
	OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status

	// OnPostProcess is the post-phase counterpart.
	OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status
}

// Output is the contract every output connector kind implements.
type Output interface {
	// Name is unique within the owning node.
	Name() string

	// Persistent disables memory aliasing for this output's resources
	// and forbids incoming delayed consumers.
	Persistent() bool

	// SupportsDelay reports whether consumers may attach with delay > 0.
	SupportsDelay() bool

	// CreateResource is called once per copy (delay slot) during
	// resource allocation (§4.2 step 6). consumers carries the largest
	// delay among the connected inputs; the builder leaves its usage,
	// stage and access fields zero.
	CreateResource(consumers ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error)

	DescriptorInfo() DescriptorInfo
	EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet)
	OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status
	OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status
}

// ConsumerDemand is the merged request of every input wired to one
// output, computed by the builder before calling CreateResource (§4.1
// "create_resource"). The builder merges only MaxDelay; inputs do not
// declare usage, stage or access here, so those fields stay zero. The
// consumers' stage/access is merged into the Resource at run time
// instead (resource.Resource.MergeConsumer).
type ConsumerDemand struct {
	ImageUsage  gpu.ImageUsage
	BufferUsage gpu.BufferUsage
	Stage       gpu.PipelineStage
	Access      gpu.AccessFlags
	MaxDelay    int
}

func (d *ConsumerDemand) Merge(other ConsumerDemand) {
	d.ImageUsage |= other.ImageUsage
	d.BufferUsage |= other.BufferUsage
	d.Stage |= other.Stage
	d.Access |= other.Access
	if other.MaxDelay > d.MaxDelay {
		d.MaxDelay = other.MaxDelay
	}
}
