package gpu

// ImageBarrier describes a single image memory barrier contributed by a
// connector during §4.3 step 7a/7b. Coalesced with every other barrier
// from the same phase into one pipeline-barrier command.
type ImageBarrier struct {
	Image       Image
	OldLayout   ImageLayout
	NewLayout   ImageLayout
	SrcStage    PipelineStage
	DstStage    PipelineStage
	SrcAccess   AccessFlags
	DstAccess   AccessFlags
}

// BufferBarrier describes a single buffer memory barrier.
type BufferBarrier struct {
	Buffer    Buffer
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// AccelBarrier describes a single acceleration-structure read barrier
// (§4.1.1 "TLAS out / in": "acceleration-structure read barrier in the
// consumer's pipeline stage"). TLASes are read-only to consumers, so
// there is only ever a build-to-read direction, never a return barrier.
type AccelBarrier struct {
	Accel     AccelerationStructure
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// CommandBuffer is the engine's view of a single recorded command
// sequence for one iteration. The runtime acquires one per iteration
// slot (§3), records barriers and process() calls into it in
// topological order, then hands it to Device.Submit.
type CommandBuffer interface {
	Resource

	// PipelineBarrier emits one coalesced barrier command covering every
	// image, buffer, and acceleration-structure barrier collected for
	// the current phase. Any slice may be empty; a call with all three
	// empty is a no-op.
	PipelineBarrier(images []ImageBarrier, buffers []BufferBarrier, accels []AccelBarrier)

	// BindDescriptorSet binds the descriptor set a node will read from
	// during its Process call.
	BindDescriptorSet(set DescriptorSet)

	// PushDebugLabel opens a debug label scope around a node's
	// execution (§4.3 step 7, "within a debug label").
	PushDebugLabel(name string)

	// PopDebugLabel closes the most recently pushed debug label.
	PopDebugLabel()
}

// CommandPool allocates and recycles CommandBuffers for one iteration
// slot, matching the per-slot "command pool that is reset on reuse"
// of §3.
type CommandPool interface {
	// Acquire returns a command buffer ready for recording, reusing a
	// previously reset one when available.
	Acquire() (CommandBuffer, error)

	// Reset recycles every command buffer acquired from this pool back
	// to an unrecorded state, called once per slot reuse.
	Reset()

	// Destroy releases the pool and everything it allocated.
	Destroy()
}
