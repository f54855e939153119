package gpu

// Resource is the base interface satisfied by every GPU-owned handle this
// package hands back to the engine. Handles must be explicitly destroyed;
// the graph engine itself does not call Destroy on the handles it
// allocates.
type Resource interface {
	// NativeHandle returns the backend-specific handle for debugging and
	// for descriptor-write plumbing. Its concrete type is backend-defined.
	NativeHandle() any

	// Destroy releases the resource. Calling it twice is undefined
	// behavior, matching the discipline real GPU APIs impose.
	Destroy()
}

// Image is a managed image/texture resource (§4.1.1 "Managed image").
type Image interface {
	Resource
}

// ImageView is the descriptor-binding-visible view of an Image. This
// backend does not distinguish views from the image they're taken of,
// so ImageView is the same interface as Image; a backend that needs
// separate view objects can still satisfy both.
type ImageView = Image

// Buffer is a managed buffer resource (§4.1.1 "Managed buffer").
type Buffer interface {
	Resource
}

// AccelerationStructure is a top-level acceleration structure resource
// (§4.1.1 "TLAS").
type AccelerationStructure interface {
	Resource
}

// Fence is a CPU/GPU synchronization primitive. One Fence backs each
// iteration slot in the runtime's ring (§3 "Iteration slot").
type Fence interface {
	Resource

	// Wait blocks until the fence is signalled or an internal timeout
	// elapses, returning ErrTimeout in the latter case.
	Wait() error

	// Reset un-signals the fence so the slot can be reused.
	Reset()
}

// PipelineStage is a bitmask of pipeline stages, mirroring Vulkan's
// VkPipelineStageFlags closely enough that a real backend can translate
// it with a single lookup table.
type PipelineStage uint32

// Pipeline stage bits used when merging producer/consumer barrier masks.
const (
	StageNone PipelineStage = 0
	StageTop  PipelineStage = 1 << iota
	StageTransfer
	StageCompute
	StageVertexInput
	StageFragment
	StageColorOutput
	StageAccelStructBuild
	StageRayTracing
	StageHost
	StageBottom
	StageAllCommands PipelineStage = 1 << 31
)

// AccessFlags is a bitmask of memory access types, mirroring
// VkAccessFlags2.
type AccessFlags uint32

const (
	AccessNone AccessFlags = 0
	AccessTransferRead AccessFlags = 1 << iota
	AccessTransferWrite
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessAccelStructRead
	AccessAccelStructWrite
	AccessHostRead
	AccessHostWrite
)

// ImageLayout is the logical layout an image is in, used to decide
// whether a pre-barrier transition is required.
type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutShaderReadOnly
	ImageLayoutColorAttachment
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
)

// ImageUsage and BufferUsage are descriptor-time usage hints merged from
// every consumer of an output (§4, Resource Allocator).
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
	BufferUsageIndirect
	BufferUsageAccelStructInput
)
