package gpu

// DescriptorType identifies the shader-visible binding kind a connector
// declares in its descriptor_info() (§4.1).
type DescriptorType uint32

const (
	DescriptorSampledImage DescriptorType = iota
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorAccelerationStructure
)

// ShaderStage is a bitmask of shader stages a binding is visible to.
type ShaderStage uint32

const (
	ShaderStageCompute ShaderStage = 1 << iota
	ShaderStageVertex
	ShaderStageFragment
)

// BindingInfo is the descriptor-binding template a connector supplies
// when it is GPU-visible (§4.1 "descriptor_info").
type BindingInfo struct {
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorSetLayout is an opaque, backend-created layout built from the
// concatenation of a node's input then output BindingInfos (§4.2 step 7).
type DescriptorSetLayout interface {
	Resource
}

// DescriptorWrite is a single queued update, batched by the descriptor
// engine and flushed just before a node's Process call (§4.3 step 7d).
type DescriptorWrite struct {
	Binding  uint32
	ArrayIdx uint32
	Image    ImageView
	Buffer   Buffer
	AccelStruct AccelerationStructure
}

// DescriptorSet is one allocated set from the node's descriptor-set ring
// (§3 "Descriptor set ring").
type DescriptorSet interface {
	Resource

	// Enqueue stages a write to be applied on the next Flush. Connectors
	// call this from emit_descriptor_update; writes accumulate until
	// flushed so that multiple dirty connectors on the same node produce
	// one batched update.
	Enqueue(write DescriptorWrite)

	// Flush applies every enqueued write. Called once per node per
	// iteration, immediately before Process (§4.3 step 7d).
	Flush()
}

// Device is the graph engine's sole handle to the surrounding GPU
// context. It is responsible for command buffer pools, fences and the
// dummy resources used to fill unconnected optional-array slots
// (§4.1.2).
type Device interface {
	// NewCommandPool creates a command pool for one iteration slot.
	NewCommandPool() (CommandPool, error)

	// NewFence creates an unsignalled fence for one iteration slot.
	NewFence() (Fence, error)

	// Submit submits a recorded command buffer, to be signalled by
	// fence on completion.
	Submit(cmd CommandBuffer, fence Fence) error

	// NewDescriptorSetLayout builds a layout from ordered bindings.
	NewDescriptorSetLayout(bindings []BindingInfo) (DescriptorSetLayout, error)

	// NewDescriptorSets allocates count sets from layout, one per
	// descriptor-set-ring slot (§3).
	NewDescriptorSets(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)

	// DummyBuffer returns a zero-sized buffer used to fill unconnected
	// optional buffer-array slots (§4.1.2).
	DummyBuffer() Buffer

	// DummyStorageImageView returns a 4x4 magenta image view used to
	// fill unconnected optional image-array slots (§4.1.2).
	DummyStorageImageView() ImageView
}

// ImageDescriptor describes a managed image an output connector wants
// created (§4.1 "create_resource").
type ImageDescriptor struct {
	Width, Height, Depth uint32
	MipLevels            uint32
	Format               uint32
	Usage                ImageUsage
	DebugName            string
}

// BufferDescriptor describes a managed buffer an output connector wants
// created.
type BufferDescriptor struct {
	Size      uint64
	Usage     BufferUsage
	DebugName string
}

// PersistentAllocator creates resources from a long-lived, non-aliasing
// pool. Persistent outputs (§3, §4.1) must use this allocator so their
// memory never overlaps another resource's.
type PersistentAllocator interface {
	CreateImage(desc ImageDescriptor) (Image, error)
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateAccelerationStructure(sizeBytes uint64, debugName string) (AccelerationStructure, error)
}

// AliasingAllocator creates resources whose device memory may overlap
// with other resources that the builder has proven have disjoint live
// ranges (§4.2 step 6, §5 "Shared resources"). It additionally exposes
// Stats so tests can observe aliasing taking place (§8 scenario 6).
type AliasingAllocator interface {
	CreateImage(desc ImageDescriptor) (Image, error)
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// Retire tells the allocator that resource's live range has ended
	// and its backing memory may be reused by a subsequent Create call
	// whose own live range starts after this point in the topological
	// order. The builder calls this once it has proven, from the
	// topological order, that no later consumer still needs resource.
	Retire(resource Resource)

	// Stats reports every region carved out of the underlying arena,
	// live or retired, with its debug name, for observability in tests
	// and diagnostics.
	Stats() AllocatorStats
}

// AllocatorStats summarizes an AliasingAllocator's current memory layout.
type AllocatorStats struct {
	TotalBytes uint64
	Regions    []AllocatorRegion
}

// AllocatorRegion is one named, offset-addressed span of the aliasing
// arena. Two regions whose Offset ranges overlap are, by construction,
// never live at the same time.
type AllocatorRegion struct {
	Name   string
	Offset uint64
	Size   uint64
}
