// Package resource implements the tagged-variant Resource handle of §3:
// a polymorphic artifact flowing along a graph edge, carrying the
// merged barrier state its producer and consumers require.
package resource

import (
	"code.hybscloud.com/atomix"

	"github.com/merian-nodes/graph/gpu"
)

// Kind tags which variant of the union a Resource currently holds.
type Kind int

const (
	KindImage Kind = iota
	KindBuffer
	KindImageArray
	KindBufferArray
	KindAccelerationStructure
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	case KindImageArray:
		return "image-array"
	case KindBufferArray:
		return "buffer-array"
	case KindAccelerationStructure:
		return "acceleration-structure"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Resource is the polymorphic handle for one artifact flowing on an
// edge (§3). Exactly one of the typed fields is valid for a given Kind;
// callers use the Kind-specific accessor rather than switching on the
// field directly.
type Resource struct {
	Kind Kind

	image       gpu.Image
	buffer      gpu.Buffer
	imageArray  []gpu.Image
	bufferArray []gpu.Buffer
	accel       gpu.AccelerationStructure
	opaque      any

	// producerStage/producerAccess are the "before" mask used as the
	// src side of pre-barriers: the stage/access the producer wrote
	// with.
	producerStage  gpu.PipelineStage
	producerAccess gpu.AccessFlags

	// consumerStage/consumerAccess are the union of every consumer's
	// declared stage/access, used as the "after" mask in post-barriers.
	consumerStage  gpu.PipelineStage
	consumerAccess gpu.AccessFlags

	dirty     atomix.Bool
	retention atomix.Int32
}

// newDirty marks a freshly constructed resource as needing its initial
// descriptor write (original_source/src/merian-nodes/resources/
// vk_buffer_resource.hpp: "bool needs_descriptor_update = true"): every
// resource is born dirty so the descriptor engine flushes a binding for
// it on the iteration it is first bound, not just on later mutation.
func newDirty(r *Resource) *Resource {
	r.dirty.Store(true)
	return r
}

// NewImage wraps a managed image, produced with the given stage/access.
func NewImage(img gpu.Image, producerStage gpu.PipelineStage, producerAccess gpu.AccessFlags) *Resource {
	return newDirty(&Resource{Kind: KindImage, image: img, producerStage: producerStage, producerAccess: producerAccess})
}

// NewBuffer wraps a managed buffer.
func NewBuffer(buf gpu.Buffer, producerStage gpu.PipelineStage, producerAccess gpu.AccessFlags) *Resource {
	return newDirty(&Resource{Kind: KindBuffer, buffer: buf, producerStage: producerStage, producerAccess: producerAccess})
}

// NewImageArray wraps a fixed-size array of image slots (§4.1.1).
func NewImageArray(images []gpu.Image) *Resource {
	return newDirty(&Resource{Kind: KindImageArray, imageArray: images})
}

// NewBufferArray wraps a fixed-size array of buffer slots.
func NewBufferArray(buffers []gpu.Buffer) *Resource {
	return newDirty(&Resource{Kind: KindBufferArray, bufferArray: buffers})
}

// NewAccelerationStructure wraps a top-level acceleration structure.
func NewAccelerationStructure(tlas gpu.AccelerationStructure) *Resource {
	return newDirty(&Resource{Kind: KindAccelerationStructure, accel: tlas})
}

// NewOpaque wraps a host-only value with no GPU representation.
func NewOpaque(value any) *Resource {
	return newDirty(&Resource{Kind: KindOpaque, opaque: value})
}

func (r *Resource) Image() gpu.Image                   { return r.image }
func (r *Resource) Buffer() gpu.Buffer                 { return r.buffer }
func (r *Resource) ImageArray() []gpu.Image            { return r.imageArray }
func (r *Resource) BufferArray() []gpu.Buffer          { return r.bufferArray }
func (r *Resource) AccelerationStructure() gpu.AccelerationStructure { return r.accel }
func (r *Resource) Opaque() any                        { return r.opaque }

// SetOpaque replaces the host value held by an opaque resource.
func (r *Resource) SetOpaque(value any) { r.opaque = value }

// MergeConsumer folds one more consumer's declared stage/access into
// the resource's "after" mask (§3, "union of consumer pipeline-stage
// and access flags").
func (r *Resource) MergeConsumer(stage gpu.PipelineStage, access gpu.AccessFlags) {
	r.consumerStage |= stage
	r.consumerAccess |= access
}

// ConsumerMask returns the accumulated post-barrier stage/access mask.
func (r *Resource) ConsumerMask() (gpu.PipelineStage, gpu.AccessFlags) {
	return r.consumerStage, r.consumerAccess
}

// ProducerMask returns the pre-barrier stage/access mask.
func (r *Resource) ProducerMask() (gpu.PipelineStage, gpu.AccessFlags) {
	return r.producerStage, r.producerAccess
}

// MarkDirty flags the resource's descriptor binding as needing
// re-emission, e.g. after an image/buffer array mutates its slots.
func (r *Resource) MarkDirty() { r.dirty.Store(true) }

// ConsumeDirty reports whether the resource was dirty and clears the
// flag atomically, so exactly one descriptor flush observes it.
func (r *Resource) ConsumeDirty() bool {
	if r.dirty.Load() {
		r.dirty.Store(false)
		return true
	}
	return false
}

// Retain increments the in-flight retention count: the number of ring
// slots that still have an outstanding read of this resource copy.
func (r *Resource) Retain() { r.retention.Add(1) }

// Release decrements the retention count once a ring slot's fence
// signals, returning the count after release.
func (r *Resource) Release() int32 { return r.retention.Add(-1) }

// Retained reports whether any ring slot still holds a reference.
func (r *Resource) Retained() bool { return r.retention.Load() > 0 }

// AllHandles returns every underlying gpu.Resource this Resource owns,
// for callers (e.g. the aliasing allocator's Retire) that operate on
// the handle level rather than the tagged variant.
func (r *Resource) AllHandles() []gpu.Resource {
	switch r.Kind {
	case KindImage:
		if r.image == nil {
			return nil
		}
		return []gpu.Resource{r.image}
	case KindBuffer:
		if r.buffer == nil {
			return nil
		}
		return []gpu.Resource{r.buffer}
	case KindImageArray:
		handles := make([]gpu.Resource, 0, len(r.imageArray))
		for _, img := range r.imageArray {
			if img != nil {
				handles = append(handles, img)
			}
		}
		return handles
	case KindBufferArray:
		handles := make([]gpu.Resource, 0, len(r.bufferArray))
		for _, buf := range r.bufferArray {
			if buf != nil {
				handles = append(handles, buf)
			}
		}
		return handles
	case KindAccelerationStructure:
		if r.accel == nil {
			return nil
		}
		return []gpu.Resource{r.accel}
	default:
		return nil
	}
}

// Destroy releases the underlying GPU handle(s), if any. Opaque and
// array resources without individually owned GPU handles are no-ops
// beyond their element handles.
func (r *Resource) Destroy() {
	switch r.Kind {
	case KindImage:
		if r.image != nil {
			r.image.Destroy()
		}
	case KindBuffer:
		if r.buffer != nil {
			r.buffer.Destroy()
		}
	case KindImageArray:
		for _, img := range r.imageArray {
			if img != nil {
				img.Destroy()
			}
		}
	case KindBufferArray:
		for _, buf := range r.bufferArray {
			if buf != nil {
				buf.Destroy()
			}
		}
	case KindAccelerationStructure:
		if r.accel != nil {
			r.accel.Destroy()
		}
	}
}
