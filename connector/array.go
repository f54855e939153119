package connector

import (
	"fmt"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// ImageArrayOutput is an array-of-images output (§4.1.1 "Image/buffer
// array out"). Arrays never carry a barrier: the producer owns and
// mutates slots directly, and the only observable effect on consumers
// is a descriptor-update flag when a slot changes. Arrays are always
// persistent.
type ImageArrayOutput struct {
	OutputName    string
	Count         int
	Width, Height uint32
	Format        uint32
	Binding       DescriptorInfo

	slots []gpu.Image
}

func (o *ImageArrayOutput) Name() string          { return o.OutputName }
func (o *ImageArrayOutput) Persistent() bool      { return true }
func (o *ImageArrayOutput) SupportsDelay() bool   { return false }
func (o *ImageArrayOutput) DescriptorInfo() DescriptorInfo { return o.Binding }

func (o *ImageArrayOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	images := make([]gpu.Image, o.Count)
	for i := range images {
		img, err := persistent.CreateImage(gpu.ImageDescriptor{
			Width: o.Width, Height: o.Height, Depth: 1,
			MipLevels: 1,
			Format:    o.Format,
			Usage:     demand.ImageUsage | gpu.ImageUsageSampled,
			DebugName: fmt.Sprintf("%s[%d]", o.OutputName, i),
		})
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	o.slots = images
	return resource.NewImageArray(images), nil
}

// SetSlot replaces one element and flags res dirty so the descriptor
// engine re-emits the binding for that slot.
func (o *ImageArrayOutput) SetSlot(res *resource.Resource, idx int, img gpu.Image) {
	arr := res.ImageArray()
	arr[idx] = img
	res.MarkDirty()
}

func (o *ImageArrayOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	for i, img := range res.ImageArray() {
		set.Enqueue(gpu.DescriptorWrite{Binding: binding, ArrayIdx: uint32(i), Image: img})
	}
}

func (o *ImageArrayOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res.ConsumeDirty() {
		return NeedsDescriptorUpdate
	}
	return StatusOK
}

func (o *ImageArrayOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res.ConsumeDirty() {
		return NeedsDescriptorUpdate
	}
	return StatusOK
}

// BufferArrayOutput is the buffer-array counterpart of ImageArrayOutput.
type BufferArrayOutput struct {
	OutputName string
	Count      int
	Size       uint64
	Binding    DescriptorInfo
}

func (o *BufferArrayOutput) Name() string          { return o.OutputName }
func (o *BufferArrayOutput) Persistent() bool      { return true }
func (o *BufferArrayOutput) SupportsDelay() bool   { return false }
func (o *BufferArrayOutput) DescriptorInfo() DescriptorInfo { return o.Binding }

func (o *BufferArrayOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	buffers := make([]gpu.Buffer, o.Count)
	for i := range buffers {
		buf, err := persistent.CreateBuffer(gpu.BufferDescriptor{
			Size:      o.Size,
			Usage:     demand.BufferUsage | gpu.BufferUsageStorage,
			DebugName: fmt.Sprintf("%s[%d]", o.OutputName, i),
		})
		if err != nil {
			return nil, err
		}
		buffers[i] = buf
	}
	return resource.NewBufferArray(buffers), nil
}

func (o *BufferArrayOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	for i, buf := range res.BufferArray() {
		set.Enqueue(gpu.DescriptorWrite{Binding: binding, ArrayIdx: uint32(i), Buffer: buf})
	}
}

func (o *BufferArrayOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res.ConsumeDirty() {
		return NeedsDescriptorUpdate
	}
	return StatusOK
}

func (o *BufferArrayOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res.ConsumeDirty() {
		return NeedsDescriptorUpdate
	}
	return StatusOK
}
