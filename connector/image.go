package connector

import (
	"fmt"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// ImageOutput is a managed-image output connector (§4.1.1 "Managed
// image in/out"). Its pre-process barrier transitions the image to a
// writable layout on every iteration, and its post-barrier uses the
// access that consumers have merged into the resource.
type ImageOutput struct {
	OutputName     string
	IsPersistent   bool
	DelaySupported bool
	Width, Height  uint32
	MipLevels      uint32
	Format         uint32
	Binding        DescriptorInfo
}

func (o *ImageOutput) Name() string          { return o.OutputName }
func (o *ImageOutput) Persistent() bool      { return o.IsPersistent }
func (o *ImageOutput) SupportsDelay() bool   { return o.DelaySupported }
func (o *ImageOutput) DescriptorInfo() DescriptorInfo { return o.Binding }

func (o *ImageOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	desc := gpu.ImageDescriptor{
		Width: o.Width, Height: o.Height, Depth: 1,
		MipLevels: maxUint32(1, o.MipLevels),
		Format:    o.Format,
		Usage:     demand.ImageUsage | gpu.ImageUsageSampled,
		DebugName: fmt.Sprintf("%s#%d", o.OutputName, copyIndex),
	}

	var img gpu.Image
	var err error
	if o.IsPersistent {
		img, err = persistent.CreateImage(desc)
	} else {
		img, err = aliasing.CreateImage(desc)
	}
	if err != nil {
		return nil, err
	}
	return resource.NewImage(img, gpu.StageColorOutput, gpu.AccessColorAttachmentWrite), nil
}

func (o *ImageOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, Image: res.Image()})
}

func (o *ImageOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	stage, access := res.ConsumerMask()
	barriers.AddImage(gpu.ImageBarrier{
		Image:     res.Image(),
		OldLayout: gpu.ImageLayoutUndefined,
		NewLayout: gpu.ImageLayoutColorAttachment,
		SrcStage:  gpu.StageTop,
		DstStage:  stage | gpu.StageColorOutput,
		SrcAccess: gpu.AccessNone,
		DstAccess: access | gpu.AccessColorAttachmentWrite,
	})
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (o *ImageOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	stage, access := res.ConsumerMask()
	if stage == gpu.StageNone {
		return StatusOK
	}
	barriers.AddImage(gpu.ImageBarrier{
		Image:     res.Image(),
		OldLayout: gpu.ImageLayoutColorAttachment,
		NewLayout: gpu.ImageLayoutShaderReadOnly,
		SrcStage:  gpu.StageColorOutput,
		DstStage:  stage,
		SrcAccess: gpu.AccessColorAttachmentWrite,
		DstAccess: access,
	})
	return StatusOK
}

// ImageInput is the consuming counterpart: its pre-process barrier
// transitions the image to a shader-read layout in its own stage and
// merges its access into the resource. It emits no post-process
// barrier; the producer's ImageOutput pre-process barrier makes the
// image writable again on the next iteration.
type ImageInput struct {
	InputName  string
	InputDelay int
	IsOptional bool
	Binding    DescriptorInfo
	Stage      gpu.PipelineStage
	Access     gpu.AccessFlags
}

func (i *ImageInput) Name() string                   { return i.InputName }
func (i *ImageInput) Delay() int                      { return i.InputDelay }
func (i *ImageInput) Optional() bool                  { return i.IsOptional }
func (i *ImageInput) DescriptorInfo() DescriptorInfo { return i.Binding }

func (i *ImageInput) OnConnectOutput(output Output) error {
	if i.InputDelay > 0 && !output.SupportsDelay() {
		return ErrDelayUnsupported
	}
	if i.InputDelay > 0 {
		if o, ok := output.(*ImageOutput); ok && o.IsPersistent {
			return ErrPersistentDelay
		}
	}
	return nil
}

func (i *ImageInput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, Image: res.Image()})
}

func (i *ImageInput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res == nil {
		return StatusOK
	}
	res.MergeConsumer(i.Stage, i.Access)
	barriers.AddImage(gpu.ImageBarrier{
		Image:     res.Image(),
		OldLayout: gpu.ImageLayoutColorAttachment,
		NewLayout: gpu.ImageLayoutShaderReadOnly,
		SrcStage:  gpu.StageColorOutput,
		DstStage:  i.Stage,
		SrcAccess: gpu.AccessColorAttachmentWrite,
		DstAccess: i.Access,
	})
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (i *ImageInput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	return StatusOK
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
