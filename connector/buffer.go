package connector

import (
	"fmt"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// BufferOutput is a managed-buffer output connector (§4.1.1 "Managed
// buffer in/out"). Barriers are plain memory barriers between producer
// and consumer pipeline stages; there is no layout to transition.
type BufferOutput struct {
	OutputName     string
	IsPersistent   bool
	DelaySupported bool
	Size           uint64
	Binding        DescriptorInfo
}

func (o *BufferOutput) Name() string          { return o.OutputName }
func (o *BufferOutput) Persistent() bool      { return o.IsPersistent }
func (o *BufferOutput) SupportsDelay() bool   { return o.DelaySupported }
func (o *BufferOutput) DescriptorInfo() DescriptorInfo { return o.Binding }

func (o *BufferOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	desc := gpu.BufferDescriptor{
		Size:      o.Size,
		Usage:     demand.BufferUsage | gpu.BufferUsageStorage,
		DebugName: fmt.Sprintf("%s#%d", o.OutputName, copyIndex),
	}

	var buf gpu.Buffer
	var err error
	if o.IsPersistent {
		buf, err = persistent.CreateBuffer(desc)
	} else {
		buf, err = aliasing.CreateBuffer(desc)
	}
	if err != nil {
		return nil, err
	}
	return resource.NewBuffer(buf, gpu.StageCompute, gpu.AccessShaderWrite), nil
}

func (o *BufferOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, Buffer: res.Buffer()})
}

func (o *BufferOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (o *BufferOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	stage, access := res.ConsumerMask()
	if stage == gpu.StageNone {
		return StatusOK
	}
	barriers.AddBuffer(gpu.BufferBarrier{
		Buffer:    res.Buffer(),
		SrcStage:  gpu.StageCompute,
		DstStage:  stage,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: access,
	})
	return StatusOK
}

// BufferInput is the consuming counterpart of BufferOutput: it emits a
// memory barrier from the producer's write stage to its own read
// stage, and a return barrier if the producer writes again.
type BufferInput struct {
	InputName  string
	InputDelay int
	IsOptional bool
	Binding    DescriptorInfo
	Stage      gpu.PipelineStage
	Access     gpu.AccessFlags
}

func (i *BufferInput) Name() string                   { return i.InputName }
func (i *BufferInput) Delay() int                      { return i.InputDelay }
func (i *BufferInput) Optional() bool                  { return i.IsOptional }
func (i *BufferInput) DescriptorInfo() DescriptorInfo { return i.Binding }

func (i *BufferInput) OnConnectOutput(output Output) error {
	if i.InputDelay > 0 && !output.SupportsDelay() {
		return ErrDelayUnsupported
	}
	if i.InputDelay > 0 {
		if o, ok := output.(*BufferOutput); ok && o.IsPersistent {
			return ErrPersistentDelay
		}
	}
	return nil
}

func (i *BufferInput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, Buffer: res.Buffer()})
}

func (i *BufferInput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res == nil {
		return StatusOK
	}
	res.MergeConsumer(i.Stage, i.Access)
	barriers.AddBuffer(gpu.BufferBarrier{
		Buffer:    res.Buffer(),
		SrcStage:  gpu.StageCompute,
		DstStage:  i.Stage,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: i.Access,
	})
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (i *BufferInput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res == nil {
		return StatusOK
	}
	barriers.AddBuffer(gpu.BufferBarrier{
		Buffer:    res.Buffer(),
		SrcStage:  i.Stage,
		DstStage:  gpu.StageCompute,
		SrcAccess: i.Access,
		DstAccess: gpu.AccessShaderWrite,
	})
	return StatusOK
}
