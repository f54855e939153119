package connector

import (
	"fmt"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// AccelerationStructureOutput is a TLAS output connector (§4.1.1 "TLAS
// out / in"). It emits no barrier itself: the read barrier in the
// consumer's pipeline stage comes from AccelerationStructureInput's
// pre-process, and there is no post-barrier since acceleration
// structures are read-only to consumers.
type AccelerationStructureOutput struct {
	OutputName string
	SizeBytes  uint64
	Binding    DescriptorInfo
}

func (o *AccelerationStructureOutput) Name() string          { return o.OutputName }
func (o *AccelerationStructureOutput) Persistent() bool      { return true }
func (o *AccelerationStructureOutput) SupportsDelay() bool   { return false }
func (o *AccelerationStructureOutput) DescriptorInfo() DescriptorInfo { return o.Binding }

func (o *AccelerationStructureOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	tlas, err := persistent.CreateAccelerationStructure(o.SizeBytes, fmt.Sprintf("%s#%d", o.OutputName, copyIndex))
	if err != nil {
		return nil, err
	}
	return resource.NewAccelerationStructure(tlas), nil
}

func (o *AccelerationStructureOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, AccelStruct: res.AccelerationStructure()})
}

func (o *AccelerationStructureOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (o *AccelerationStructureOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	return StatusOK
}

// AccelerationStructureInput consumes a TLAS, declaring a read barrier
// in its own pipeline stage (typically ray tracing or compute).
type AccelerationStructureInput struct {
	InputName  string
	IsOptional bool
	Binding    DescriptorInfo
	Stage      gpu.PipelineStage
}

func (i *AccelerationStructureInput) Name() string                   { return i.InputName }
func (i *AccelerationStructureInput) Delay() int                      { return 0 }
func (i *AccelerationStructureInput) Optional() bool                  { return i.IsOptional }
func (i *AccelerationStructureInput) DescriptorInfo() DescriptorInfo { return i.Binding }

func (i *AccelerationStructureInput) OnConnectOutput(output Output) error {
	return nil
}

func (i *AccelerationStructureInput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {
	set.Enqueue(gpu.DescriptorWrite{Binding: binding, AccelStruct: res.AccelerationStructure()})
}

func (i *AccelerationStructureInput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res == nil {
		return StatusOK
	}
	res.MergeConsumer(i.Stage, gpu.AccessAccelStructRead)
	barriers.AddAccel(gpu.AccelBarrier{
		Accel:     res.AccelerationStructure(),
		SrcStage:  gpu.StageAccelStructBuild,
		DstStage:  i.Stage,
		SrcAccess: gpu.AccessAccelStructWrite,
		DstAccess: gpu.AccessAccelStructRead,
	})
	status := StatusOK
	if res.ConsumeDirty() {
		status |= NeedsDescriptorUpdate
	}
	return status
}

func (i *AccelerationStructureInput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	return StatusOK
}
