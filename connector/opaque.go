package connector

import (
	"code.hybscloud.com/atomix"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// OpaqueOutput is a CPU-only, host-value output connector (§4.1.1
// "Opaque-host out / in"). It carries no GPU representation and emits
// no barriers; instead it counts how many consumers have read the
// current value and clears it once all of them have, unless the
// output is persistent (in which case the value survives).
type OpaqueOutput struct {
	OutputName     string
	IsPersistent   bool
	DelaySupported bool
	ConsumerCount  int

	readCount atomix.Int32
}

func (o *OpaqueOutput) Name() string          { return o.OutputName }
func (o *OpaqueOutput) Persistent() bool      { return o.IsPersistent }
func (o *OpaqueOutput) SupportsDelay() bool   { return o.DelaySupported }
func (o *OpaqueOutput) DescriptorInfo() DescriptorInfo { return DescriptorInfo{} }

func (o *OpaqueOutput) CreateResource(demand ConsumerDemand, persistent gpu.PersistentAllocator, aliasing gpu.AliasingAllocator, copyIndex, ringSize int) (*resource.Resource, error) {
	return resource.NewOpaque(nil), nil
}

func (o *OpaqueOutput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {}

func (o *OpaqueOutput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	return StatusOK
}

// Set stores value into the current copy, resetting the read counter.
func (o *OpaqueOutput) Set(res *resource.Resource, value any) {
	res.SetOpaque(value)
	o.readCount.Store(0)
}

func (o *OpaqueOutput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if !o.IsPersistent && o.ConsumerCount > 0 && int(o.readCount.Load()) >= o.ConsumerCount {
		res.SetOpaque(nil)
	}
	return StatusOK
}

// OpaqueInput consumes a host value, incrementing the producer's read
// counter on each read so the producer knows when it may clear.
type OpaqueInput struct {
	InputName  string
	InputDelay int
	IsOptional bool
	producer   *OpaqueOutput
}

func (i *OpaqueInput) Name() string                   { return i.InputName }
func (i *OpaqueInput) Delay() int                      { return i.InputDelay }
func (i *OpaqueInput) Optional() bool                  { return i.IsOptional }
func (i *OpaqueInput) DescriptorInfo() DescriptorInfo { return DescriptorInfo{} }

func (i *OpaqueInput) OnConnectOutput(output Output) error {
	o, ok := output.(*OpaqueOutput)
	if !ok {
		return ErrIncompatible
	}
	if i.InputDelay > 0 && !o.SupportsDelay() {
		return ErrDelayUnsupported
	}
	if i.InputDelay > 0 && o.IsPersistent {
		return ErrPersistentDelay
	}
	i.producer = o
	o.ConsumerCount++
	return nil
}

func (i *OpaqueInput) EmitDescriptorUpdate(binding uint32, res *resource.Resource, set gpu.DescriptorSet) {}

func (i *OpaqueInput) OnPreProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	if res != nil && i.producer != nil {
		i.producer.readCount.Add(1)
	}
	return StatusOK
}

func (i *OpaqueInput) OnPostProcess(res *resource.Resource, cmd gpu.CommandBuffer, barriers *Barriers) Status {
	return StatusOK
}
