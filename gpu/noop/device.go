package noop

import "github.com/merian-nodes/graph/gpu"

// Device is a fully in-memory gpu.Device. It never blocks and never
// fails, which makes it the default backend for unit tests and for
// embedders validating graph topology before a real device exists.
type Device struct {
	dummyBuffer Buffer
	dummyImage  ImageView
}

// NewDevice constructs a ready-to-use noop device. The matching
// persistent and aliasing allocators are registered under the "noop"
// allocator kind by this package's init function.
func NewDevice() *Device {
	return &Device{
		dummyBuffer: Buffer{handle: handle{name: "dummy-buffer"}, Data: nil},
		dummyImage:  ImageView{handle{name: "dummy-storage-image"}},
	}
}

func (d *Device) NewCommandPool() (gpu.CommandPool, error) {
	return &CommandPool{}, nil
}

func (d *Device) NewFence() (gpu.Fence, error) {
	return &Fence{}, nil
}

func (d *Device) Submit(cmd gpu.CommandBuffer, fence gpu.Fence) error {
	if fence != nil {
		fence.(*Fence).signalled = true
	}
	return nil
}

func (d *Device) NewDescriptorSetLayout(bindings []gpu.BindingInfo) (gpu.DescriptorSetLayout, error) {
	cp := make([]gpu.BindingInfo, len(bindings))
	copy(cp, bindings)
	return &DescriptorSetLayout{Bindings: cp}, nil
}

func (d *Device) NewDescriptorSets(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	sets := make([]gpu.DescriptorSet, count)
	for i := range sets {
		sets[i] = &DescriptorSet{}
	}
	return sets, nil
}

func (d *Device) DummyBuffer() gpu.Buffer { return &d.dummyBuffer }

func (d *Device) DummyStorageImageView() gpu.ImageView { return &d.dummyImage }

func init() {
	gpu.RegisterAllocatorFactory("noop", func(gpu.Device) (gpu.PersistentAllocator, gpu.AliasingAllocator, error) {
		return NewPersistentAllocator(), NewAliasingAllocator(), nil
	})
}
