// Package descset implements the Descriptor Engine (§3 "Descriptor set
// ring", §4.2 step 7): per-node layout construction and
// N = lcm(cardinalities) sizing rounded up to ring_size. The
// (resource, copy-index) binding for a given set index is not cached
// here — it is cheap modular arithmetic (descset.Ring.At, resource.Ring.At/
// Current), computed both by the builder's initial-write pass
// (graph.recordInitialDescriptorWrites) and by the runtime on every
// iteration — and batched into one descriptor flush per node per
// iteration via gpu.DescriptorSet's Enqueue/Flush.
package descset

import (
	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
)

// BuiltLayout is the result of BuildLayout: the backend layout handle
// plus the binding index assigned to each named, GPU-visible input and
// output connector, keyed separately since an input and an output may
// legally share a name.
type BuiltLayout struct {
	GPULayout      gpu.DescriptorSetLayout
	InputBindings  map[string]uint32
	OutputBindings map[string]uint32
}

// BuildLayout concatenates input then output BindingInfos in
// declaration order and asks the device to build a layout from them.
// Connectors with no GPU-visible representation contribute no binding
// (§4.1 "descriptor_info": present iff GPU-visible).
func BuildLayout(device gpu.Device, inputs []connector.Input, outputs []connector.Output) (*BuiltLayout, error) {
	var infos []gpu.BindingInfo
	var idx uint32
	inputBindings := make(map[string]uint32)
	outputBindings := make(map[string]uint32)

	for _, in := range inputs {
		info := in.DescriptorInfo()
		if !info.Present {
			continue
		}
		infos = append(infos, gpu.BindingInfo{Type: info.Type, Count: info.Count, Stages: info.Stages})
		inputBindings[in.Name()] = idx
		idx++
	}
	for _, out := range outputs {
		info := out.DescriptorInfo()
		if !info.Present {
			continue
		}
		infos = append(infos, gpu.BindingInfo{Type: info.Type, Count: info.Count, Stages: info.Stages})
		outputBindings[out.Name()] = idx
		idx++
	}

	layout, err := device.NewDescriptorSetLayout(infos)
	if err != nil {
		return nil, err
	}
	return &BuiltLayout{GPULayout: layout, InputBindings: inputBindings, OutputBindings: outputBindings}, nil
}

// Size computes N = max(lcm(cardinalities), ring_size), rounded up to
// a multiple of ring_size (§3, §9 "Descriptor set ring sizing").
func Size(cardinalities []int, ringSize int) int {
	if ringSize < 1 {
		ringSize = 1
	}
	l := 1
	for _, c := range cardinalities {
		if c < 1 {
			c = 1
		}
		l = lcm(l, c)
	}
	if l < ringSize {
		l = ringSize
	}
	if rem := l % ringSize; rem != 0 {
		l += ringSize - rem
	}
	return l
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
