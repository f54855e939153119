package descset

import (
	"github.com/merian-nodes/graph/gpu"
)

// Ring is a node's complete descriptor-set ring: N allocated
// gpu.DescriptorSets, indexed by iteration mod N (§3). The builder
// populates every set's bindings once at build time
// (graph.recordInitialDescriptorWrites, §4.2 step 7); the runtime
// re-flushes a set's bindings only when a bound resource's dirty flag
// says so (§3, "re-emitted only when a connector flags dirty").
type Ring struct {
	Sets []gpu.DescriptorSet
	N    int
}

// NewRing allocates N descriptor sets from layout via the device
// (§4.2 step 7, "allocate N descriptor sets").
func NewRing(device gpu.Device, layout gpu.DescriptorSetLayout, n int) (*Ring, error) {
	sets, err := device.NewDescriptorSets(layout, n)
	if err != nil {
		return nil, err
	}
	return &Ring{Sets: sets, N: n}, nil
}

// At returns the descriptor set bound at iteration i: index i mod N
// (§3, "Set index at iteration i is i mod N").
func (r *Ring) At(iteration uint64) gpu.DescriptorSet {
	return r.Sets[int(iteration)%r.N]
}
