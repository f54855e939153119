// Package alloc decides, for each surviving output in a build, whether
// its resource copies come from the persistent or the aliasing
// allocator (§4, "Resource Allocator"; §4.2 step 6).
package alloc

import (
	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// Decision holds the allocator pair a build session uses. Persistent
// outputs always go through Persistent; everything else goes through
// Aliasing so the builder's proven-disjoint live ranges can share
// memory.
type Decision struct {
	Persistent gpu.PersistentAllocator
	Aliasing   gpu.AliasingAllocator
}

// New builds a Decision from a registered allocator kind and device,
// via gpu.NewAllocators (§4.2 step 6 entry point).
func New(kind string, device gpu.Device) (*Decision, error) {
	persistent, aliasing, err := gpu.NewAllocators(kind, device)
	if err != nil {
		return nil, err
	}
	return &Decision{Persistent: persistent, Aliasing: aliasing}, nil
}

// CreateRing allocates max_delay+1 resource copies for one output,
// calling its connector's CreateResource once per copy (§4.2 step 6,
// §3 "Per-output resource ring").
func (d *Decision) CreateRing(output connector.Output, demand connector.ConsumerDemand, ringSize int) (*resource.Ring, error) {
	count := demand.MaxDelay + 1
	if count < 1 {
		count = 1
	}
	copies := make([]*resource.Resource, count)
	for i := 0; i < count; i++ {
		res, err := output.CreateResource(demand, d.Persistent, d.Aliasing, i, ringSize)
		if err != nil {
			return nil, err
		}
		copies[i] = res
	}
	return resource.NewRing(copies), nil
}

// Retire notifies the aliasing allocator that res's live range has
// ended, proven by the builder from the topological order, so a later
// disjoint-lifetime allocation may reuse its memory (§5 "Shared
// resources", §8 scenario 6).
func (d *Decision) Retire(res *resource.Resource) {
	for _, r := range res.AllHandles() {
		if r == nil {
			continue
		}
		d.Aliasing.Retire(r)
	}
}
