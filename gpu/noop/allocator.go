package noop

import (
	"sort"
	"sync"

	"github.com/merian-nodes/graph/gpu"
)

// PersistentAllocator is a noop allocator that never reuses memory: every
// Create call gets its own, ever-growing offset. This is the invariant
// §3/§4.1 require of persistent outputs.
type PersistentAllocator struct {
	mu   sync.Mutex
	next uint64
}

func NewPersistentAllocator() *PersistentAllocator { return &PersistentAllocator{} }

func (a *PersistentAllocator) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next += sizeOfImage(desc)
	return &Image{handle{name: desc.DebugName}}, nil
}

func (a *PersistentAllocator) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next += desc.Size
	buf := &Buffer{handle: handle{name: desc.DebugName}}
	buf.Data = make([]byte, desc.Size)
	return buf, nil
}

func (a *PersistentAllocator) CreateAccelerationStructure(sizeBytes uint64, debugName string) (gpu.AccelerationStructure, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next += sizeBytes
	return &AccelerationStructure{handle{name: debugName}}, nil
}

// region is one live span of the aliasing arena, grounded on the
// ArenaRegion bookkeeping of a streaming compute runtime's bump
// allocator: a name, an offset and a size, reused once retired.
type region struct {
	name   string
	offset uint64
	size   uint64
	owner  gpu.Resource
	live   bool
}

// AliasingAllocator is a bump allocator over a single growable arena.
// Regions are handed out best-fit from the retired list (the smallest
// retired region that is big enough); only when none are big enough
// does the arena grow. This mirrors the descriptor
// pool growth strategy of a Vulkan descriptor allocator (grow-on-demand)
// applied to byte ranges instead of descriptor counts.
type AliasingAllocator struct {
	mu      sync.Mutex
	regions []*region
	total   uint64
}

func NewAliasingAllocator() *AliasingAllocator { return &AliasingAllocator{} }

func (a *AliasingAllocator) alloc(size uint64, name string) (offset uint64, idx int) {
	// Best-fit: the smallest retired region big enough to hold size.
	best := -1
	for i, r := range a.regions {
		if !r.live && r.size >= size {
			if best == -1 || r.size < a.regions[best].size {
				best = i
			}
		}
	}
	if best >= 0 {
		r := a.regions[best]
		r.live = true
		r.name = name
		return r.offset, best
	}

	off := a.total
	a.total += size
	a.regions = append(a.regions, &region{name: name, offset: off, size: size, live: true})
	return off, len(a.regions) - 1
}

func (a *AliasingAllocator) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, idx := a.alloc(sizeOfImage(desc), desc.DebugName)
	img := &Image{handle{name: desc.DebugName}}
	a.regions[idx].owner = img
	_ = off
	return img, nil
}

func (a *AliasingAllocator) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, idx := a.alloc(desc.Size, desc.DebugName)
	buf := &Buffer{handle: handle{name: desc.DebugName}, Data: make([]byte, desc.Size)}
	a.regions[idx].owner = buf
	_ = off
	return buf, nil
}

func (a *AliasingAllocator) Retire(resource gpu.Resource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.regions {
		if r.owner == resource {
			r.live = false
			return
		}
	}
}

func (a *AliasingAllocator) Stats() gpu.AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := gpu.AllocatorStats{TotalBytes: a.total}
	for _, r := range a.regions {
		stats.Regions = append(stats.Regions, gpu.AllocatorRegion{
			Name: r.name, Offset: r.offset, Size: r.size,
		})
	}
	sort.Slice(stats.Regions, func(i, j int) bool { return stats.Regions[i].Offset < stats.Regions[j].Offset })
	return stats
}

func sizeOfImage(desc gpu.ImageDescriptor) uint64 {
	w, h, d := uint64(desc.Width), uint64(desc.Height), uint64(desc.Depth)
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	if d == 0 {
		d = 1
	}
	// Four bytes per texel is a close enough stand-in across formats for
	// arena sizing purposes; the noop backend never touches real pixels.
	return w * h * d * 4
}
