package noop

import "github.com/merian-nodes/graph/gpu"

// CommandBuffer is a noop recording target: it just remembers what was
// asked of it so tests can assert on barrier/debug-label sequencing.
type CommandBuffer struct {
	handle
	ImageBarriers  [][]gpu.ImageBarrier
	BufferBarriers [][]gpu.BufferBarrier
	AccelBarriers  [][]gpu.AccelBarrier
	BoundSets      []gpu.DescriptorSet
	Labels         []string
}

func (c *CommandBuffer) PipelineBarrier(images []gpu.ImageBarrier, buffers []gpu.BufferBarrier, accels []gpu.AccelBarrier) {
	if len(images) == 0 && len(buffers) == 0 && len(accels) == 0 {
		return
	}
	c.ImageBarriers = append(c.ImageBarriers, images)
	c.BufferBarriers = append(c.BufferBarriers, buffers)
	c.AccelBarriers = append(c.AccelBarriers, accels)
}

func (c *CommandBuffer) BindDescriptorSet(set gpu.DescriptorSet) {
	c.BoundSets = append(c.BoundSets, set)
}

func (c *CommandBuffer) PushDebugLabel(name string) {
	c.Labels = append(c.Labels, name)
}

func (c *CommandBuffer) PopDebugLabel() {}

// CommandPool hands out a small pool of reusable CommandBuffers.
type CommandPool struct {
	free []*CommandBuffer
	used []*CommandBuffer
}

func (p *CommandPool) Acquire() (gpu.CommandBuffer, error) {
	var cb *CommandBuffer
	if n := len(p.free); n > 0 {
		cb = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		cb = &CommandBuffer{}
	}
	p.used = append(p.used, cb)
	return cb, nil
}

func (p *CommandPool) Reset() {
	for _, cb := range p.used {
		cb.ImageBarriers = nil
		cb.BufferBarriers = nil
		cb.AccelBarriers = nil
		cb.BoundSets = nil
		cb.Labels = nil
		p.free = append(p.free, cb)
	}
	p.used = p.used[:0]
}

func (p *CommandPool) Destroy() {
	p.free = nil
	p.used = nil
}
