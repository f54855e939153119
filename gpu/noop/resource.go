package noop

import "github.com/merian-nodes/graph/gpu"

// handle is the common shell for every noop resource: a debug name and a
// destroyed flag, satisfying gpu.Resource.
type handle struct {
	name      string
	destroyed bool
}

func (h *handle) NativeHandle() any { return h }
func (h *handle) Destroy()          { h.destroyed = true }

// Buffer is a noop buffer. When created by an allocator it owns a real
// byte slice of the requested size so tests can write/read through it.
type Buffer struct {
	handle
	Data []byte
}

// Image is a noop image/texture.
type Image struct{ handle }

// ImageView is a noop image view. Since gpu.ImageView is an alias of
// gpu.Image, this is the same shape as Image.
type ImageView = Image

// AccelerationStructure is a noop TLAS.
type AccelerationStructure struct{ handle }

// Fence is a noop fence: Wait never blocks, since there is no GPU work
// to wait for. Submit and Wait mark it signalled; Reset clears it.
type Fence struct {
	handle
	signalled bool
}

// Wait returns immediately; a noop fence is always ready.
func (f *Fence) Wait() error { f.signalled = true; return nil }

// Reset un-signals the fence for the next iteration.
func (f *Fence) Reset() { f.signalled = false }

// DescriptorSetLayout is a noop layout, retaining its bindings only for
// diagnostics.
type DescriptorSetLayout struct {
	handle
	Bindings []gpu.BindingInfo
}

// DescriptorSet is a noop descriptor set. Enqueue/Flush record writes in
// memory so tests can assert on what the engine wired up.
type DescriptorSet struct {
	handle
	pending []gpu.DescriptorWrite
	Applied []gpu.DescriptorWrite
}

func (s *DescriptorSet) Enqueue(w gpu.DescriptorWrite) {
	s.pending = append(s.pending, w)
}

func (s *DescriptorSet) Flush() {
	s.Applied = append(s.Applied, s.pending...)
	s.pending = s.pending[:0]
}
