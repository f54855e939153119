package connector

import (
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/resource"
)

// Dummy fills an unconnected optional array slot with the device's
// placeholder resources (§4.1.2: "zero-sized buffer, 4x4 magenta
// image").
func Dummy(device gpu.Device, kind resource.Kind) *resource.Resource {
	switch kind {
	case resource.KindBuffer, resource.KindBufferArray:
		return resource.NewBuffer(device.DummyBuffer(), gpu.StageNone, gpu.AccessNone)
	default:
		return resource.NewImage(device.DummyStorageImageView(), gpu.StageNone, gpu.AccessNone)
	}
}
