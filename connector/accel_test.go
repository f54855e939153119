package connector

import (
	"testing"

	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/gpu/noop"
	"github.com/merian-nodes/graph/resource"
)

func TestAccelerationStructureInput_OnPreProcessEmitsReadBarrier(t *testing.T) {
	in := &AccelerationStructureInput{InputName: "tlas", Stage: gpu.StageCompute}
	tlas := &noop.AccelerationStructure{}
	res := resource.NewAccelerationStructure(tlas)
	barriers := &Barriers{}

	status := in.OnPreProcess(res, nil, barriers)

	if len(barriers.Accels) != 1 {
		t.Fatalf("OnPreProcess recorded %d accel barriers, want 1", len(barriers.Accels))
	}
	got := barriers.Accels[0]
	if got.Accel != gpu.AccelerationStructure(tlas) {
		t.Fatal("barrier references the wrong acceleration structure")
	}
	if got.SrcStage != gpu.StageAccelStructBuild || got.DstStage != gpu.StageCompute {
		t.Fatalf("barrier stages = %v -> %v, want build -> compute", got.SrcStage, got.DstStage)
	}
	if got.SrcAccess != gpu.AccessAccelStructWrite || got.DstAccess != gpu.AccessAccelStructRead {
		t.Fatalf("barrier access = %v -> %v, want write -> read", got.SrcAccess, got.DstAccess)
	}
	if status&NeedsDescriptorUpdate == 0 {
		t.Fatal("a freshly constructed (dirty) TLAS resource should request a descriptor update on first bind")
	}
}

func TestAccelerationStructureInput_OnPreProcessNilResourceIsNoop(t *testing.T) {
	in := &AccelerationStructureInput{InputName: "tlas", Stage: gpu.StageCompute}
	barriers := &Barriers{}
	if status := in.OnPreProcess(nil, nil, barriers); status != StatusOK {
		t.Fatalf("OnPreProcess(nil) = %v, want StatusOK", status)
	}
	if !barriers.Empty() {
		t.Fatal("OnPreProcess(nil) must not record any barrier")
	}
}
