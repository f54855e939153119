package noop

import (
	"testing"

	"github.com/merian-nodes/graph/gpu"
)

func TestPersistentAllocator_NeverReuses(t *testing.T) {
	a := NewPersistentAllocator()
	img1, err := a.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, DebugName: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	img2, err := a.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, DebugName: "p2"})
	if err != nil {
		t.Fatal(err)
	}
	if img1 == img2 {
		t.Fatal("persistent allocator must never return the same handle twice")
	}
}

// TestAliasingAllocator_RetiredRegionIsReused demonstrates the §8
// scenario-6 "aliasing correctness" property: two disjoint-lifetime
// resources observably share the same backing offset once the first
// is retired.
func TestAliasingAllocator_RetiredRegionIsReused(t *testing.T) {
	a := NewAliasingAllocator()

	p, err := a.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, DebugName: "P"})
	if err != nil {
		t.Fatal(err)
	}
	statsBefore := a.Stats()
	var pOffset uint64
	for _, r := range statsBefore.Regions {
		if r.Name == "P" {
			pOffset = r.Offset
		}
	}

	a.Retire(p)

	q, err := a.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, DebugName: "Q"})
	if err != nil {
		t.Fatal(err)
	}
	if q == p {
		t.Fatal("Q should be a distinct handle from the retired P")
	}

	statsAfter := a.Stats()
	var qOffset uint64
	found := false
	for _, r := range statsAfter.Regions {
		if r.Name == "Q" {
			qOffset = r.Offset
			found = true
		}
	}
	if !found {
		t.Fatal("Q's region not found in Stats()")
	}
	if qOffset != pOffset {
		t.Fatalf("Q's offset = %d, want it to alias P's retired offset %d", qOffset, pOffset)
	}
}

func TestAliasingAllocator_GrowsWhenNoRetiredRegionFits(t *testing.T) {
	a := NewAliasingAllocator()
	if _, err := a.CreateBuffer(gpu.BufferDescriptor{Size: 64, DebugName: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateBuffer(gpu.BufferDescriptor{Size: 64, DebugName: "b"}); err != nil {
		t.Fatal(err)
	}
	stats := a.Stats()
	if stats.TotalBytes != 128 {
		t.Fatalf("TotalBytes = %d, want 128 (no retirement happened, arena must grow)", stats.TotalBytes)
	}
}
