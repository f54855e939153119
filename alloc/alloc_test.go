package alloc

import (
	"testing"

	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu/noop"
)

func TestCreateRing_AllocatesMaxDelayPlusOneCopies(t *testing.T) {
	device := noop.NewDevice()
	decn, err := New("noop", device)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out := &connector.ImageOutput{OutputName: "out", Width: 4, Height: 4}
	ring, err := decn.CreateRing(out, connector.ConsumerDemand{MaxDelay: 2}, 2)
	if err != nil {
		t.Fatalf("CreateRing failed: %v", err)
	}
	if ring.Len() != 3 {
		t.Fatalf("ring length = %d, want 3 (max_delay+1)", ring.Len())
	}
}

func TestNew_UnknownKindFails(t *testing.T) {
	device := noop.NewDevice()
	if _, err := New("does-not-exist", device); err == nil {
		t.Fatal("New should fail for an unregistered allocator kind")
	}
}

func TestRetire_UnwrapsResourceHandles(t *testing.T) {
	device := noop.NewDevice()
	decn, err := New("noop", device)
	if err != nil {
		t.Fatal(err)
	}

	out := &connector.ImageOutput{OutputName: "out", Width: 4, Height: 4}
	ring, err := decn.CreateRing(out, connector.ConsumerDemand{}, 2)
	if err != nil {
		t.Fatal(err)
	}

	// Retire must not panic on a resource with a real handle.
	decn.Retire(ring.Current(0))
}
