package gpu

import "testing"

type stubAllocators struct{}

func TestRegisterAllocatorFactory_RoundTrips(t *testing.T) {
	RegisterAllocatorFactory("registry-test-kind", func(Device) (PersistentAllocator, AliasingAllocator, error) {
		return nil, nil, nil
	})

	found := false
	for _, k := range AvailableAllocatorKinds() {
		if k == "registry-test-kind" {
			found = true
		}
	}
	if !found {
		t.Fatal("AvailableAllocatorKinds should include a just-registered kind")
	}

	if _, _, err := NewAllocators("registry-test-kind", nil); err != nil {
		t.Fatalf("NewAllocators failed for a registered kind: %v", err)
	}
}

func TestNewAllocators_UnregisteredKindFails(t *testing.T) {
	if _, _, err := NewAllocators("does-not-exist-kind", nil); err != ErrAllocatorNotFound {
		t.Fatalf("NewAllocators error = %v, want ErrAllocatorNotFound", err)
	}
}
