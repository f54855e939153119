package thread

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestThread_CallVoid(t *testing.T) {
	th := New()
	defer th.Stop()

	var called atomic.Bool
	th.CallVoid(func() {
		called.Store(true)
	})

	if !called.Load() {
		t.Error("CallVoid did not execute function")
	}
}

func TestThread_Call(t *testing.T) {
	th := New()
	defer th.Stop()

	result := th.Call(func() any {
		return 42
	})

	if result != 42 {
		t.Errorf("Call returned %v, want 42", result)
	}
}

func TestThread_CallAsync(t *testing.T) {
	th := New()
	defer th.Stop()

	var called atomic.Bool
	th.CallAsync(func() {
		called.Store(true)
	})

	time.Sleep(10 * time.Millisecond)

	if !called.Load() {
		t.Error("CallAsync did not execute function")
	}
}

func TestThread_Stop(t *testing.T) {
	th := New()

	if !th.IsRunning() {
		t.Error("Thread should be running after New()")
	}

	th.Stop()

	if th.IsRunning() {
		t.Error("Thread should not be running after Stop()")
	}

	// Calling methods on a stopped thread should not panic.
	th.CallVoid(func() {})
	th.Call(func() any { return nil })
	th.CallAsync(func() {})
}
