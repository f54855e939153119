// Package thread pins the graph's iteration loop to a single OS
// thread. The host side of a run() call is single-threaded by
// contract (§5 "Scheduling model"): the builder and runtime never
// traverse the graph concurrently, and a GPU device's command pools
// and queue submission are commonly thread-affine in the backends this
// package targets. A Graph that wants that guarantee runs its Run
// calls through a Thread instead of whatever goroutine called it.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread represents a dedicated OS thread for specific operations.
// All function calls are serialized and executed on the same thread.
type Thread struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates a new thread and starts it. The thread is locked to an
// OS thread for its lifetime (runtime.LockOSThread), so every Call,
// CallVoid, and CallAsync runs on the same underlying OS thread.
func New() *Thread {
	t := &Thread{
		funcs: make(chan func(), 16), // Buffered for async calls
		done:  make(chan struct{}),
	}
	t.running.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		// Lock this goroutine to an OS thread.
		// Critical for Vulkan/OpenGL context operations.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		wg.Done() // Signal that thread is ready

		for {
			select {
			case f := <-t.funcs:
				f()
			case <-t.done:
				return
			}
		}
	}()

	wg.Wait() // Wait for thread to be ready
	return t
}

// Call executes f on the thread and waits for completion.
// Returns the result from f.
func (t *Thread) Call(f func() any) any {
	if !t.running.Load() {
		return nil
	}

	done := make(chan any, 1)
	t.funcs <- func() {
		done <- f()
	}
	return <-done
}

// CallVoid executes f on the thread and waits for completion.
// Use when no return value is needed.
func (t *Thread) CallVoid(f func()) {
	if !t.running.Load() {
		return
	}

	done := make(chan struct{})
	t.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// CallAsync executes f on the thread without waiting.
// Use for fire-and-forget operations.
func (t *Thread) CallAsync(f func()) {
	if !t.running.Load() {
		return
	}

	select {
	case t.funcs <- f:
	default:
		// Channel full - execute synchronously to avoid deadlock
		t.CallVoid(f)
	}
}

// Stop stops the thread.
func (t *Thread) Stop() {
	if t.running.Swap(false) {
		close(t.done)
	}
}

// IsRunning returns true if the thread is running.
func (t *Thread) IsRunning() bool {
	return t.running.Load()
}
