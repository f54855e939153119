// Package graph implements the Graph Builder and Graph Runtime (§4.2,
// §4.3): the public surface that resolves desired connections into a
// topologically-ordered, resource-allocated, descriptor-scheduled
// pipeline and drives it one iteration at a time.
package graph

import (
	"encoding/json"
	"sync"

	"github.com/merian-nodes/graph/alloc"
	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/internal/thread"
	"github.com/merian-nodes/graph/node"
)

// NodeFactory constructs a Node instance from its serialized config
// (§6 "add_node(id, type_name | factory)").
type NodeFactory func(config json.RawMessage) (node.Node, error)

type connectionKey struct {
	SrcNode, SrcOutput, DstNode, DstInput string
}

type nodeEntry struct {
	id       string
	typeName string
	config   json.RawMessage
	factory  NodeFactory
	instance node.Node

	outputsCache map[string]connector.Output

	disabled bool
	errs     []error
}

// Callbacks are the optional hooks a caller may attach (§6).
type Callbacks struct {
	OnRunStarting       func()
	OnPreSubmit         func()
	OnPostSubmit        func()
	OnRunFinishedTasks  func()
}

// Tunables are the graph's runtime-adjustable knobs (§3, §6).
type Tunables struct {
	RingSize       int
	FPSLimit       float64 // 0 disables the cap
	LowLatencyMode bool
	ProfilerEnable bool
}

// DefaultTunables returns ring_size=2 and no pacing constraints, per
// §3's stated default.
func DefaultTunables() Tunables {
	return Tunables{RingSize: 2}
}

// Graph is the public engine surface (§6).
type Graph struct {
	mu sync.Mutex

	device     gpu.Device
	allocKind  string
	allocDecn  *alloc.Decision
	tunables   Tunables
	callbacks  Callbacks

	nodes       map[string]*nodeEntry
	connections map[connectionKey]struct{}

	dirty bool
	built *buildResult
	rt    *Runtime

	// gpuThread pins every build and Run call to one OS thread, since
	// command pools and queue submission are thread-affine in the
	// backends this engine targets (§5 "Scheduling model": the host
	// side is single-threaded within one run() call).
	gpuThread *thread.Thread

	running bool
}

// New constructs a Graph bound to device, allocating resources via the
// allocator kind registered under allocKind (e.g. "noop"). The graph's
// builds and iterations run on a single dedicated OS thread.
func New(device gpu.Device, allocKind string, tunables Tunables) (*Graph, error) {
	if tunables.RingSize < 1 {
		tunables.RingSize = 1
	}
	decn, err := alloc.New(allocKind, device)
	if err != nil {
		return nil, err
	}
	return &Graph{
		device:      device,
		allocKind:   allocKind,
		allocDecn:   decn,
		tunables:    tunables,
		nodes:       make(map[string]*nodeEntry),
		connections: make(map[connectionKey]struct{}),
		dirty:       true,
		gpuThread:   thread.New(),
	}, nil
}

// Close stops the graph's dedicated OS thread. Safe to call once the
// graph is no longer in use.
func (g *Graph) Close() {
	g.gpuThread.Stop()
}

// SetCallbacks installs the graph's lifecycle callbacks (§6).
func (g *Graph) SetCallbacks(cb Callbacks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = cb
}

// Tunables returns a copy of the graph's current tunables.
func (g *Graph) Tunables() Tunables {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tunables
}

// SetTunables updates the graph's tunables. Changing RingSize marks
// the graph dirty since it affects descriptor-set-ring sizing.
func (g *Graph) SetTunables(t Tunables) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.RingSize < 1 {
		t.RingSize = 1
	}
	if t.RingSize != g.tunables.RingSize {
		g.dirty = true
	}
	g.tunables = t
}

// AddNode registers a node under id, deduplicating by id (§6). Calling
// it again with an existing id is a no-op.
func (g *Graph) AddNode(id, typeName string, config json.RawMessage, factory NodeFactory) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; exists {
		return nil
	}
	g.nodes[id] = &nodeEntry{id: id, typeName: typeName, config: config, factory: factory}
	g.dirty = true
	return nil
}

// RemoveNode removes a node and every connection touching it.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; !exists {
		return
	}
	delete(g.nodes, id)
	for k := range g.connections {
		if k.SrcNode == id || k.DstNode == id {
			delete(g.connections, k)
		}
	}
	g.dirty = true
}

// AddConnection declares a desired connection, idempotently (§6).
func (g *Graph) AddConnection(srcID, srcOutput, dstID, dstInput string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := connectionKey{SrcNode: srcID, SrcOutput: srcOutput, DstNode: dstID, DstInput: dstInput}
	g.connections[key] = struct{}{}
	g.dirty = true
	return nil
}

// RemoveConnection removes a previously desired connection, if present.
func (g *Graph) RemoveConnection(srcID, srcOutput, dstID, dstInput string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := connectionKey{SrcNode: srcID, SrcOutput: srcOutput, DstNode: dstID, DstInput: dstInput}
	if _, ok := g.connections[key]; ok {
		delete(g.connections, key)
		g.dirty = true
	}
}

func (g *Graph) desiredConnections() []connectionKey {
	out := make([]connectionKey, 0, len(g.connections))
	for k := range g.connections {
		out = append(out, k)
	}
	return out
}

// callOnThread runs f on the graph's dedicated OS thread and returns
// its error.
func (g *Graph) callOnThread(f func() error) error {
	result := g.gpuThread.Call(func() any { return f() })
	if result == nil {
		return nil
	}
	return result.(error)
}

// Connect forces a rebuild (§6: "force a rebuild; otherwise implicit
// on next run() when dirty").
func (g *Graph) Connect() error {
	return g.callOnThread(func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.rebuildLocked()
	})
}

// Run drives one iteration of the graph (§6 "run()"), rebuilding first
// if the desired node/connection set has changed since the last
// build. A Run call already in flight (on this goroutine or another)
// makes a concurrent Run call fail fast with ErrAlreadyRunning rather
// than queue behind it on the dedicated OS thread.
func (g *Graph) Run() error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrAlreadyRunning
	}
	g.running = true
	g.mu.Unlock()

	err := g.callOnThread(func() error {
		g.mu.Lock()
		if g.dirty || g.rt == nil {
			if err := g.rebuildLocked(); err != nil {
				g.mu.Unlock()
				return err
			}
		}
		rt := g.rt
		g.mu.Unlock()
		return rt.Run()
	})

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return err
}

// Wait drains every in-flight iteration (§6).
func (g *Graph) Wait() error {
	g.mu.Lock()
	rt := g.rt
	g.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Wait()
}

// Reset drains in-flight work, clears all built state, and forces a
// rebuild on the next Run/Connect (§6).
func (g *Graph) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rt != nil {
		if err := g.rt.Wait(); err != nil {
			return err
		}
	}
	g.built = nil
	g.rt = nil
	g.dirty = true
	return nil
}

// NodeErrors returns the errors currently attached to a node, if any
// (§7).
func (g *Graph) NodeErrors(id string) []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]error, len(entry.errs))
	copy(out, entry.errs)
	return out
}

// Enabled reports whether a node survived the last build.
func (g *Graph) Enabled(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.nodes[id]
	return ok && !entry.disabled
}
