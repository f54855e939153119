package graph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/gpu/noop"
	"github.com/merian-nodes/graph/node"
)

// sourceNode produces a single managed image output every iteration
// and counts how many times Process runs.
type sourceNode struct {
	processed int
}

func (n *sourceNode) DescribeInputs() []connector.Input { return nil }
func (n *sourceNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *sourceNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *sourceNode) PreProcess(node.IO) node.Status        { return node.StatusOK }
func (n *sourceNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	n.processed++
	return nil
}
func (n *sourceNode) Properties(any) error { return nil }

// sinkNode consumes "in" and records how many iterations observed a
// bound resource.
type sinkNode struct {
	seen []struct{}
}

func (n *sinkNode) DescribeInputs() []connector.Input {
	return []connector.Input{&connector.ImageInput{
		InputName: "in",
		Binding:   connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
		Stage:     gpu.StageCompute, Access: gpu.AccessShaderRead,
	}}
}
func (n *sinkNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output { return nil }
func (n *sinkNode) OnConnected(node.IOLayout) node.Status                             { return node.StatusOK }
func (n *sinkNode) PreProcess(node.IO) node.Status                                    { return node.StatusOK }
func (n *sinkNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	if io.Inputs["in"] == nil {
		return nil
	}
	n.seen = append(n.seen, struct{}{})
	return nil
}
func (n *sinkNode) Properties(any) error { return nil }

func buildSourceSinkGraph(t *testing.T) (*Graph, *sourceNode, *sinkNode) {
	t.Helper()
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(g.Close)

	src := &sourceNode{}
	sink := &sinkNode{}

	if err := g.AddNode("src", "source", nil, func(json.RawMessage) (node.Node, error) { return src, nil }); err != nil {
		t.Fatalf("AddNode(src): %v", err)
	}
	if err := g.AddNode("sink", "sink", nil, func(json.RawMessage) (node.Node, error) { return sink, nil }); err != nil {
		t.Fatalf("AddNode(sink): %v", err)
	}
	if err := g.AddConnection("src", "out", "sink", "in"); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	return g, src, sink
}

func TestGraph_ConnectBuildsTopologicalOrder(t *testing.T) {
	g, _, _ := buildSourceSinkGraph(t)
	if err := g.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !g.Enabled("src") || !g.Enabled("sink") {
		t.Fatal("both nodes should survive the build")
	}
}

func TestGraph_RunDrivesBothNodes(t *testing.T) {
	g, src, sink := buildSourceSinkGraph(t)

	for i := 0; i < 3; i++ {
		if err := g.Run(); err != nil {
			t.Fatalf("Run() iteration %d: %v", i, err)
		}
	}

	if src.processed != 3 {
		t.Fatalf("source processed %d times, want 3", src.processed)
	}
	if len(sink.seen) != 3 {
		t.Fatalf("sink observed %d resources, want 3", len(sink.seen))
	}
}

func TestGraph_MissingRequiredInputDisablesConsumer(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	sink := &sinkNode{}
	if err := g.AddNode("sink", "sink", nil, func(json.RawMessage) (node.Node, error) { return sink, nil }); err != nil {
		t.Fatal(err)
	}
	// No producer for "sink"'s required "in" input.
	if err := g.Connect(); err != nil {
		t.Fatalf("Connect should not hard-fail on a structural error: %v", err)
	}
	if g.Enabled("sink") {
		t.Fatal("sink should be disabled: its required input has no producer")
	}
	errs := g.NodeErrors("sink")
	if len(errs) == 0 {
		t.Fatal("expected at least one NodeError attached to sink")
	}
}

func TestGraph_StructuralHashStableWhenStructureUnchanged(t *testing.T) {
	g, _, _ := buildSourceSinkGraph(t)
	if err := g.Connect(); err != nil {
		t.Fatal(err)
	}
	h1 := g.StructuralHash()

	// Reading the hash again with no change in between must give the
	// same value.
	h2 := g.StructuralHash()
	if h1 != h2 {
		t.Fatal("StructuralHash should be stable when the node/connection set is unchanged")
	}

	if err := g.AddConnection("src", "out", "sink", "in"); err != nil {
		t.Fatal(err)
	}
	h3 := g.StructuralHash()
	if h1 != h3 {
		t.Fatal("StructuralHash should be unaffected by re-adding an already-present connection")
	}
}

func TestGraph_DumpLoadRoundTrip(t *testing.T) {
	g, _, _ := buildSourceSinkGraph(t)
	doc := g.Dump()

	if len(doc.Nodes) != 2 || len(doc.Connections) != 1 {
		t.Fatalf("Dump() = %d nodes, %d connections; want 2, 1", len(doc.Nodes), len(doc.Connections))
	}

	device := noop.NewDevice()
	g2, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g2.Close()

	factories := map[string]NodeFactory{
		"source": func(json.RawMessage) (node.Node, error) { return &sourceNode{}, nil },
		"sink":   func(json.RawMessage) (node.Node, error) { return &sinkNode{}, nil },
	}
	if err := Load(g2, doc, factories); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !g2.Enabled("src") || !g2.Enabled("sink") {
		t.Fatal("both nodes should survive the build after Load")
	}
	if g.StructuralHash() != g2.StructuralHash() {
		t.Fatal("a graph loaded from another's Dump should have the same structural hash")
	}
}

// TestGraph_InitialDescriptorWritesRecordedAtBuildTime pins down the fix for
// the core descriptor-engine bug: every descriptor set in a node's ring must
// already hold its binding write once Connect returns, before any Run call.
func TestGraph_InitialDescriptorWritesRecordedAtBuildTime(t *testing.T) {
	g, _, _ := buildSourceSinkGraph(t)
	if err := g.Connect(); err != nil {
		t.Fatal(err)
	}

	bn := g.built.nodes["sink"]
	if bn == nil {
		t.Fatal("sink missing from built result")
	}
	if len(bn.descRing.Sets) == 0 {
		t.Fatal("sink's descriptor ring has no sets")
	}
	for i, set := range bn.descRing.Sets {
		ds, ok := set.(*noop.DescriptorSet)
		if !ok {
			t.Fatalf("set %d: not a *noop.DescriptorSet", i)
		}
		if len(ds.Applied) == 0 {
			t.Fatalf("descriptor set %d never received a write at build time; consumers would bind an empty set on iteration 0", i)
		}
	}
}

// relayNode consumes "in" and republishes a same-shaped managed image as
// "out", giving a three- or four-stage chain to exercise fan-out, delay, and
// aliasing scenarios.
type relayNode struct{}

func (n *relayNode) DescribeInputs() []connector.Input {
	return []connector.Input{&connector.ImageInput{
		InputName: "in",
		Binding:   connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
		Stage:     gpu.StageCompute, Access: gpu.AccessShaderRead,
	}}
}
func (n *relayNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *relayNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *relayNode) PreProcess(node.IO) node.Status        { return node.StatusOK }
func (n *relayNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	return nil
}
func (n *relayNode) Properties(any) error { return nil }

// idleOutputNode has a single unconsumed managed-image output, used to
// observe whether a later allocation reuses a retired transient's memory.
type idleOutputNode struct{}

func (n *idleOutputNode) DescribeInputs() []connector.Input { return nil }
func (n *idleOutputNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *idleOutputNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *idleOutputNode) PreProcess(node.IO) node.Status        { return node.StatusOK }
func (n *idleOutputNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	return nil
}
func (n *idleOutputNode) Properties(any) error { return nil }

// TestGraph_AliasingReusesRetiredTransientOutput is §8 scenario 6 exercised
// through the graph: a -> b -> c is a chain where a's output has exactly one
// delay-0 consumer (b), so the builder must retire a's memory once b is
// reached, letting d's same-sized, unrelated output reuse it instead of
// growing the arena.
func TestGraph_AliasingReusesRetiredTransientOutput(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	a, b, c, d := &sourceNode{}, &relayNode{}, &sinkNode{}, &idleOutputNode{}
	if err := g.AddNode("a", "source", nil, func(json.RawMessage) (node.Node, error) { return a, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("b", "relay", nil, func(json.RawMessage) (node.Node, error) { return b, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("c", "sink", nil, func(json.RawMessage) (node.Node, error) { return c, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("d", "idle", nil, func(json.RawMessage) (node.Node, error) { return d, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("a", "out", "b", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("b", "out", "c", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(); err != nil {
		t.Fatal(err)
	}
	if !g.Enabled("a") || !g.Enabled("b") || !g.Enabled("c") || !g.Enabled("d") {
		t.Fatal("all four nodes should survive the build")
	}

	aliasing, ok := g.allocDecn.Aliasing.(*noop.AliasingAllocator)
	if !ok {
		t.Fatalf("expected *noop.AliasingAllocator, got %T", g.allocDecn.Aliasing)
	}
	stats := aliasing.Stats()

	const imageBytes = 4 * 4 * 4 // 4x4, 4 bytes/texel, per sizeOfImage
	if len(stats.Regions) != 2 {
		t.Fatalf("arena has %d regions, want 2 (a/d sharing one, b using the other); got %+v", len(stats.Regions), stats.Regions)
	}
	if stats.TotalBytes != 2*imageBytes {
		t.Fatalf("arena grew to %d bytes, want %d (d's output reusing a's retired region)", stats.TotalBytes, 2*imageBytes)
	}
}

// delayableSourceNode is like sourceNode but its output allows delayed
// consumers, for fan-out-with-mixed-delays coverage.
type delayableSourceNode struct{ processed int }

func (n *delayableSourceNode) DescribeInputs() []connector.Input { return nil }
func (n *delayableSourceNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4, DelaySupported: true,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *delayableSourceNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *delayableSourceNode) PreProcess(node.IO) node.Status        { return node.StatusOK }
func (n *delayableSourceNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	n.processed++
	return nil
}
func (n *delayableSourceNode) Properties(any) error { return nil }

// delayedSinkNode reads its producer's output one iteration late.
type delayedSinkNode struct{ seen []bool }

func (n *delayedSinkNode) DescribeInputs() []connector.Input {
	return []connector.Input{&connector.ImageInput{
		InputName: "in", InputDelay: 1, IsOptional: true,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
		Stage:   gpu.StageCompute, Access: gpu.AccessShaderRead,
	}}
}
func (n *delayedSinkNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output { return nil }
func (n *delayedSinkNode) OnConnected(node.IOLayout) node.Status                             { return node.StatusOK }
func (n *delayedSinkNode) PreProcess(node.IO) node.Status                                    { return node.StatusOK }
func (n *delayedSinkNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	n.seen = append(n.seen, io.Inputs["in"] != nil)
	return nil
}
func (n *delayedSinkNode) Properties(any) error { return nil }

// TestGraph_FanOutWithMixedDelays is §8 scenario 4: one producer feeding an
// immediate (delay 0) and a delayed (delay 1) consumer must size the output
// ring to the maximum requested delay and keep both consumers fed.
func TestGraph_FanOutWithMixedDelays(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	src := &delayableSourceNode{}
	immediate := &sinkNode{}
	delayed := &delayedSinkNode{}

	if err := g.AddNode("src", "source", nil, func(json.RawMessage) (node.Node, error) { return src, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("immediate", "sink", nil, func(json.RawMessage) (node.Node, error) { return immediate, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("delayed", "delayed-sink", nil, func(json.RawMessage) (node.Node, error) { return delayed, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("src", "out", "immediate", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("src", "out", "delayed", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := g.Run(); err != nil {
			t.Fatalf("Run() iteration %d: %v", i, err)
		}
	}

	if src.processed != 3 {
		t.Fatalf("source processed %d times, want 3", src.processed)
	}
	if len(immediate.seen) != 3 {
		t.Fatalf("immediate sink observed %d resources, want 3", len(immediate.seen))
	}
	if len(delayed.seen) != 3 {
		t.Fatalf("delayed sink ran %d times, want 3", len(delayed.seen))
	}

	ring := g.built.outputRings["src"]["out"]
	if ring == nil {
		t.Fatal("src's output ring missing from build result")
	}
	if ring.Len() != 2 {
		t.Fatalf("ring length = %d, want 2 (max delay 1 across both consumers, + 1)", ring.Len())
	}
}

// feedbackNode reads its own previous output through a delay-1 self-edge
// (§8 scenario 2). Self-edges with delay 0 are rejected as structural
// errors, but delay > 0 feedback must be preserved.
type feedbackNode struct {
	iterations int
}

func (n *feedbackNode) DescribeInputs() []connector.Input {
	return []connector.Input{&connector.ImageInput{
		InputName: "prev", InputDelay: 1, IsOptional: true,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
		Stage:   gpu.StageCompute, Access: gpu.AccessShaderRead,
	}}
}
func (n *feedbackNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4, DelaySupported: true,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *feedbackNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *feedbackNode) PreProcess(node.IO) node.Status        { return node.StatusOK }
func (n *feedbackNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	n.iterations++
	return nil
}
func (n *feedbackNode) Properties(any) error { return nil }

// TestGraph_SelfFeedbackWithDelayOneSurvivesBuild is §8 scenario 2: a
// delay-1 self-edge is structurally legal (unlike a delay-0 self-edge) and
// must survive the build and run for several iterations.
func TestGraph_SelfFeedbackWithDelayOneSurvivesBuild(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	fb := &feedbackNode{}
	if err := g.AddNode("fb", "feedback", nil, func(json.RawMessage) (node.Node, error) { return fb, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("fb", "out", "fb", "prev"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(); err != nil {
		t.Fatalf("Connect should not hard-fail on a delay-1 self-edge: %v", err)
	}
	if !g.Enabled("fb") {
		t.Fatal("a delay-1 self-feedback edge must survive the build")
	}
	if len(g.NodeErrors("fb")) != 0 {
		t.Fatalf("unexpected errors on fb: %v", g.NodeErrors("fb"))
	}

	for i := 0; i < 4; i++ {
		if err := g.Run(); err != nil {
			t.Fatalf("Run() iteration %d: %v", i, err)
		}
	}
	if fb.iterations != 4 {
		t.Fatalf("fb processed %d times, want 4", fb.iterations)
	}

	ring := g.built.outputRings["fb"]["out"]
	if ring == nil || ring.Len() != 2 {
		t.Fatalf("fb's output ring should have length 2 (max delay 1, +1), got %v", ring)
	}
}

// TestGraph_SelfEdgeZeroDelayRemovedWithError pins §9's "self-edge with
// delay 0 is a structural error" rule and that it is actually attached as a
// NodeError instead of silently vanishing.
func TestGraph_SelfEdgeZeroDelayRemovedWithError(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	n := &relayNode{}
	if err := g.AddNode("n", "relay", nil, func(json.RawMessage) (node.Node, error) { return n, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("n", "out", "n", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(); err != nil {
		t.Fatalf("Connect should not hard-fail: %v", err)
	}

	var found bool
	for _, e := range g.NodeErrors("n") {
		if errors.Is(e, ErrSelfEdgeZeroDelay) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ErrSelfEdgeZeroDelay attached when a zero-delay self-edge is removed")
	}
}

// TestGraph_DuplicateInputKeepsOneConnection pins invariant 6: at most one
// incoming connection per input.
func TestGraph_DuplicateInputKeepsOneConnection(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	a, b, sink := &sourceNode{}, &sourceNode{}, &sinkNode{}
	if err := g.AddNode("a", "source", nil, func(json.RawMessage) (node.Node, error) { return a, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("b", "source", nil, func(json.RawMessage) (node.Node, error) { return b, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("sink", "sink", nil, func(json.RawMessage) (node.Node, error) { return sink, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("a", "out", "sink", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("b", "out", "sink", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(); err != nil {
		t.Fatalf("Connect should not hard-fail: %v", err)
	}
	if !g.Enabled("sink") {
		t.Fatal("sink should survive with exactly one of its two producers wired")
	}
	if got := len(g.Dump().Connections); got != 1 {
		t.Fatalf("expected exactly one surviving connection into sink's duplicate input, got %d", got)
	}

	var found bool
	for _, e := range g.NodeErrors("sink") {
		if errors.Is(e, ErrDuplicateInput) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ErrDuplicateInput attached to sink")
	}
}

// reconnectingNode requests a reconnect partway through a run, exercising
// the runtime's mid-run rebuild path (§8 scenario 5).
type reconnectingNode struct {
	iterations  int
	reconnectAt int
}

func (n *reconnectingNode) DescribeInputs() []connector.Input { return nil }
func (n *reconnectingNode) DescribeOutputs(map[string]connector.OutputRef) []connector.Output {
	return []connector.Output{&connector.ImageOutput{
		OutputName: "out", Width: 4, Height: 4,
		Binding: connector.DescriptorInfo{Present: true, Type: gpu.DescriptorStorageImage, Count: 1, Stages: gpu.ShaderStageCompute},
	}}
}
func (n *reconnectingNode) OnConnected(node.IOLayout) node.Status { return node.StatusOK }
func (n *reconnectingNode) PreProcess(node.IO) node.Status {
	n.iterations++
	if n.iterations == n.reconnectAt {
		return node.NeedsReconnect
	}
	return node.StatusOK
}
func (n *reconnectingNode) Process(cmd gpu.CommandBuffer, set gpu.DescriptorSet, io node.IO) error {
	return nil
}
func (n *reconnectingNode) Properties(any) error { return nil }

// TestGraph_ReconnectMidRunRebuildsWithoutError is §8 scenario 5: a node
// requesting NeedsReconnect mid-run must trigger an in-place rebuild and the
// iteration must still complete, with every node still fed afterward.
func TestGraph_ReconnectMidRunRebuildsWithoutError(t *testing.T) {
	device := noop.NewDevice()
	g, err := New(device, "noop", DefaultTunables())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	src := &reconnectingNode{reconnectAt: 2}
	sink := &sinkNode{}
	if err := g.AddNode("src", "reconnect-source", nil, func(json.RawMessage) (node.Node, error) { return src, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("sink", "sink", nil, func(json.RawMessage) (node.Node, error) { return sink, nil }); err != nil {
		t.Fatal(err)
	}
	if err := g.AddConnection("src", "out", "sink", "in"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if err := g.Run(); err != nil {
			t.Fatalf("Run() iteration %d: %v", i, err)
		}
	}

	if !g.Enabled("src") || !g.Enabled("sink") {
		t.Fatal("both nodes should survive the mid-run reconnect")
	}
	if len(sink.seen) != 4 {
		t.Fatalf("sink observed %d resources, want 4 (reconnect must not drop an iteration)", len(sink.seen))
	}
}

// TestGraph_RunRejectsConcurrentCall pins ErrAlreadyRunning: a Run call
// already marked in-flight must make a second Run call fail fast instead of
// silently queuing behind it.
func TestGraph_RunRejectsConcurrentCall(t *testing.T) {
	g, _, _ := buildSourceSinkGraph(t)
	if err := g.Connect(); err != nil {
		t.Fatal(err)
	}

	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	if err := g.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run() = %v, want ErrAlreadyRunning", err)
	}

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}
