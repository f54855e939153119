package graph

import (
	"sort"

	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/descset"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/node"
	"github.com/merian-nodes/graph/resource"
)

// attachNodeError records a NodeError against entry and logs it (§7:
// "All non-fatal errors are attached to the node they are attributed
// to"). It does not disable the node; call disableNode for that.
func attachNodeError(entry *nodeEntry, kind ErrKind, err error) {
	entry.errs = append(entry.errs, &NodeError{NodeID: entry.id, Kind: kind, Err: err})
	gpu.Logger().Warn("node error", "node", entry.id, "kind", kind.String(), "error", err)
}

// disableNode removes entry from the running graph for the remainder
// of this build, recording and logging why (§7, §4.2 step 3/5).
func disableNode(entry *nodeEntry, kind ErrKind, err error) {
	entry.disabled = true
	attachNodeError(entry, kind, err)
}

// builtNode is one surviving node's finalised wiring (§4.2).
type builtNode struct {
	entry   *nodeEntry
	inputs  map[string]connector.Input
	outputs map[string]connector.Output

	layout   *descset.BuiltLayout
	descRing *descset.Ring

	// cardinalities is the multiset of resource-ring sizes attached to
	// this node, used to size its descriptor-set ring (§3 "Fan-out
	// cardinality").
	cardinalities []int

	stateSlots map[int]*node.StateSlot
}

// wiredConnection is one surviving connection after the satisfaction
// loop and back-edge cleanup (§4.2 steps 4-5).
type wiredConnection struct {
	key   connectionKey
	delay int
}

// buildResult is the builder's output, consumed by Runtime.
type buildResult struct {
	order []string // topological order over the delay-0 sub-graph
	nodes map[string]*builtNode

	// outputRings[nodeID][outputName] holds the resource ring for that
	// output, sized max_delay+1 (§3).
	outputRings map[string]map[string]*resource.Ring

	connections []wiredConnection
	ringSize    int
}

// rebuildLocked runs the eight-step builder algorithm (§4.2), caller
// holds g.mu. It restarts from the top whenever a step self-heals by
// removing a node or connection, bounded by maxBuildPasses to
// guarantee termination.
func (g *Graph) rebuildLocked() error {
	const maxBuildPasses = 64

	gpu.Logger().Info("graph rebuild starting")

	// Step 1: drain.
	if g.rt != nil {
		if err := g.rt.Wait(); err != nil {
			gpu.Logger().Error("graph rebuild: draining previous runtime failed", "error", err)
			return err
		}
	}

	for pass := 0; pass < maxBuildPasses; pass++ {
		restart, result, err := g.buildPass()
		if err != nil {
			gpu.Logger().Error("graph rebuild: structural build failure", "pass", pass, "error", err)
			return err
		}
		if !restart {
			g.built = result
			g.dirty = false
			g.rt = newRuntime(g, result)
			gpu.Logger().Info("graph rebuild complete", "passes", pass+1, "nodes", len(result.order))
			return g.notifyConnected(result)
		}
	}
	gpu.Logger().Error("graph rebuild: exceeded max build passes without converging", "maxBuildPasses", maxBuildPasses)
	return nil
}

// buildPass performs one attempt at steps 2-7. It returns restart=true
// if it mutated the node/connection set and the whole pass must be
// retried (§4.2: "restarting from the top if any step self-heals").
func (g *Graph) buildPass() (bool, *buildResult, error) {
	// Step 2: input introspection.
	inputsByNode := make(map[string]map[string]connector.Input)
	for id, entry := range g.nodes {
		if entry.disabled {
			continue
		}
		if entry.instance == nil {
			inst, err := entry.factory(entry.config)
			if err != nil {
				disableNode(entry, ErrKindNodeError, err)
				return true, nil, nil
			}
			entry.instance = inst
		}
		inputs := make(map[string]connector.Input)
		for _, in := range entry.instance.DescribeInputs() {
			inputs[in.Name()] = in
		}
		inputsByNode[id] = inputs
	}

	for key := range g.connections {
		if key.SrcNode == key.DstNode {
			if in, ok := inputsByNode[key.DstNode][key.DstInput]; ok && in.Delay() == 0 {
				if entry, ok := g.nodes[key.DstNode]; ok {
					attachNodeError(entry, ErrKindGraphStructural, ErrSelfEdgeZeroDelay)
				}
				delete(g.connections, key)
				return true, nil, nil
			}
		}
		dstInputs, dstExists := inputsByNode[key.DstNode]
		if !dstExists {
			if _, nodeExists := g.nodes[key.DstNode]; !nodeExists {
				delete(g.connections, key)
				return true, nil, nil
			}
			continue // destination disabled this pass; handled below
		}
		if _, ok := dstInputs[key.DstInput]; !ok {
			if entry, ok := g.nodes[key.DstNode]; ok {
				attachNodeError(entry, ErrKindGraphStructural, ErrUnknownInput)
			}
			delete(g.connections, key)
			return true, nil, nil
		}
	}

	// Duplicate-input cleanup (invariant 6: at most one incoming
	// connection per input). Keeps the lexicographically-first
	// producer by (SrcNode, SrcOutput) and removes the rest, matching
	// this pass's other deterministic tie-breaks.
	type dstInput struct{ node, input string }
	byDst := make(map[dstInput][]connectionKey)
	for key := range g.connections {
		di := dstInput{key.DstNode, key.DstInput}
		byDst[di] = append(byDst[di], key)
	}
	for di, keys := range byDst {
		if len(keys) < 2 {
			continue
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].SrcNode != keys[j].SrcNode {
				return keys[i].SrcNode < keys[j].SrcNode
			}
			return keys[i].SrcOutput < keys[j].SrcOutput
		})
		for _, dup := range keys[1:] {
			delete(g.connections, dup)
		}
		if entry, ok := g.nodes[di.node]; ok {
			attachNodeError(entry, ErrKindGraphStructural, ErrDuplicateInput)
		}
		return true, nil, nil
	}

	// Step 3/4: satisfaction loop.
	visited := make(map[string]bool)
	candidates := make(map[string]bool)
	for id, entry := range g.nodes {
		if !entry.disabled {
			candidates[id] = true
		}
	}

	incoming := func(dstID, dstInput string) (connectionKey, bool) {
		for key := range g.connections {
			if key.DstNode == dstID && key.DstInput == dstInput {
				return key, true
			}
		}
		return connectionKey{}, false
	}

	for len(candidates) > 0 {
		progressed := false

		// Remove candidates whose required input has no possible
		// producer.
		for id := range candidates {
			entry := g.nodes[id]
			for name, in := range inputsByNode[id] {
				if in.Optional() || in.Delay() > 0 {
					continue
				}
				key, ok := incoming(id, name)
				if !ok {
					disableNode(entry, ErrKindGraphStructural, ErrMissingRequiredInput)
					delete(candidates, id)
					progressed = true
					continue
				}
				if g.nodes[key.SrcNode].disabled {
					disableNode(entry, ErrKindGraphStructural, ErrMissingRequiredInput)
					delete(candidates, id)
					progressed = true
				}
			}
		}

		// Find nodes every one of whose inputs is resolvable now.
		ready := make([]string, 0)
		for id := range candidates {
			if g.nodes[id].disabled {
				delete(candidates, id)
				continue
			}
			ok := true
			for name, in := range inputsByNode[id] {
				if in.Delay() > 0 {
					continue
				}
				key, has := incoming(id, name)
				if !has {
					if in.Optional() {
						continue
					}
					ok = false
					break
				}
				if !visited[key.SrcNode] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, id)
			}
		}
		sort.Strings(ready)

		for _, id := range ready {
			entry := g.nodes[id]
			forInput := make(map[string]connector.OutputRef)
			for name, in := range inputsByNode[id] {
				key, has := incoming(id, name)
				if !has {
					continue
				}
				if in.Delay() > 0 {
					forInput[name] = connector.FeedbackSentinel{Name: key.SrcOutput}
					continue
				}
				srcOutputs := g.nodes[key.SrcNode].outputsCache
				if srcOutputs != nil {
					if out, ok := srcOutputs[key.SrcOutput]; ok {
						forInput[name] = connector.ConcreteOutput{Output: out}
					}
				}
			}

			outs := entry.instance.DescribeOutputs(forInput)
			outputs := make(map[string]connector.Output)
			for _, o := range outs {
				outputs[o.Name()] = o
			}
			entry.outputsCache = outputs

			// Wire this node's outgoing connections.
			for key := range g.connections {
				if key.SrcNode != id {
					continue
				}
				out, ok := outputs[key.SrcOutput]
				if !ok {
					attachNodeError(entry, ErrKindGraphStructural, ErrUnknownOutput)
					delete(g.connections, key)
					return true, nil, nil
				}
				dstEntry, exists := g.nodes[key.DstNode]
				if !exists || dstEntry.disabled {
					continue
				}
				in, ok := inputsByNode[key.DstNode][key.DstInput]
				if !ok {
					attachNodeError(dstEntry, ErrKindGraphStructural, ErrUnknownInput)
					delete(g.connections, key)
					return true, nil, nil
				}
				if in.Delay() > 0 && !out.SupportsDelay() {
					delete(g.connections, key)
					attachNodeError(dstEntry, ErrKindConnectorIncompatible, connector.ErrDelayUnsupported)
					return true, nil, nil
				}
				if in.Delay() > 0 && out.Persistent() {
					delete(g.connections, key)
					attachNodeError(dstEntry, ErrKindConnectorIncompatible, connector.ErrPersistentDelay)
					return true, nil, nil
				}
				if err := in.OnConnectOutput(out); err != nil {
					delete(g.connections, key)
					attachNodeError(dstEntry, ErrKindConnectorIncompatible, err)
					return true, nil, nil
				}
			}

			visited[id] = true
			delete(candidates, id)
			progressed = true
		}

		if !progressed {
			break
		}
	}

	// Step 5: back-edge cleanup.
	for changed := true; changed; {
		changed = false
		for key := range g.connections {
			if g.nodes[key.DstNode] != nil && g.nodes[key.DstNode].disabled {
				continue
			}
			if g.nodes[key.SrcNode] == nil || g.nodes[key.SrcNode].disabled {
				delete(g.connections, key)
				changed = true
			}
		}
		for id, entry := range g.nodes {
			if entry.disabled {
				continue
			}
			for name, in := range inputsByNode[id] {
				if in.Optional() {
					continue
				}
				if _, ok := incoming(id, name); !ok {
					disableNode(entry, ErrKindGraphStructural, ErrMissingRequiredInput)
					changed = true
				}
			}
		}
	}

	// Topological order over the delay-0 sub-graph (Kahn's algorithm).
	order, err := g.topoSortLocked(inputsByNode)
	if err != nil {
		return false, nil, err
	}

	// Step 6: resource allocation.
	outputRings := make(map[string]map[string]*resource.Ring)
	demandFor := make(map[string]map[string]connector.ConsumerDemand)

	// lastConsumerOrderIdx[srcNode][srcOutput] is the highest topo-order
	// index among that output's delay-0 consumers: the point at which
	// its live range ends within one iteration (§5 "the builder
	// guarantees non-overlapping live ranges by construction"). An
	// output with any delay>0 consumer is excluded: its ring keeps
	// being read across iterations indefinitely, so it can never be
	// retired the way a purely intra-iteration transient can.
	orderIndex := make(map[string]int, len(order))
	for idx, id := range order {
		orderIndex[id] = idx
	}
	lastConsumerOrderIdx := make(map[string]map[string]int)
	hasDelayedConsumer := make(map[string]map[string]bool)

	for key := range g.connections {
		in := inputsByNode[key.DstNode][key.DstInput]
		d := demandFor[key.SrcNode]
		if d == nil {
			d = make(map[string]connector.ConsumerDemand)
			demandFor[key.SrcNode] = d
		}
		dem := d[key.SrcOutput]
		dem.Merge(connector.ConsumerDemand{MaxDelay: in.Delay()})
		d[key.SrcOutput] = dem

		if in.Delay() > 0 {
			m := hasDelayedConsumer[key.SrcNode]
			if m == nil {
				m = make(map[string]bool)
				hasDelayedConsumer[key.SrcNode] = m
			}
			m[key.SrcOutput] = true
			continue
		}
		if idx, ok := orderIndex[key.DstNode]; ok {
			m := lastConsumerOrderIdx[key.SrcNode]
			if m == nil {
				m = make(map[string]int)
				lastConsumerOrderIdx[key.SrcNode] = m
			}
			if cur, seen := m[key.SrcOutput]; !seen || idx > cur {
				m[key.SrcOutput] = idx
			}
		}
	}

	for idx, id := range order {
		entry := g.nodes[id]
		outs := entry.outputsCache
		if outs == nil {
			continue
		}
		rings := make(map[string]*resource.Ring)
		for name, out := range outs {
			demand := demandFor[id][name]
			ring, err := g.allocDecn.CreateRing(out, demand, g.tunables.RingSize)
			if err != nil {
				return false, nil, err
			}
			rings[name] = ring
		}
		outputRings[id] = rings

		// Retire any earlier node's transient output whose live range
		// ends exactly here, so a later output's CreateRing call above
		// (and any still to come) can alias its memory (§8 scenario 6).
		for srcID, byOutput := range lastConsumerOrderIdx {
			srcOuts := g.nodes[srcID].outputsCache
			for outName, lastIdx := range byOutput {
				if lastIdx != idx {
					continue
				}
				out := srcOuts[outName]
				if out == nil || out.Persistent() || hasDelayedConsumer[srcID][outName] {
					continue
				}
				ring := outputRings[srcID][outName]
				if ring == nil {
					continue
				}
				for _, res := range ring.Copies() {
					g.allocDecn.Retire(res)
				}
			}
		}
	}

	// Step 7: descriptor preparation.
	built := make(map[string]*builtNode)
	var wired []wiredConnection
	for _, id := range order {
		entry := g.nodes[id]
		inputList := make([]connector.Input, 0, len(inputsByNode[id]))
		var inputNames []string
		for name := range inputsByNode[id] {
			inputNames = append(inputNames, name)
		}
		sort.Strings(inputNames)
		for _, name := range inputNames {
			inputList = append(inputList, inputsByNode[id][name])
		}

		var outputNames []string
		for name := range entry.outputsCache {
			outputNames = append(outputNames, name)
		}
		sort.Strings(outputNames)
		outputList := make([]connector.Output, 0, len(outputNames))
		for _, name := range outputNames {
			outputList = append(outputList, entry.outputsCache[name])
		}

		layout, err := descset.BuildLayout(g.device, inputList, outputList)
		if err != nil {
			return false, nil, err
		}

		var cardinalities []int
		for name, in := range inputsByNode[id] {
			if key, ok := incoming(id, name); ok {
				if ring := outputRings[key.SrcNode][key.SrcOutput]; ring != nil {
					cardinalities = append(cardinalities, ring.Len())
				}
			}
		}
		for name := range entry.outputsCache {
			if ring := outputRings[id][name]; ring != nil {
				cardinalities = append(cardinalities, ring.Len())
			}
		}

		n := descset.Size(cardinalities, g.tunables.RingSize)
		descRing, err := descset.NewRing(g.device, layout.GPULayout, n)
		if err != nil {
			return false, nil, err
		}
		recordInitialDescriptorWrites(descRing, layout, id, entry, inputsByNode[id], outputRings, incoming)

		bn := &builtNode{
			entry:         entry,
			inputs:        inputsByNode[id],
			outputs:       entry.outputsCache,
			layout:        layout,
			descRing:      descRing,
			cardinalities: cardinalities,
			stateSlots:    make(map[int]*node.StateSlot),
		}
		built[id] = bn

		for name := range inputsByNode[id] {
			if key, ok := incoming(id, name); ok {
				wired = append(wired, wiredConnection{key: key, delay: inputsByNode[id][name].Delay()})
			}
		}
	}

	return false, &buildResult{
		order:       order,
		nodes:       built,
		outputRings: outputRings,
		connections: wired,
		ringSize:    g.tunables.RingSize,
	}, nil
}

// recordInitialDescriptorWrites performs §4.2 step 7's "record initial
// descriptor writes": every descriptor set in the node's freshly built
// ring is populated before the first iteration runs, rather than left
// to be discovered lazily by a dirty flag at runtime. It walks every
// set index 0..N-1 with the same (iteration mod ring length) indexing
// the runtime uses at steady state, so the set a given iteration reads
// at runtime already holds the write this pass gave it.
func recordInitialDescriptorWrites(
	descRing *descset.Ring,
	layout *descset.BuiltLayout,
	id string,
	entry *nodeEntry,
	inputs map[string]connector.Input,
	outputRings map[string]map[string]*resource.Ring,
	incoming func(dstID, dstInput string) (connectionKey, bool),
) {
	for i := 0; i < descRing.N; i++ {
		it := uint64(i)
		set := descRing.At(it)

		for name, in := range inputs {
			binding, hasBinding := layout.InputBindings[name]
			if !hasBinding {
				continue
			}
			key, ok := incoming(id, name)
			if !ok {
				continue
			}
			ring := outputRings[key.SrcNode][key.SrcOutput]
			if ring == nil {
				continue
			}
			res := ring.At(it, in.Delay())
			if res == nil {
				continue
			}
			in.EmitDescriptorUpdate(binding, res, set)
			res.ConsumeDirty()
		}

		for name, out := range entry.outputsCache {
			binding, hasBinding := layout.OutputBindings[name]
			if !hasBinding {
				continue
			}
			ring := outputRings[id][name]
			if ring == nil {
				continue
			}
			res := ring.Current(it)
			if res == nil {
				continue
			}
			out.EmitDescriptorUpdate(binding, res, set)
			res.ConsumeDirty()
		}

		set.Flush()
	}
}

// topoSortLocked runs Kahn's algorithm over the delay-0 sub-graph,
// with a deterministic by-identifier tie-break (§9 "Open questions").
func (g *Graph) topoSortLocked(inputsByNode map[string]map[string]connector.Input) ([]string, error) {
	inDegree := make(map[string]int)
	adj := make(map[string][]string)
	var ids []string
	for id, entry := range g.nodes {
		if entry.disabled {
			continue
		}
		ids = append(ids, id)
		inDegree[id] = 0
	}

	for key := range g.connections {
		if g.nodes[key.SrcNode].disabled || g.nodes[key.DstNode].disabled {
			continue
		}
		in, ok := inputsByNode[key.DstNode][key.DstInput]
		if !ok || in.Delay() > 0 {
			continue
		}
		adj[key.SrcNode] = append(adj[key.SrcNode], key.DstNode)
		inDegree[key.DstNode]++
	}

	sort.Strings(ids)
	var queue []string
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		sort.Strings(queue)
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		neighbors := append([]string(nil), adj[current]...)
		sort.Strings(neighbors)
		for _, next := range neighbors {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, ErrDelayZeroCycle
	}
	return order, nil
}

// notifyConnected invokes each surviving node's OnConnected hook
// (§4.2 step 8).
func (g *Graph) notifyConnected(result *buildResult) error {
	for _, id := range result.order {
		bn := result.nodes[id]
		layout := node.IOLayout{Inputs: bn.inputs, Outputs: bn.outputs}
		status := bn.entry.instance.OnConnected(layout)
		if status&node.ResetInFlightData != 0 {
			for _, slot := range bn.stateSlots {
				slot.Reset()
			}
		}
		if status&node.RemoveNode != 0 {
			bn.entry.disabled = true
			g.dirty = true
			gpu.Logger().Warn("node disabled itself via OnConnected", "node", id)
		}
		if status&node.NeedsReconnect != 0 {
			g.dirty = true
			gpu.Logger().Debug("node requested reconnect via OnConnected", "node", id)
		}
	}
	return nil
}
