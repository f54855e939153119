package graph

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"

	"github.com/merian-nodes/graph/connector"
	"github.com/merian-nodes/graph/gpu"
	"github.com/merian-nodes/graph/internal/pacing"
	"github.com/merian-nodes/graph/node"
	"github.com/merian-nodes/graph/resource"
)

// slot is one element of the ring of in-flight iteration state (§3
// "Iteration slot"): a fence and a reset-on-reuse command pool. The
// per-node opaque state for each slot lives in builtNode.stateSlots.
type slot struct {
	fence   gpu.Fence
	cmdPool gpu.CommandPool
}

// Runtime drives one built graph through its iterations (§4.3).
type Runtime struct {
	g      *Graph
	result *buildResult

	slots []slot
	pacer *pacing.Estimator
	tasks *lfq.MPSC[func()]

	iteration atomix.Uint64
}

func newRuntime(g *Graph, result *buildResult) *Runtime {
	rt := &Runtime{
		g:      g,
		result: result,
		slots:  make([]slot, g.tunables.RingSize),
		pacer:  pacing.NewEstimator(),
		tasks:  lfq.NewMPSC[func()](1024),
	}
	for i := range rt.slots {
		pool, _ := g.device.NewCommandPool()
		fence, _ := g.device.NewFence()
		rt.slots[i] = slot{fence: fence, cmdPool: pool}
	}
	for _, bn := range result.nodes {
		for i := range rt.slots {
			bn.stateSlots[i] = &node.StateSlot{}
		}
	}
	return rt
}

// Wait blocks on every iteration slot's fence (§6 "wait()").
func (rt *Runtime) Wait() error {
	for _, s := range rt.slots {
		if s.fence != nil {
			if err := s.fence.Wait(); err != nil {
				return err
			}
		}
	}
	return nil
}

// PostTask enqueues CPU work for the runtime to run after the current
// iteration completes (§5 "background thread pool").
func (rt *Runtime) PostTask(fn func()) error {
	return rt.tasks.Enqueue(&fn)
}

// Run drives exactly one iteration (§4.3).
func (rt *Runtime) Run() error {
	g := rt.g

	// Step 1: select slot, wait fence.
	i := rt.iteration.Load()
	s := &rt.slots[int(i)%len(rt.slots)]
	if s.fence != nil {
		if err := s.fence.Wait(); err != nil {
			return err
		}
		s.fence.Reset()
	}

	// Step 2: pacing.
	rt.pacer.Sleep(g.tunables.FPSLimit, g.tunables.LowLatencyMode)

	// Step 3: reset command pool.
	if s.cmdPool != nil {
		s.cmdPool.Reset()
	}

	// Step 4: clock advance is the pacer's concern; nothing to do here
	// beyond what Sleep already measured.

	// Step 5: pre-process loop, with possible reconnect.
	for {
		reconnect := false
		for _, id := range rt.result.order {
			bn := rt.result.nodes[id]
			io := rt.buildIO(bn, i)
			status := bn.entry.instance.PreProcess(io)
			if status&node.NeedsReconnect != 0 {
				reconnect = true
			}
			if status&node.RemoveNode != 0 {
				g.mu.Lock()
				bn.entry.disabled = true
				g.dirty = true
				g.mu.Unlock()
				gpu.Logger().Warn("node disabled itself via PreProcess", "node", id)
			}
		}
		if !reconnect {
			break
		}
		gpu.Logger().Warn("emergency reconnect requested mid-run", "iteration", i)
		g.mu.Lock()
		rebuildErr := g.rebuildLocked()
		rt = g.rt
		g.mu.Unlock()
		if rebuildErr != nil {
			return rebuildErr
		}
		s = &rt.slots[int(i)%len(rt.slots)]
	}

	if g.callbacks.OnRunStarting != nil {
		g.callbacks.OnRunStarting()
	}

	// Step 7: execution.
	cmd, err := s.cmdPool.Acquire()
	if err != nil {
		return err
	}
	for _, id := range rt.result.order {
		bn := rt.result.nodes[id]
		if err := rt.executeNode(bn, i, cmd); err != nil {
			g.mu.Lock()
			disableNode(bn.entry, ErrKindNodeError, err)
			g.dirty = true
			g.mu.Unlock()
		}
	}

	if g.callbacks.OnPreSubmit != nil {
		g.callbacks.OnPreSubmit()
	}

	// Step 9: submit.
	if err := g.device.Submit(cmd, s.fence); err != nil {
		return err
	}
	if g.callbacks.OnPostSubmit != nil {
		g.callbacks.OnPostSubmit()
	}

	// Step 10: drain post-iteration tasks.
	rt.iteration.Add(1)
	for {
		fn, err := rt.tasks.Dequeue()
		if err != nil {
			break
		}
		fn()
	}
	if g.callbacks.OnRunFinishedTasks != nil {
		g.callbacks.OnRunFinishedTasks()
	}
	return nil
}

func (rt *Runtime) buildIO(bn *builtNode, iteration uint64) node.IO {
	io := node.IO{Inputs: make(map[string]*resource.Resource), Outputs: make(map[string]*resource.Resource)}
	for _, wc := range rt.result.connections {
		if wc.key.DstNode != bn.entry.id {
			continue
		}
		ring := rt.result.outputRings[wc.key.SrcNode][wc.key.SrcOutput]
		if ring == nil {
			continue
		}
		io.Inputs[wc.key.DstInput] = ring.At(iteration, wc.delay)
	}
	for name, ring := range rt.result.outputRings[bn.entry.id] {
		io.Outputs[name] = ring.Current(iteration)
	}
	return io
}

// executeNode runs the seven sub-steps of §4.3 step 7 for one node.
func (rt *Runtime) executeNode(bn *builtNode, iteration uint64, cmd gpu.CommandBuffer) error {
	io := rt.buildIO(bn, iteration)
	barriers := &connector.Barriers{}

	cmd.PushDebugLabel(bn.entry.id)
	defer cmd.PopDebugLabel()

	var dirty connector.Status
	for name, in := range bn.inputs {
		dirty |= in.OnPreProcess(io.Inputs[name], cmd, barriers)
	}
	for name, out := range bn.outputs {
		dirty |= out.OnPreProcess(io.Outputs[name], cmd, barriers)
	}
	if !barriers.Empty() {
		cmd.PipelineBarrier(barriers.Images, barriers.Buffers, barriers.Accels)
		barriers.Reset()
	}

	set := bn.descRing.At(iteration)
	if dirty&connector.NeedsDescriptorUpdate != 0 {
		for name, binding := range bn.layout.InputBindings {
			bn.inputs[name].EmitDescriptorUpdate(binding, io.Inputs[name], set)
		}
		for name, binding := range bn.layout.OutputBindings {
			bn.outputs[name].EmitDescriptorUpdate(binding, io.Outputs[name], set)
		}
	}
	set.Flush()

	cmd.BindDescriptorSet(set)
	if err := bn.entry.instance.Process(cmd, set, io); err != nil {
		return err
	}

	for name, in := range bn.inputs {
		in.OnPostProcess(io.Inputs[name], cmd, barriers)
	}
	for name, out := range bn.outputs {
		out.OnPostProcess(io.Outputs[name], cmd, barriers)
	}
	if !barriers.Empty() {
		cmd.PipelineBarrier(barriers.Images, barriers.Buffers, barriers.Accels)
	}
	return nil
}
