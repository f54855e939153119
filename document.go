package graph

import (
	"encoding/json"
	"hash/fnv"
	"sort"
)

// NodeDoc is one node entry in a serialized graph description (§6).
type NodeDoc struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ConnectionDoc is one connection entry in a serialized graph
// description (§6).
type ConnectionDoc struct {
	Src       string `json:"src"`
	SrcOutput string `json:"src_output"`
	Dst       string `json:"dst"`
	DstInput  string `json:"dst_input"`
}

// Document is the purely structural dump of §6: "Loading such a
// document is equivalent to a sequence of add_node/add_connection
// calls followed by connect()".
type Document struct {
	Nodes       []NodeDoc       `json:"nodes"`
	Connections []ConnectionDoc `json:"connections"`
}

// Dump produces a Document snapshot of the graph's current desired
// nodes and connections (not the built/actual subset).
func (g *Graph) Dump() Document {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc := Document{}
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := g.nodes[id]
		doc.Nodes = append(doc.Nodes, NodeDoc{ID: id, Type: entry.typeName, Config: entry.config})
	}

	for _, c := range g.desiredConnections() {
		doc.Connections = append(doc.Connections, ConnectionDoc{
			Src: c.SrcNode, SrcOutput: c.SrcOutput, Dst: c.DstNode, DstInput: c.DstInput,
		})
	}
	return doc
}

// Load replays a Document as a sequence of AddNode/AddConnection
// calls, then forces a rebuild via Connect (§6). factories resolves a
// node's Type string to a constructor; nodes already present by ID are
// left untouched, matching AddNode's deduplication rule.
func Load(g *Graph, doc Document, factories map[string]NodeFactory) error {
	for _, n := range doc.Nodes {
		factory, ok := factories[n.Type]
		if !ok {
			return &NodeError{NodeID: n.ID, Kind: ErrKindGraphStructural, Err: ErrUnknownNodeType}
		}
		if err := g.AddNode(n.ID, n.Type, n.Config, factory); err != nil {
			return err
		}
	}
	for _, c := range doc.Connections {
		g.AddConnection(c.Src, c.SrcOutput, c.Dst, c.DstInput)
	}
	return g.Connect()
}

// StructuralHash is the monotonically-meaningful structural-hash
// identifier of §6: it changes exactly when the node or connection set
// changes, not when a node's configuration changes. Computed as an
// FNV-1a hash over a canonical (sorted) encoding of node id/type pairs
// and connection quadruples — configuration is deliberately excluded.
func (g *Graph) StructuralHash() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.structuralHashLocked()
}

func (g *Graph) structuralHashLocked() uint64 {
	type nodeKey struct{ id, typ string }
	keys := make([]nodeKey, 0, len(g.nodes))
	for id, entry := range g.nodes {
		keys = append(keys, nodeKey{id, entry.typeName})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].id < keys[j].id })

	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k.id))
		h.Write([]byte{0})
		h.Write([]byte(k.typ))
		h.Write([]byte{0})
	}

	conns := g.desiredConnections()
	sort.Slice(conns, func(i, j int) bool {
		a, b := conns[i], conns[j]
		if a.SrcNode != b.SrcNode {
			return a.SrcNode < b.SrcNode
		}
		if a.SrcOutput != b.SrcOutput {
			return a.SrcOutput < b.SrcOutput
		}
		if a.DstNode != b.DstNode {
			return a.DstNode < b.DstNode
		}
		return a.DstInput < b.DstInput
	})
	for _, c := range conns {
		h.Write([]byte(c.SrcNode))
		h.Write([]byte{0})
		h.Write([]byte(c.SrcOutput))
		h.Write([]byte{0})
		h.Write([]byte(c.DstNode))
		h.Write([]byte{0})
		h.Write([]byte(c.DstInput))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
