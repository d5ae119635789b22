package graph

import "fmt"

// Index holds the producer/consumer maps and type metadata of a graph.
// It is read-only after NewIndex returns.
type Index struct {
	graph        *Graph
	producers    map[string]*Node
	consumers    map[string][]*Node
	initializers map[string]*Initializer
	valueInfos   map[string]ValueInfo
	opTypes      []string
	position     map[string]int
}

// NewIndex scans g once and fails with ErrMalformed when an output name is
// empty or claimed by two nodes.
func NewIndex(g *Graph) (*Index, error) {
	idx := &Index{
		graph:        g,
		producers:    make(map[string]*Node, len(g.Nodes)),
		consumers:    make(map[string][]*Node),
		initializers: make(map[string]*Initializer, len(g.Initializers)),
		valueInfos:   make(map[string]ValueInfo, len(g.ValueInfo)+len(g.Inputs)+len(g.Outputs)),
		position:     make(map[string]int),
	}

	for i := range g.Initializers {
		init := &g.Initializers[i]
		idx.initializers[init.Name] = init
	}

	// Later sources win: value_info, then graph outputs, then graph inputs.
	for _, vi := range g.ValueInfo {
		idx.valueInfos[vi.Name] = vi
	}
	for _, vi := range g.Outputs {
		idx.valueInfos[vi.Name] = vi
	}
	for _, vi := range g.Inputs {
		idx.valueInfos[vi.Name] = vi
		idx.addPosition(vi.Name)
	}

	seenOps := make(map[string]struct{})
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if _, ok := seenOps[node.OpType]; !ok {
			seenOps[node.OpType] = struct{}{}
			idx.opTypes = append(idx.opTypes, node.OpType)
		}

		for _, in := range node.Inputs {
			if in == "" {
				continue
			}
			idx.consumers[in] = append(idx.consumers[in], node)
		}

		for _, out := range node.Outputs {
			if out == "" {
				return nil, fmt.Errorf("%w: node %q has an empty output name", ErrMalformed, node.Name)
			}
			if prev, ok := idx.producers[out]; ok {
				return nil, fmt.Errorf("%w: tensor %q is produced by both %q and %q", ErrMalformed, out, prev.Name, node.Name)
			}
			idx.producers[out] = node
			idx.addPosition(out)
		}
	}

	return idx, nil
}

func (idx *Index) addPosition(name string) {
	if _, ok := idx.position[name]; !ok {
		idx.position[name] = len(idx.position)
	}
}

// Graph returns the indexed graph.
func (idx *Index) Graph() *Graph {
	return idx.graph
}

// Nodes returns the graph's nodes in order.
func (idx *Index) Nodes() []Node {
	return idx.graph.Nodes
}

// Producer returns the node producing name. Graph inputs and initializers
// have no producer.
func (idx *Index) Producer(name string) (*Node, bool) {
	n, ok := idx.producers[name]
	return n, ok
}

// Consumers returns the nodes reading name, in graph order.
func (idx *Index) Consumers(name string) []*Node {
	return idx.consumers[name]
}

func (idx *Index) IsInitializer(name string) bool {
	_, ok := idx.initializers[name]
	return ok
}

// Initializer returns the initializer named name.
func (idx *Index) Initializer(name string) (*Initializer, bool) {
	init, ok := idx.initializers[name]
	return init, ok
}

// IsQuantizable reports whether name is a float initializer, or a
// non-initializer whose declared element type is float. Tensors without
// type metadata are never quantizable.
func (idx *Index) IsQuantizable(name string) bool {
	if init, ok := idx.initializers[name]; ok {
		return init.ElemType == Float
	}
	vi, ok := idx.valueInfos[name]
	return ok && vi.ElemType == Float
}

// ElemType returns the declared element type of name, or Undefined.
func (idx *Index) ElemType(name string) ElemType {
	if init, ok := idx.initializers[name]; ok {
		return init.ElemType
	}
	if vi, ok := idx.valueInfos[name]; ok {
		return vi.ElemType
	}
	return Undefined
}

// OpTypes returns the distinct op types in first-seen order.
func (idx *Index) OpTypes() []string {
	return idx.opTypes
}

// Position orders tensors by first appearance: graph inputs, then node
// outputs in node order. Tensors unknown to the graph report false.
func (idx *Index) Position(name string) (int, bool) {
	p, ok := idx.position[name]
	return p, ok
}

// Tensors lists every tensor name with a position, in position order.
func (idx *Index) Tensors() []string {
	out := make([]string, len(idx.position))
	for name, p := range idx.position {
		out[p] = name
	}
	return out
}
