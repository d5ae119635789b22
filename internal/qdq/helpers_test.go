package qdq

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// testGraph builds float graphs node by node.
type testGraph struct {
	g graph.Graph
}

func newTestGraph(name string) *testGraph {
	return &testGraph{g: graph.Graph{Name: name}}
}

func (b *testGraph) inputs(names ...string) *testGraph {
	for _, n := range names {
		b.g.Inputs = append(b.g.Inputs, graph.ValueInfo{Name: n, ElemType: graph.Float})
	}
	return b
}

func (b *testGraph) weights(names ...string) *testGraph {
	for _, n := range names {
		b.g.Initializers = append(b.g.Initializers, graph.Initializer{Name: n, ElemType: graph.Float})
	}
	return b
}

func (b *testGraph) node(name, op string, inputs []string, outputs ...string) *testGraph {
	b.g.Nodes = append(b.g.Nodes, graph.Node{Name: name, OpType: op, Inputs: inputs, Outputs: outputs})
	for _, out := range outputs {
		b.g.ValueInfo = append(b.g.ValueInfo, graph.ValueInfo{Name: out, ElemType: graph.Float})
	}
	return b
}

func (b *testGraph) build() *graph.Graph {
	g := b.g
	return &g
}

func options(act, weight quant.Type, init overrides.Table) Options {
	opts := DefaultOptions()
	opts.ActivationType = act
	opts.WeightType = weight
	opts.InitOverrides = init
	return opts
}

func resolve(t *testing.T, g *graph.Graph, opts Options) overrides.Table {
	t.Helper()
	cfg, err := GetConfig(g, nil, opts)
	require.NoError(t, err)
	return cfg.ExtraOptions.TensorQuantOverrides
}

// entryJSON renders a single entry for comparison. NodeSets hold a
// comparator func, so entries with converts cannot be compared with
// reflect.DeepEqual.
func entryJSON(t *testing.T, tbl overrides.Table, tensor string) string {
	t.Helper()
	list, ok := tbl[tensor]
	require.True(t, ok, "no entry for %q", tensor)
	require.Len(t, list, 1)
	b, err := json.Marshal(list[0])
	require.NoError(t, err)
	return string(b)
}

func tableJSON(t *testing.T, tbl overrides.Table) string {
	t.Helper()
	b, err := json.Marshal(tbl)
	require.NoError(t, err)
	return string(b)
}

func typeOverride(q quant.Type) []overrides.Entry {
	return []overrides.Entry{{QuantType: overrides.Ptr(q)}}
}
