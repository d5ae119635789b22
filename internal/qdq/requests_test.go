package qdq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// fanOutGraph: in -> A -> x; x feeds P (-> y) and Q (-> z).
func fanOutGraph() *graph.Graph {
	return newTestGraph("fanout").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		node("P", "Relu", []string{"x"}, "y").
		node("Q", "Relu", []string{"x"}, "z").
		build()
}

func TestPartialConsumerRequest(t *testing.T) {
	t.Parallel()

	tbl := resolve(t, fanOutGraph(), options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": typeOverride(quant.QInt16),
		"y": typeOverride(quant.QInt16),
	}))

	// P reads x at its produced type; Q did not ask and gets the default.
	assert.JSONEq(t, `{"quant_type":"QInt16","convert":{"quant_type":"QUInt8","recv_nodes":["Q"]}}`,
		entryJSON(t, tbl, "x"))
	// A must read its input at the type it produces.
	assert.JSONEq(t, `{"quant_type":"QUInt8","convert":{"quant_type":"QInt16","recv_nodes":["A"]}}`,
		entryJSON(t, tbl, "in"))
	// Nobody downstream of y asked for QInt16.
	assert.JSONEq(t, `{"quant_type":"QInt16","convert":{"quant_type":"QUInt8"}}`,
		entryJSON(t, tbl, "y"))
	assert.Len(t, tbl, 3)
}

func TestProducerOnlyConvertsEveryConsumer(t *testing.T) {
	t.Parallel()

	tbl := resolve(t, fanOutGraph(), options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": typeOverride(quant.QUInt16),
	}))

	assert.JSONEq(t, `{"quant_type":"QUInt16","convert":{"quant_type":"QUInt8"}}`, entryJSON(t, tbl, "x"))
	assert.JSONEq(t, `{"quant_type":"QUInt8","convert":{"quant_type":"QUInt16","recv_nodes":["A"]}}`,
		entryJSON(t, tbl, "in"))
	assert.Len(t, tbl, 2)
}

func TestAllConsumersRequestingNeedNoConvert(t *testing.T) {
	t.Parallel()

	g := newTestGraph("chain").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		node("P", "Relu", []string{"x"}, "y").
		build()

	tbl := resolve(t, g, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": typeOverride(quant.QInt16),
		"y": typeOverride(quant.QInt16),
	}))

	assert.Equal(t, typeOverride(quant.QInt16), tbl["x"])
}

func TestOverrideMatchingDefaultIsIgnored(t *testing.T) {
	t.Parallel()

	tbl := resolve(t, fanOutGraph(), options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": typeOverride(quant.QUInt8),
	}))

	assert.Equal(t, overrides.Table{"x": typeOverride(quant.QUInt8)}, tbl)
}

func TestGraphInputOverride(t *testing.T) {
	t.Parallel()

	tbl := resolve(t, fanOutGraph(), options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"in": typeOverride(quant.QUInt16),
	}))

	assert.JSONEq(t, `{"quant_type":"QUInt16","convert":{"quant_type":"QUInt8"}}`, entryJSON(t, tbl, "in"))
	assert.Len(t, tbl, 1)
}

func TestConsumerConflictIndependentOfOrder(t *testing.T) {
	t.Parallel()

	init := overrides.Table{
		"y": typeOverride(quant.QInt16),
		"z": typeOverride(quant.QUInt16),
	}
	forward := newTestGraph("fwd").
		inputs("in").
		node("P", "Relu", []string{"in"}, "y").
		node("Q", "Relu", []string{"in"}, "z").
		build()
	reverse := newTestGraph("rev").
		inputs("in").
		node("Q", "Relu", []string{"in"}, "z").
		node("P", "Relu", []string{"in"}, "y").
		build()

	for _, g := range []*graph.Graph{forward, reverse} {
		_, err := GetConfig(g, nil, options(quant.QUInt8, quant.QUInt8, init))
		require.ErrorIs(t, err, overrides.ErrConflict, g.Name)

		var te *overrides.TensorError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "in", te.Tensor)
	}
}

func TestRestrictedConvertConflict(t *testing.T) {
	t.Parallel()

	g := newTestGraph("conflict").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		node("P", "Relu", []string{"x"}, "y").
		node("Q", "Relu", []string{"x"}, "z").
		build()

	// x is already handed to P at QUInt8, but y needs P to read QInt16.
	_, err := GetConfig(g, nil, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": {{
			QuantType: overrides.Ptr(quant.QInt16),
			Convert:   &overrides.Convert{QuantType: quant.QUInt8, RecvNodes: overrides.NewNodeSet("P")},
		}},
		"y": typeOverride(quant.QInt16),
	}))
	assert.ErrorIs(t, err, overrides.ErrConflict)

	// The same convert scoped to Q leaves P alone.
	tbl := resolve(t, g, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": {{
			QuantType: overrides.Ptr(quant.QInt16),
			Convert:   &overrides.Convert{QuantType: quant.QUInt8, RecvNodes: overrides.NewNodeSet("Q")},
		}},
		"y": typeOverride(quant.QInt16),
	}))
	assert.JSONEq(t, `{"quant_type":"QInt16","convert":{"quant_type":"QUInt8","recv_nodes":["Q"]}}`,
		entryJSON(t, tbl, "x"))
}

func TestMultiRecordActivationNotSupported(t *testing.T) {
	t.Parallel()

	_, err := GetConfig(fanOutGraph(), nil, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": {{QuantType: overrides.Ptr(quant.QInt16)}, {QuantType: overrides.Ptr(quant.QInt16)}},
	}))
	assert.ErrorIs(t, err, overrides.ErrNotSupported)
}

func TestNonQuantizableOverridesIgnored(t *testing.T) {
	t.Parallel()

	g := newTestGraph("ints").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		build()
	g.ValueInfo = append(g.ValueInfo, graph.ValueInfo{Name: "ids", ElemType: graph.Int64})

	init := overrides.Table{
		"ids":     typeOverride(quant.QInt16),
		"unknown": typeOverride(quant.QInt16),
	}
	tbl := resolve(t, g, options(quant.QUInt8, quant.QUInt8, init))
	assert.Equal(t, init, tbl)
}

func TestConvertsDisabled(t *testing.T) {
	t.Parallel()

	init := overrides.Table{"x": typeOverride(quant.QInt16)}
	opts := options(quant.QUInt8, quant.QUInt8, init)
	opts.AddQTypeConverts = false

	tbl := resolve(t, fanOutGraph(), opts)
	assert.Equal(t, init, tbl)
}

func TestResolutionIsIdempotent(t *testing.T) {
	t.Parallel()

	g := newTestGraph("idem").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		node("P", "Relu", []string{"x"}, "y").
		node("Q", "Relu", []string{"x"}, "z").
		node("sig", "Sigmoid", []string{"z"}, "s").
		build()

	first := resolve(t, g, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": typeOverride(quant.QInt16),
		"y": typeOverride(quant.QInt16),
		"s": typeOverride(quant.QUInt16),
	}))
	require.NotNil(t, first["s"][0].Scale, "sigmoid output pinned")
	want := tableJSON(t, first)

	for _, converts := range []bool{false, true} {
		opts := options(quant.QUInt8, quant.QUInt8, first)
		opts.AddQTypeConverts = converts
		again := resolve(t, g, opts)
		assert.JSONEq(t, want, tableJSON(t, again), "add_qtype_converts=%v", converts)
	}
}
