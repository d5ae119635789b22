package qdq

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

type sliceReader struct {
	batches []map[string][]float32
}

func (r *sliceReader) GetNext() (map[string][]float32, bool) {
	if len(r.batches) == 0 {
		return nil, false
	}
	b := r.batches[0]
	r.batches = r.batches[1:]
	return b, true
}

func TestPerChannelRejectedBeforeScan(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.PerChannel = true

	// A nil graph would panic if it were scanned.
	_, err := GetConfig(nil, nil, opts)
	assert.ErrorIs(t, err, overrides.ErrNotSupported)
}

func TestGetConfigDefaults(t *testing.T) {
	t.Parallel()

	g := newTestGraph("ops").
		inputs("x").
		node("r0", "Relu", []string{"x"}, "a").
		node("c", "Cast", []string{"a"}, "b").
		node("add", "Add", []string{"a", "b"}, "c_out").
		node("r1", "Relu", []string{"c_out"}, "y").
		build()
	reader := &sliceReader{}

	cfg, err := GetConfig(g, reader, DefaultOptions())
	require.NoError(t, err)

	assert.Same(t, reader, cfg.CalibrationDataReader)
	assert.Equal(t, quant.MinMax, cfg.CalibrateMethod)
	assert.Equal(t, quant.QUInt8, cfg.ActivationType)
	assert.Equal(t, quant.QUInt8, cfg.WeightType)
	assert.Equal(t, []string{"Add", "Relu"}, cfg.OpTypesToQuantize)
	assert.Equal(t, MinimumRealRange, cfg.ExtraOptions.MinimumRealRange)
	assert.False(t, cfg.ExtraOptions.DedicatedQDQPair)
	assert.False(t, cfg.ExtraOptions.UseQDQContribOps)
	assert.Empty(t, cfg.ExtraOptions.TensorQuantOverrides)
}

func TestUseQDQContribOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		act, weight quant.Type
		want        bool
	}{
		{quant.QUInt8, quant.QUInt8, false},
		{quant.QInt8, quant.QInt8, false},
		{quant.QUInt16, quant.QUInt8, true},
		{quant.QUInt8, quant.QInt16, true},
	}

	g := newTestGraph("one").inputs("x").node("r", "Relu", []string{"x"}, "y").build()
	for _, tc := range tests {
		cfg, err := GetConfig(g, nil, options(tc.act, tc.weight, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.want, cfg.ExtraOptions.UseQDQContribOps, "%v/%v", tc.act, tc.weight)

		b, err := json.Marshal(cfg)
		require.NoError(t, err)
		if tc.want {
			assert.Contains(t, string(b), `"UseQDQContribOps":true`)
		} else {
			assert.NotContains(t, string(b), "UseQDQContribOps")
		}
	}
}

func TestGetConfigDoesNotMutateCallerTable(t *testing.T) {
	t.Parallel()

	init := overrides.Table{
		"x": typeOverride(quant.QInt16),
		"y": typeOverride(quant.QInt16),
	}
	_, err := GetConfig(fanOutGraph(), nil, options(quant.QUInt8, quant.QUInt8, init))
	require.NoError(t, err)

	assert.Equal(t, overrides.Table{
		"x": typeOverride(quant.QInt16),
		"y": typeOverride(quant.QInt16),
	}, init)
}

func TestGetConfigRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	g := fanOutGraph()

	_, err := GetConfig(g, nil, options(quant.Type(0), quant.QUInt8, nil))
	assert.ErrorIs(t, err, overrides.ErrInvalidOverride)

	_, err = GetConfig(g, nil, options(quant.QUInt8, quant.QUInt8, overrides.Table{
		"x": {{Symmetric: overrides.Ptr(true)}},
	}))
	assert.ErrorIs(t, err, overrides.ErrInvalidOverride)

	dup := newTestGraph("dup").
		inputs("in").
		node("A", "Relu", []string{"in"}, "x").
		node("B", "Relu", []string{"in"}, "x").
		build()
	_, err = GetConfig(dup, nil, DefaultOptions())
	assert.ErrorIs(t, err, graph.ErrMalformed)
}

func TestConfigEncoding(t *testing.T) {
	t.Parallel()

	opts := options(quant.QInt16, quant.QInt8, nil)
	opts.CalibrateMethod = quant.Entropy
	g := newTestGraph("mm").inputs("a").weights("w").node("mm", "MatMul", []string{"a", "w"}, "y").build()

	cfg, err := GetConfig(g, &sliceReader{}, opts)
	require.NoError(t, err)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
  "calibrate_method": "Entropy",
  "activation_type": "QInt16",
  "weight_type": "QInt8",
  "op_types_to_quantize": ["MatMul"],
  "extra_options": {
    "MinimumRealRange": 0.0001,
    "DedicatedQDQPair": false,
    "UseQDQContribOps": true,
    "TensorQuantOverrides": {"w": [{"quant_type": "QInt8", "symmetric": true}]}
  }
}`, string(b))

	y, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(y, &back))
	assert.Equal(t, "QInt16", back["activation_type"])
	assert.Equal(t, []any{"MatMul"}, back["op_types_to_quantize"])
}
