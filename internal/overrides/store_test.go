package overrides

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

func TestNewStoreCopiesTable(t *testing.T) {
	t.Parallel()

	init := Table{"x": {{QuantType: Ptr(quant.QInt16)}}}
	s := NewStore(init, nil)
	require.NoError(t, s.SetScaleZeroPoint("x", quant.QInt16, 1.0/32768, 0))

	assert.Nil(t, init["x"][0].Scale, "caller's table must not change")
	assert.NotNil(t, s.Table()["x"][0].Scale)
}

func TestSetWeightType(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{
		"user_type": {{QuantType: Ptr(quant.QUInt8)}},
		"user_sym":  {{QuantType: Ptr(quant.QInt8), Symmetric: Ptr(false)}},
	}, nil)

	require.NoError(t, s.SetWeightType("w", quant.QInt8, true))
	require.NoError(t, s.SetWeightType("user_type", quant.QInt8, true))
	require.NoError(t, s.SetWeightType("user_sym", quant.QInt8, true))

	tbl := s.Table()
	assert.Equal(t, []Entry{{QuantType: Ptr(quant.QInt8), Symmetric: Ptr(true)}}, tbl["w"])
	assert.Equal(t, []Entry{{QuantType: Ptr(quant.QUInt8)}}, tbl["user_type"])
	assert.Equal(t, []Entry{{QuantType: Ptr(quant.QInt8), Symmetric: Ptr(false)}}, tbl["user_sym"])
}

func TestSetScaleZeroPoint(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, nil)
	require.NoError(t, s.SetScaleZeroPoint("y", quant.QUInt16, 1.0/65536, 0))

	assert.Equal(t, []Entry{{
		QuantType: Ptr(quant.QUInt16),
		Scale:     Ptr(float32(1.0 / 65536)),
		ZeroPoint: Ptr(int32(0)),
	}}, s.Table()["y"])
}

func TestSetScaleZeroPointKeepsUserRange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewStore(Table{
		"y": {{QuantType: Ptr(quant.QUInt16), RMin: Ptr(float32(0)), RMax: Ptr(float32(0.5))}},
	}, logger.JSON(&buf, slog.LevelWarn))

	require.NoError(t, s.SetScaleZeroPoint("y", quant.QUInt16, 1.0/65536, 0))

	e := s.Table()["y"][0]
	assert.Nil(t, e.Scale)
	assert.Nil(t, e.ZeroPoint)
	assert.Contains(t, buf.String(), `"tensor":"y"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestSetScaleZeroPointTypeMismatchPanics(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{"y": {{QuantType: Ptr(quant.QInt16)}}}, nil)
	assert.Panics(t, func() {
		_ = s.SetScaleZeroPoint("y", quant.QUInt16, 1.0/65536, 0)
	})
}

func TestMultiRecordRejected(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{
		"pc": {{QuantType: Ptr(quant.QInt8)}, {QuantType: Ptr(quant.QInt8)}},
	}, nil)

	checks := map[string]error{
		"SetWeightType":     s.SetWeightType("pc", quant.QInt8, true),
		"SetScaleZeroPoint": s.SetScaleZeroPoint("pc", quant.QInt8, 1, 0),
		"AddConvert":        s.AddConvert("pc", quant.QInt8, quant.QUInt8, NewNodeSet("n")),
		"SetConvertAll":     s.SetConvertAll("pc", quant.QUInt8),
	}
	for name, err := range checks {
		assert.ErrorIs(t, err, ErrNotSupported, name)
	}

	_, err := s.OutputType("pc", quant.QUInt8)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = s.InputType("pc", "n", quant.QUInt8)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = s.HasConvertConflict("pc", NewNodeSet("n"))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestAddConvert(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, nil)
	require.NoError(t, s.AddConvert("x", quant.QUInt8, quant.QUInt16, NewNodeSet("b")))
	require.NoError(t, s.AddConvert("x", quant.QUInt8, quant.QUInt16, NewNodeSet("a", "b")))

	e := s.Table()["x"][0]
	assert.Equal(t, quant.QUInt8, *e.QuantType)
	require.NotNil(t, e.Convert)
	assert.Equal(t, quant.QUInt16, e.Convert.QuantType)
	assert.Equal(t, []string{"a", "b"}, e.Convert.RecvNodes.Values())

	err := s.AddConvert("x", quant.QUInt8, quant.QInt16, NewNodeSet("c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var terr *TensorError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "x", terr.Tensor)
}

func TestAddConvertKeepsUnrestrictedConvert(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{
		"x": {{QuantType: Ptr(quant.QInt16), Convert: &Convert{QuantType: quant.QUInt8}}},
	}, nil)
	require.NoError(t, s.AddConvert("x", quant.QInt16, quant.QUInt8, NewNodeSet("a")))
	assert.Nil(t, s.Table()["x"][0].Convert.RecvNodes, "an unrestricted convert must stay unrestricted")
}

func TestSetConvertAll(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{"x": {{QuantType: Ptr(quant.QInt16)}}}, nil)
	require.NoError(t, s.SetConvertAll("x", quant.QUInt8))
	require.NoError(t, s.SetConvertAll("x", quant.QUInt8))

	c := s.Table()["x"][0].Convert
	require.NotNil(t, c)
	assert.Nil(t, c.RecvNodes)

	require.NoError(t, s.AddConvert("y", quant.QInt16, quant.QUInt8, NewNodeSet("a")))
	assert.ErrorIs(t, s.SetConvertAll("y", quant.QUInt8), ErrConflict)
}

func TestHasConvertConflict(t *testing.T) {
	t.Parallel()

	s := NewStore(Table{
		"restricted": {{QuantType: Ptr(quant.QInt16), Convert: &Convert{QuantType: quant.QUInt8, RecvNodes: NewNodeSet("a", "b")}}},
		"all":        {{QuantType: Ptr(quant.QInt16), Convert: &Convert{QuantType: quant.QUInt8}}},
		"plain":      {{QuantType: Ptr(quant.QInt16)}},
	}, nil)

	tests := []struct {
		tensor    string
		consumers []string
		want      bool
	}{
		{"restricted", []string{"b", "c"}, true},
		{"restricted", []string{"c"}, false},
		{"all", []string{"c"}, true},
		{"plain", []string{"a"}, false},
		{"missing", []string{"a"}, false},
	}
	for _, tc := range tests {
		got, err := s.HasConvertConflict(tc.tensor, NewNodeSet(tc.consumers...))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %v", tc.tensor, tc.consumers)
	}
}

func TestEffectiveTypes(t *testing.T) {
	t.Parallel()

	def := quant.QUInt8
	s := NewStore(Table{
		"plain":      {{QuantType: Ptr(quant.QInt16)}},
		"untyped":    {{RMin: Ptr(float32(-1)), RMax: Ptr(float32(1))}},
		"all":        {{QuantType: Ptr(quant.QInt16), Convert: &Convert{QuantType: quant.QUInt16}}},
		"restricted": {{QuantType: Ptr(quant.QInt16), Convert: &Convert{QuantType: quant.QUInt16, RecvNodes: NewNodeSet("p")}}},
		"empty":      {},
	}, nil)

	tests := []struct {
		tensor string
		node   string
		out    quant.Type
		in     quant.Type
	}{
		{"missing", "p", def, def},
		{"empty", "p", def, def},
		{"plain", "p", quant.QInt16, quant.QInt16},
		{"untyped", "p", def, def},
		{"all", "q", quant.QInt16, quant.QUInt16},
		{"restricted", "p", quant.QInt16, quant.QUInt16},
		{"restricted", "q", quant.QInt16, quant.QInt16},
	}
	for _, tc := range tests {
		out, err := s.OutputType(tc.tensor, def)
		require.NoError(t, err)
		assert.Equal(t, tc.out, out, "output type of %s", tc.tensor)

		in, err := s.InputType(tc.tensor, tc.node, def)
		require.NoError(t, err)
		assert.Equal(t, tc.in, in, "input type of %s at %s", tc.tensor, tc.node)
	}
}

func TestWarningIncludesTensorInPrettyOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewStore(Table{"y": {{QuantType: Ptr(quant.QInt16), Scale: Ptr(float32(0.5)), ZeroPoint: Ptr(int32(0))}}},
		logger.Pretty(&buf, slog.LevelInfo))
	require.NoError(t, s.SetScaleZeroPoint("y", quant.QInt16, 1.0/32768, 0))
	assert.True(t, strings.Contains(buf.String(), "[y]"), buf.String())
	assert.Equal(t, float32(0.5), *s.Table()["y"][0].Scale)
}
