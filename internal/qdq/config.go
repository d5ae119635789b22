package qdq

import (
	"fmt"

	"github.com/emirpasic/gods/sets/treeset"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// MinimumRealRange keeps calibrated ranges from collapsing to a point.
const MinimumRealRange = 0.0001

// excludedOpTypes are never quantized.
var excludedOpTypes = map[string]struct{}{
	"Cast": {},
}

// CalibrationDataReader feeds calibration samples to the quantizer. It is
// passed through untouched.
type CalibrationDataReader interface {
	GetNext() (map[string][]float32, bool)
}

type Options struct {
	CalibrateMethod  quant.CalibrationMethod
	ActivationType   quant.Type
	WeightType       quant.Type
	InitOverrides    overrides.Table
	AddQTypeConverts bool
	PerChannel       bool
	Logger           logger.Logger
}

func DefaultOptions() Options {
	return Options{
		CalibrateMethod:  quant.MinMax,
		ActivationType:   quant.QUInt8,
		WeightType:       quant.QUInt8,
		AddQTypeConverts: true,
	}
}

type ExtraOptions struct {
	MinimumRealRange     float64         `json:"MinimumRealRange" yaml:"MinimumRealRange"`
	DedicatedQDQPair     bool            `json:"DedicatedQDQPair" yaml:"DedicatedQDQPair"`
	UseQDQContribOps     bool            `json:"UseQDQContribOps,omitempty" yaml:"UseQDQContribOps,omitempty"`
	TensorQuantOverrides overrides.Table `json:"TensorQuantOverrides" yaml:"TensorQuantOverrides"`
}

// Config is everything a static QDQ quantizer needs to quantize a graph.
type Config struct {
	CalibrationDataReader CalibrationDataReader   `json:"-" yaml:"-"`
	CalibrateMethod       quant.CalibrationMethod `json:"calibrate_method" yaml:"calibrate_method"`
	ActivationType        quant.Type              `json:"activation_type" yaml:"activation_type"`
	WeightType            quant.Type              `json:"weight_type" yaml:"weight_type"`
	OpTypesToQuantize     []string                `json:"op_types_to_quantize" yaml:"op_types_to_quantize"`
	ExtraOptions          ExtraOptions            `json:"extra_options" yaml:"extra_options"`
}

// Check rejects option sets that can never resolve, without looking at a
// graph.
func (o Options) Check() error {
	if o.PerChannel {
		return fmt.Errorf("%w: per-channel quantization", overrides.ErrNotSupported)
	}
	if !o.ActivationType.Valid() {
		return fmt.Errorf("%w: activation type %v", overrides.ErrInvalidOverride, o.ActivationType)
	}
	if !o.WeightType.Valid() {
		return fmt.Errorf("%w: weight type %v", overrides.ErrInvalidOverride, o.WeightType)
	}
	return nil
}

// GetConfig resolves the override table for g and assembles the quantizer
// configuration. opts.InitOverrides is never modified.
func GetConfig(g *graph.Graph, reader CalibrationDataReader, opts Options) (*Config, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	idx, err := graph.NewIndex(g)
	if err != nil {
		return nil, err
	}

	store := overrides.NewStore(opts.InitOverrides, log)
	if err := store.Validate(); err != nil {
		return nil, err
	}

	if err := applyOperatorPolicy(store, idx, opts.ActivationType, opts.WeightType); err != nil {
		return nil, err
	}

	if opts.AddQTypeConverts && len(opts.InitOverrides) > 0 {
		if err := addTypeConverts(store, idx, opts.ActivationType, log); err != nil {
			return nil, err
		}
	}

	log.Debug("resolved overrides", "graph", g.Name, "tensors", store.Len())

	return &Config{
		CalibrationDataReader: reader,
		CalibrateMethod:       opts.CalibrateMethod,
		ActivationType:        opts.ActivationType,
		WeightType:            opts.WeightType,
		OpTypesToQuantize:     opTypesToQuantize(idx),
		ExtraOptions: ExtraOptions{
			MinimumRealRange:     MinimumRealRange,
			DedicatedQDQPair:     false,
			UseQDQContribOps:     opts.ActivationType.IsWide() || opts.WeightType.IsWide(),
			TensorQuantOverrides: store.Table(),
		},
	}, nil
}

func opTypesToQuantize(idx *graph.Index) []string {
	set := treeset.NewWithStringComparator()
	for _, op := range idx.OpTypes() {
		if _, skip := excludedOpTypes[op]; skip {
			continue
		}
		set.Add(op)
	}
	out := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, v.(string))
	}
	return out
}
