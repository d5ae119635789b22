package qdq

import (
	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// policy seeds overrides that follow from an operator's kind before type
// requests are resolved.
type policy struct {
	store          *overrides.Store
	idx            *graph.Index
	activationType quant.Type
	weightType     quant.Type
}

type policyRule func(p *policy, node *graph.Node) error

var operatorRules = map[string]policyRule{
	"MatMul":             promoteMatMulWeight,
	"LayerNormalization": promoteLayerNormWeights,
	"Sigmoid":            pinOutput(sigmoidPins),
	"Tanh":               pinOutput(tanhPins),
}

type scaleZeroPoint struct {
	scale     float32
	zeroPoint int32
}

// Sigmoid maps onto [0, 1] and tanh onto [-1, 1]; at 16 bits these are the
// exact parameters covering the range, so they are never calibrated.
var (
	sigmoidPins = map[quant.Type]scaleZeroPoint{
		quant.QUInt16: {scale: 1.0 / 65536.0, zeroPoint: 0},
		quant.QInt16:  {scale: 1.0 / 32768.0, zeroPoint: 0},
	}
	tanhPins = map[quant.Type]scaleZeroPoint{
		quant.QUInt16: {scale: 1.0 / 32768.0, zeroPoint: 32768},
		quant.QInt16:  {scale: 1.0 / 32768.0, zeroPoint: 0},
	}
)

// applyOperatorPolicy visits every node once, in graph order.
func applyOperatorPolicy(store *overrides.Store, idx *graph.Index, activationType, weightType quant.Type) error {
	p := &policy{store: store, idx: idx, activationType: activationType, weightType: weightType}
	nodes := idx.Nodes()
	for i := range nodes {
		rule, ok := operatorRules[nodes[i].OpType]
		if !ok {
			continue
		}
		if err := rule(p, &nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// narrowWeights reports whether weight promotion applies at all, and the
// symmetry promoted weights get.
func (p *policy) narrowWeights() (bool, bool) {
	return p.weightType.IsNarrow(), p.weightType == quant.QInt8
}

// wideInput reports whether node reads activation in at a 16-bit type.
func (p *policy) wideInput(in string, node *graph.Node) (bool, error) {
	qtype, err := p.store.InputType(in, node.Name, p.activationType)
	if err != nil {
		return false, err
	}
	return qtype.IsWide(), nil
}

// promoteMatMulWeight: a MatMul reading exactly one 16-bit activation and
// exactly one weight gets its weight at the 8-bit weight type.
func promoteMatMulWeight(p *policy, node *graph.Node) error {
	narrow, symmetric := p.narrowWeights()
	if !narrow {
		return nil
	}

	var wideActs, weights []string
	for _, in := range node.Inputs {
		if in == "" {
			continue
		}
		if p.idx.IsInitializer(in) {
			weights = append(weights, in)
			continue
		}
		wide, err := p.wideInput(in, node)
		if err != nil {
			return err
		}
		if wide {
			wideActs = append(wideActs, in)
		}
	}

	if len(wideActs) != 1 || len(weights) != 1 {
		return nil
	}
	return p.store.SetWeightType(weights[0], p.weightType, symmetric)
}

// promoteLayerNormWeights: when any activation input is 16-bit, weights in
// the first two input positions get the 8-bit weight type. Later inputs
// are left alone.
func promoteLayerNormWeights(p *policy, node *graph.Node) error {
	narrow, symmetric := p.narrowWeights()
	if !narrow {
		return nil
	}

	hasWide := false
	for _, in := range node.Inputs {
		if in == "" || p.idx.IsInitializer(in) {
			continue
		}
		wide, err := p.wideInput(in, node)
		if err != nil {
			return err
		}
		if wide {
			hasWide = true
			break
		}
	}
	if !hasWide {
		return nil
	}

	for i := 0; i < 2 && i < len(node.Inputs); i++ {
		in := node.Inputs[i]
		if in == "" || !p.idx.IsInitializer(in) {
			continue
		}
		if err := p.store.SetWeightType(in, p.weightType, symmetric); err != nil {
			return err
		}
	}
	return nil
}

func pinOutput(pins map[quant.Type]scaleZeroPoint) policyRule {
	return func(p *policy, node *graph.Node) error {
		if len(node.Outputs) == 0 {
			return nil
		}
		out := node.Outputs[0]
		qtype, err := p.store.OutputType(out, p.activationType)
		if err != nil {
			return err
		}
		pin, ok := pins[qtype]
		if !ok {
			return nil
		}
		return p.store.SetScaleZeroPoint(out, qtype, pin.scale, pin.zeroPoint)
	}
}
