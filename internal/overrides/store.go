package overrides

import (
	"fmt"

	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// Store is the mutable override table used while resolving a graph. It
// owns a deep copy of the caller's table. Mutators never clobber values
// the user supplied.
type Store struct {
	table Table
	log   logger.Logger
}

func NewStore(init Table, log logger.Logger) *Store {
	table := init.Clone()
	if table == nil {
		table = make(Table)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Store{table: table, log: log}
}

// Table returns the current table. Callers must not mutate it while the
// store is in use.
func (s *Store) Table() Table {
	return s.table
}

func (s *Store) Len() int {
	return len(s.table)
}

// Validate checks every record of the table.
func (s *Store) Validate() error {
	return s.table.Validate()
}

// Lookup returns the single record for tensor. A missing tensor, or one
// mapped to an empty list, reports false.
func (s *Store) Lookup(tensor string) (*Entry, bool, error) {
	list := s.table[tensor]
	switch len(list) {
	case 0:
		return nil, false, nil
	case 1:
		return &list[0], true, nil
	default:
		return nil, false, multiRecord(tensor, len(list))
	}
}

// ensure returns the single record for tensor, creating an empty one.
func (s *Store) ensure(tensor string) (*Entry, error) {
	e, ok, err := s.Lookup(tensor)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.table[tensor] = []Entry{{}}
		e = &s.table[tensor][0]
	}
	return e, nil
}

// SetWeightType assigns qtype and symmetry to a weight unless the user
// already chose either of them.
func (s *Store) SetWeightType(tensor string, qtype quant.Type, symmetric bool) error {
	e, err := s.ensure(tensor)
	if err != nil {
		return err
	}
	if e.QuantType != nil || e.Symmetric != nil {
		s.log.Debug("keeping user weight override", "tensor", tensor, "quant_type", e.TypeOr(qtype))
		return nil
	}
	e.QuantType = Ptr(qtype)
	e.Symmetric = Ptr(symmetric)
	s.log.Debug("promoted weight", "tensor", tensor, "quant_type", qtype, "symmetric", symmetric)
	return nil
}

// SetScaleZeroPoint pins an exact scale and zero point for tensor. A
// recorded quant type different from qtype is a caller bug and panics.
// When the user already supplied range-related fields the pin is skipped
// with a warning.
func (s *Store) SetScaleZeroPoint(tensor string, qtype quant.Type, scale float32, zeroPoint int32) error {
	e, err := s.ensure(tensor)
	if err != nil {
		return err
	}
	if e.QuantType == nil {
		e.QuantType = Ptr(qtype)
	}
	if *e.QuantType != qtype {
		panic(fmt.Sprintf("overrides: tensor %q: pinning scale/zero_point for %v but quant_type is %v", tensor, qtype, *e.QuantType))
	}

	if e.HasRangeFields() {
		s.log.Warn("need to override zero_point/scale, but overrides were already provided; keeping them",
			"tensor", tensor, "quant_type", qtype)
		return nil
	}
	e.Scale = Ptr(scale)
	e.ZeroPoint = Ptr(zeroPoint)
	s.log.Debug("pinned scale/zero_point", "tensor", tensor, "quant_type", qtype, "scale", scale, "zero_point", zeroPoint)
	return nil
}

// AddConvert records that recvNodes must see tensor at consumerType. The
// entry's quant type defaults to producerType when unset. An existing convert to a
// different type is a conflict; one to the same type gains the receivers.
func (s *Store) AddConvert(tensor string, producerType, consumerType quant.Type, recvNodes *NodeSet) error {
	if recvNodes.Len() == 0 {
		return fmt.Errorf("overrides: tensor %q: convert needs at least one receiving node", tensor)
	}

	e, ok, err := s.Lookup(tensor)
	if err != nil {
		return err
	}
	if !ok {
		s.table[tensor] = []Entry{{QuantType: Ptr(producerType)}}
		e = &s.table[tensor][0]
	}
	if e.QuantType == nil {
		e.QuantType = Ptr(producerType)
	}

	if e.Convert == nil {
		e.Convert = &Convert{QuantType: consumerType, RecvNodes: NewNodeSet()}
	}
	c := e.Convert
	if c.QuantType != consumerType {
		return Conflictf(tensor, "consumers %v need %v but the tensor is already converted to %v",
			recvNodes.Values(), consumerType, c.QuantType)
	}
	if c.RecvNodes == nil {
		// Already converted for every consumer.
		return nil
	}
	c.RecvNodes.Union(recvNodes)
	s.log.Debug("added convert", "tensor", tensor, "from", e.TypeOr(producerType), "to", consumerType,
		"recv_nodes", c.RecvNodes.Values())
	return nil
}

// SetConvertAll converts tensor to qtype for every consumer, replacing
// nothing: a tensor that already has a convert is a conflict.
func (s *Store) SetConvertAll(tensor string, qtype quant.Type) error {
	e, err := s.ensure(tensor)
	if err != nil {
		return err
	}
	if e.Convert != nil {
		if e.Convert.QuantType == qtype && e.Convert.RecvNodes == nil {
			return nil
		}
		return Conflictf(tensor, "cannot convert all consumers to %v, a convert to %v already exists",
			qtype, e.Convert.QuantType)
	}
	e.Convert = &Convert{QuantType: qtype}
	s.log.Debug("added convert", "tensor", tensor, "from", e.TypeOr(qtype), "to", qtype, "recv_nodes", "all")
	return nil
}

// HasConvertConflict reports whether a convert already redirects any of
// consumers away from the tensor's produced type. An unrestricted convert
// redirects every consumer.
func (s *Store) HasConvertConflict(tensor string, consumers *NodeSet) (bool, error) {
	e, ok, err := s.Lookup(tensor)
	if err != nil || !ok || e.Convert == nil {
		return false, err
	}
	if e.Convert.RecvNodes == nil {
		return consumers.Len() > 0, nil
	}
	return e.Convert.RecvNodes.Intersects(consumers), nil
}

// OutputType is the type tensor is produced at: its override's quant
// type, or def. Converts do not affect it.
func (s *Store) OutputType(tensor string, def quant.Type) (quant.Type, error) {
	e, _, err := s.Lookup(tensor)
	if err != nil {
		return 0, err
	}
	return e.TypeOr(def), nil
}

// InputType is the type node observes when reading tensor. A convert with
// no receiver list applies to every consumer; a restricted one only to
// the listed nodes.
func (s *Store) InputType(tensor, node string, def quant.Type) (quant.Type, error) {
	e, ok, err := s.Lookup(tensor)
	if err != nil || !ok {
		return def, err
	}
	produced := e.TypeOr(def)
	c := e.Convert
	if c == nil {
		return produced, nil
	}
	if c.RecvNodes == nil || c.RecvNodes.Contains(node) {
		return c.QuantType, nil
	}
	return produced, nil
}
