package overrides

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qdqconf/pkg/quant"
)

// Convert asks for a tensor to be presented to some consumers at a type
// other than the one it is produced at. A nil RecvNodes means every
// consumer receives the converted type.
type Convert struct {
	QuantType quant.Type `json:"quant_type" yaml:"quant_type"`
	RecvNodes *NodeSet   `json:"recv_nodes,omitempty" yaml:"recv_nodes,omitempty"`
}

// Entry is a single override record. Every field is optional; nil means
// "not set" and the quantizer's default applies.
type Entry struct {
	QuantType   *quant.Type `json:"quant_type,omitempty" yaml:"quant_type,omitempty"`
	Symmetric   *bool       `json:"symmetric,omitempty" yaml:"symmetric,omitempty"`
	Scale       *float32    `json:"scale,omitempty" yaml:"scale,omitempty"`
	ZeroPoint   *int32      `json:"zero_point,omitempty" yaml:"zero_point,omitempty"`
	ReduceRange *bool       `json:"reduce_range,omitempty" yaml:"reduce_range,omitempty"`
	RMin        *float32    `json:"rmin,omitempty" yaml:"rmin,omitempty"`
	RMax        *float32    `json:"rmax,omitempty" yaml:"rmax,omitempty"`
	Convert     *Convert    `json:"convert,omitempty" yaml:"convert,omitempty"`
}

// HasRangeFields reports whether the user already pinned anything that
// feeds the scale/zero-point computation.
func (e *Entry) HasRangeFields() bool {
	return e.Scale != nil || e.ZeroPoint != nil || e.Symmetric != nil ||
		e.ReduceRange != nil || e.RMin != nil || e.RMax != nil
}

// TypeOr returns the entry's quant type, or def when unset.
func (e *Entry) TypeOr(def quant.Type) quant.Type {
	if e == nil || e.QuantType == nil {
		return def
	}
	return *e.QuantType
}

func (e Entry) Clone() Entry {
	out := Entry{
		QuantType:   clonePtr(e.QuantType),
		Symmetric:   clonePtr(e.Symmetric),
		Scale:       clonePtr(e.Scale),
		ZeroPoint:   clonePtr(e.ZeroPoint),
		ReduceRange: clonePtr(e.ReduceRange),
		RMin:        clonePtr(e.RMin),
		RMax:        clonePtr(e.RMax),
	}
	if e.Convert != nil {
		out.Convert = &Convert{
			QuantType: e.Convert.QuantType,
			RecvNodes: e.Convert.RecvNodes.Clone(),
		}
	}
	return out
}

// Validate checks the record-level invariants.
func (e *Entry) Validate(tensor string) error {
	if e.QuantType != nil && !e.QuantType.Valid() {
		return invalidf(tensor, "unknown quant_type %v", *e.QuantType)
	}
	if e.Symmetric != nil && e.QuantType == nil {
		return invalidf(tensor, "symmetric requires quant_type")
	}
	if (e.Scale == nil) != (e.ZeroPoint == nil) {
		return invalidf(tensor, "scale and zero_point must be given together")
	}
	if e.Scale != nil && *e.Scale <= 0 {
		return invalidf(tensor, "scale must be positive, got %v", *e.Scale)
	}
	if e.RMin != nil && e.RMax != nil && *e.RMin > *e.RMax {
		return invalidf(tensor, "rmin %v is greater than rmax %v", *e.RMin, *e.RMax)
	}
	if c := e.Convert; c != nil {
		if !c.QuantType.Valid() {
			return invalidf(tensor, "convert requires a valid quant_type")
		}
		if c.RecvNodes != nil && c.RecvNodes.Len() == 0 {
			return invalidf(tensor, "convert recv_nodes is present but empty")
		}
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v, for building entries inline.
func Ptr[T any](v T) *T {
	return &v
}

// Table maps tensor names to their override records. Only single-record
// lists are supported; longer lists are per-channel requests and are
// rejected wherever they are touched.
type Table map[string][]Entry

func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for name, list := range t {
		cp := make([]Entry, len(list))
		for i, e := range list {
			cp[i] = e.Clone()
		}
		out[name] = cp
	}
	return out
}

// Names returns the tensor names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every record of t.
func (t Table) Validate() error {
	for _, name := range t.Names() {
		for i := range t[name] {
			if err := t[name][i].Validate(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func DecodeJSON(data []byte) (Table, error) {
	var t Table
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	return t, nil
}

func DecodeYAML(data []byte) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	return t, nil
}

// Load reads a table from a .json, .yaml or .yml file and validates it.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		t, err = DecodeYAML(data)
	default:
		t, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
