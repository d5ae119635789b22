package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ElemType is a tensor element type, numbered like ONNX TensorProto.DataType.
type ElemType int32

const (
	Undefined ElemType = 0
	Float     ElemType = 1
	Uint8     ElemType = 2
	Int8      ElemType = 3
	Uint16    ElemType = 4
	Int16     ElemType = 5
	Int32     ElemType = 6
	Int64     ElemType = 7
	String    ElemType = 8
	Bool      ElemType = 9
	Float16   ElemType = 10
	Double    ElemType = 11
	Uint32    ElemType = 12
	Uint64    ElemType = 13
	BFloat16  ElemType = 16
)

var elemTypeNames = map[ElemType]string{
	Undefined: "undefined",
	Float:     "float",
	Uint8:     "uint8",
	Int8:      "int8",
	Uint16:    "uint16",
	Int16:     "int16",
	Int32:     "int32",
	Int64:     "int64",
	String:    "string",
	Bool:      "bool",
	Float16:   "float16",
	Double:    "double",
	Uint32:    "uint32",
	Uint64:    "uint64",
	BFloat16:  "bfloat16",
}

func (t ElemType) String() string {
	if name, ok := elemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("elem(%d)", int32(t))
}

// ParseElemType accepts either the lower-case name ("float") or the
// numeric ONNX code ("1"). "float32" is accepted as an alias of float.
func ParseElemType(s string) (ElemType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "float32" {
		return Float, nil
	}
	for t, name := range elemTypeNames {
		if name == s {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		if _, ok := elemTypeNames[ElemType(n)]; ok {
			return ElemType(n), nil
		}
	}
	return Undefined, fmt.Errorf("unknown element type %q", s)
}

func (t ElemType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ElemType) UnmarshalText(text []byte) error {
	parsed, err := ParseElemType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Node is a single operation of the graph.
type Node struct {
	Name    string   `json:"name" yaml:"name"`
	OpType  string   `json:"op_type" yaml:"op_type"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs" yaml:"outputs"`
}

// ValueInfo declares the element type of a graph input, output or
// intermediate tensor.
type ValueInfo struct {
	Name     string   `json:"name" yaml:"name"`
	ElemType ElemType `json:"elem_type" yaml:"elem_type"`
}

// Initializer is a learned parameter stored with the graph.
type Initializer struct {
	Name     string   `json:"name" yaml:"name"`
	ElemType ElemType `json:"elem_type" yaml:"elem_type"`
	Dims     []int64  `json:"dims,omitempty" yaml:"dims,omitempty"`
}

// Graph is the loader's view of a model: nodes in topological order plus
// the type metadata the quantizer needs. Tensor payloads are not held.
type Graph struct {
	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes        []Node        `json:"nodes" yaml:"nodes"`
	Inputs       []ValueInfo   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      []ValueInfo   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	ValueInfo    []ValueInfo   `json:"value_info,omitempty" yaml:"value_info,omitempty"`
	Initializers []Initializer `json:"initializers,omitempty" yaml:"initializers,omitempty"`

	// Weights optionally names a .safetensors file whose header lists
	// further initializers. Relative paths resolve against the graph file.
	Weights string `json:"weights,omitempty" yaml:"weights,omitempty"`
}
