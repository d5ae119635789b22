package graph

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qdqconf/internal/safetensors"
)

// Load reads a graph description from path. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON. When the graph names a
// weights file, its initializers are merged in.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g *Graph
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		g, err = DecodeYAML(data)
	default:
		g, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if g.Weights != "" {
		weights := g.Weights
		if !filepath.IsAbs(weights) {
			weights = filepath.Join(filepath.Dir(path), weights)
		}
		if err := g.MergeSafetensors(weights); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func DecodeJSON(data []byte) (*Graph, error) {
	var g Graph
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	g.NameNodes()
	return &g, nil
}

func DecodeYAML(data []byte) (*Graph, error) {
	var g Graph
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	g.NameNodes()
	return &g, nil
}

// NameNodes gives every unnamed node the name "<op_type>_<index>", since
// node names identify consumers in convert directives.
func (g *Graph) NameNodes() {
	taken := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Name != "" {
			taken[n.Name] = struct{}{}
		}
	}
	for i := range g.Nodes {
		if g.Nodes[i].Name != "" {
			continue
		}
		name := fmt.Sprintf("%s_%d", g.Nodes[i].OpType, i)
		for suffix := 1; ; suffix++ {
			if _, ok := taken[name]; !ok {
				break
			}
			name = fmt.Sprintf("%s_%d_%d", g.Nodes[i].OpType, i, suffix)
		}
		taken[name] = struct{}{}
		g.Nodes[i].Name = name
	}
}

// MergeSafetensors adds every tensor of the safetensors file at path as an
// initializer. Initializers already declared by the graph keep their
// declared type.
func (g *Graph) MergeSafetensors(path string) error {
	sf, err := safetensors.Open(path)
	if err != nil {
		return fmt.Errorf("open weights: %w", err)
	}

	declared := make(map[string]struct{}, len(g.Initializers))
	for _, init := range g.Initializers {
		declared[init.Name] = struct{}{}
	}

	for _, name := range sf.Names() {
		if _, ok := declared[name]; ok {
			continue
		}
		info := sf.Tensors[name]
		dims := make([]int64, len(info.Shape))
		for i, d := range info.Shape {
			dims[i] = int64(d)
		}
		g.Initializers = append(g.Initializers, Initializer{
			Name:     name,
			ElemType: elemTypeFromSafetensors(info.DType),
			Dims:     dims,
		})
	}
	return nil
}

func elemTypeFromSafetensors(dtype string) ElemType {
	switch strings.ToUpper(dtype) {
	case "F32":
		return Float
	case "F16":
		return Float16
	case "BF16":
		return BFloat16
	case "F64":
		return Double
	case "I8":
		return Int8
	case "U8":
		return Uint8
	case "I16":
		return Int16
	case "U16":
		return Uint16
	case "I32":
		return Int32
	case "U32":
		return Uint32
	case "I64":
		return Int64
	case "U64":
		return Uint64
	case "BOOL":
		return Bool
	default:
		return Undefined
	}
}
