package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/internal/qdq"
)

func writeConfig(w io.Writer, cfg *qdq.Config, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	return table
}

// renderOverrides prints one row per tensor of tbl, sorted by name.
func renderOverrides(w io.Writer, tbl overrides.Table) {
	var data [][]string
	for _, name := range tbl.Names() {
		for _, e := range tbl[name] {
			convertType, recv := "-", "-"
			if e.Convert != nil {
				convertType = e.Convert.QuantType.String()
				recv = "all"
				if e.Convert.RecvNodes != nil {
					recv = strings.Join(e.Convert.RecvNodes.Values(), ",")
				}
			}
			data = append(data, []string{
				name,
				optString(e.QuantType),
				optString(e.Symmetric),
				optFloat(e.Scale),
				optString(e.ZeroPoint),
				convertType,
				recv,
			})
		}
	}

	table := newTable(w, []string{"TENSOR", "QUANT TYPE", "SYMMETRIC", "SCALE", "ZERO POINT", "CONVERT", "RECV NODES"})
	table.AppendBulk(data)
	table.Render()
}

// renderTensors prints every tensor the graph knows, in graph order with
// initializers last.
func renderTensors(w io.Writer, idx *graph.Index) {
	g := idx.Graph()
	outputs := make(map[string]struct{}, len(g.Outputs))
	for _, vi := range g.Outputs {
		outputs[vi.Name] = struct{}{}
	}

	names := idx.Tensors()
	for _, init := range g.Initializers {
		if _, ok := idx.Position(init.Name); !ok {
			names = append(names, init.Name)
		}
	}

	var data [][]string
	for _, name := range names {
		kind := "activation"
		switch _, isOutput := outputs[name]; {
		case idx.IsInitializer(name):
			kind = "initializer"
		case isOutput:
			kind = "output"
		default:
			if _, ok := idx.Producer(name); !ok {
				kind = "input"
			}
		}

		producer := "-"
		if n, ok := idx.Producer(name); ok {
			producer = n.Name
		}
		consumers := make([]string, 0, len(idx.Consumers(name)))
		for _, n := range idx.Consumers(name) {
			consumers = append(consumers, n.Name)
		}
		consumerList := "-"
		if len(consumers) > 0 {
			consumerList = strings.Join(consumers, ",")
		}

		data = append(data, []string{
			name,
			kind,
			idx.ElemType(name).String(),
			strconv.FormatBool(idx.IsQuantizable(name)),
			producer,
			consumerList,
		})
	}

	table := newTable(w, []string{"TENSOR", "KIND", "ELEM TYPE", "QUANTIZABLE", "PRODUCER", "CONSUMERS"})
	table.AppendBulk(data)
	table.Render()
}

func optString[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func optFloat(p *float32) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(float64(*p), 'g', -1, 32)
}
