package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qdqconf/internal/graph"
)

func inspectCmd() *cli.Command {
	var graphPath string

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors of a graph with their types, producers and consumers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "graph",
				Aliases:     []string{"g"},
				Usage:       "path to the graph description (.json, .yaml)",
				Required:    true,
				Destination: &graphPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			g, err := graph.Load(graphPath)
			if err != nil {
				return exitErr("load graph", err)
			}
			idx, err := graph.NewIndex(g)
			if err != nil {
				return exitErr("index graph", err)
			}

			w := outWriter(c)
			name := g.Name
			if name == "" {
				name = "(unnamed)"
			}
			_, _ = fmt.Fprintf(w, "graph:        %s\n", name)
			_, _ = fmt.Fprintf(w, "nodes:        %d\n", len(g.Nodes))
			_, _ = fmt.Fprintf(w, "initializers: %d\n", len(g.Initializers))
			_, _ = fmt.Fprintf(w, "op types:     %s\n\n", strings.Join(idx.OpTypes(), ", "))
			renderTensors(w, idx)
			return nil
		},
	}
}
