package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/internal/qdq"
)

func resolveCmd() *cli.Command {
	var (
		qs            quantSettings
		graphPath     string
		overridesPath string
		outputPath    string
		format        string
		showTable     bool
	)

	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a complete override table and quantizer config for a graph",
		Flags: append(qs.flags(),
			&cli.StringFlag{
				Name:        "graph",
				Aliases:     []string{"g"},
				Usage:       "path to the graph description (.json, .yaml)",
				Required:    true,
				Destination: &graphPath,
			},
			&cli.StringFlag{
				Name:        "overrides",
				Usage:       "path to initial tensor overrides (.json, .yaml)",
				Destination: &overridesPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the config to this file instead of stdout",
				Destination: &outputPath,
			},
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "config encoding (json, yaml)",
				Value:       "json",
				Destination: &format,
			},
			&cli.BoolFlag{
				Name:        "table",
				Usage:       "print the resolved overrides as a table",
				Destination: &showTable,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := LoadConfig()
			applyQuantConfig(c, cfg, &qs)
			if cfg.OutputFormat != "" && !c.IsSet("format") {
				format = cfg.OutputFormat
			}

			opts, err := qs.options()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := opts.Check(); err != nil {
				return exitErr("resolve", err)
			}
			opts.Logger = log

			g, err := graph.Load(graphPath)
			if err != nil {
				return exitErr("load graph", err)
			}
			if overridesPath != "" {
				opts.InitOverrides, err = overrides.Load(overridesPath)
				if err != nil {
					return exitErr("load overrides", err)
				}
			}

			result, err := qdq.GetConfig(g, nil, opts)
			if err != nil {
				return exitErr("resolve", err)
			}
			log.Info("resolved overrides",
				"graph", g.Name,
				"nodes", len(g.Nodes),
				"overrides", len(result.ExtraOptions.TensorQuantOverrides),
				"activation_type", result.ActivationType,
				"weight_type", result.WeightType,
			)

			stdout := outWriter(c)
			if outputPath == "" {
				if showTable {
					renderOverrides(stdout, result.ExtraOptions.TensorQuantOverrides)
					return nil
				}
				return writeConfig(stdout, result, format)
			}

			if err := writeConfigFile(outputPath, result, format); err != nil {
				return cli.Exit(fmt.Sprintf("error: write config: %v", err), 1)
			}
			log.Info("wrote config", "path", outputPath)
			if showTable {
				renderOverrides(stdout, result.ExtraOptions.TensorQuantOverrides)
			}
			return nil
		},
	}
}

func writeConfigFile(path string, cfg *qdq.Config, format string) (err error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return writeConfig(f, cfg, format)
}
