package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qdqconf/internal/qdq"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// quantSettings holds the resolution options shared by resolve and serve.
type quantSettings struct {
	activationType   string
	weightType       string
	calibrateMethod  string
	addQTypeConverts bool
	perChannel       bool
}

func (s *quantSettings) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "activation-type",
			Aliases:     []string{"act"},
			Usage:       "default activation type (QInt8, QUInt8, QInt16, QUInt16)",
			Value:       quant.QUInt8.String(),
			Destination: &s.activationType,
		},
		&cli.StringFlag{
			Name:        "weight-type",
			Usage:       "default weight type (QInt8, QUInt8, QInt16, QUInt16)",
			Value:       quant.QUInt8.String(),
			Destination: &s.weightType,
		},
		&cli.StringFlag{
			Name:        "calibrate-method",
			Usage:       "calibration method (MinMax, Entropy, Percentile, Distribution)",
			Value:       quant.MinMax.String(),
			Destination: &s.calibrateMethod,
		},
		&cli.BoolFlag{
			Name:        "add-qtype-converts",
			Usage:       "insert convert directives so overridden tensors stay consistent",
			Value:       true,
			Destination: &s.addQTypeConverts,
		},
		&cli.BoolFlag{
			Name:        "per-channel",
			Usage:       "request per-channel quantization (not supported)",
			Destination: &s.perChannel,
		},
	}
}

func (s *quantSettings) options() (qdq.Options, error) {
	opts := qdq.DefaultOptions()

	act, err := quant.ParseType(s.activationType)
	if err != nil {
		return opts, fmt.Errorf("--activation-type: %w", err)
	}
	weight, err := quant.ParseType(s.weightType)
	if err != nil {
		return opts, fmt.Errorf("--weight-type: %w", err)
	}
	method, err := quant.ParseCalibrationMethod(s.calibrateMethod)
	if err != nil {
		return opts, fmt.Errorf("--calibrate-method: %w", err)
	}

	opts.ActivationType = act
	opts.WeightType = weight
	opts.CalibrateMethod = method
	opts.AddQTypeConverts = s.addQTypeConverts
	opts.PerChannel = s.perChannel
	return opts, nil
}
