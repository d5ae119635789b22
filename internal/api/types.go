package api

import (
	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/internal/qdq"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// CreateConfigRequest asks the server to resolve a graph. Unset options
// fall back to the server's defaults.
type CreateConfigRequest struct {
	Graph            *graph.Graph             `json:"graph"`
	Overrides        overrides.Table          `json:"overrides,omitempty"`
	ActivationType   *quant.Type              `json:"activation_type,omitempty"`
	WeightType       *quant.Type              `json:"weight_type,omitempty"`
	CalibrateMethod  *quant.CalibrationMethod `json:"calibrate_method,omitempty"`
	AddQTypeConverts *bool                    `json:"add_qtype_converts,omitempty"`
	PerChannel       bool                     `json:"per_channel,omitempty"`
}

type ConfigResource struct {
	ID        string      `json:"id"`
	Object    string      `json:"object"`
	CreatedAt int64       `json:"created_at"`
	Graph     string      `json:"graph,omitempty"`
	Config    *qdq.Config `json:"config"`
}

type ConfigSummary struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
	Graph     string `json:"graph,omitempty"`
}

type ConfigList struct {
	Object string          `json:"object"`
	Data   []ConfigSummary `json:"data"`
}

type DeleteConfigResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Tensor  string `json:"tensor,omitempty"`
}
