package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/internal/qdq"
)

type Server struct {
	store    *ResultStore
	defaults qdq.Options
	log      logger.Logger
	clock    func() time.Time
}

// NewServer resolves requests with defaults for every option a request
// leaves unset. defaults.InitOverrides is ignored.
func NewServer(store *ResultStore, defaults qdq.Options, log logger.Logger) *Server {
	if store == nil {
		store = NewResultStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	defaults.InitOverrides = nil
	defaults.Logger = log
	return &Server{
		store:    store,
		defaults: defaults,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/configs", s.handleCreateConfig)
	e.GET("/v1/configs", s.handleListConfigs)
	e.GET("/v1/configs/:id", s.handleGetConfig)
	e.DELETE("/v1/configs/:id", s.handleDeleteConfig)
}

func (s *Server) handleCreateConfig(c *echo.Context) error {
	req, err := decodeJSON[CreateConfigRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Graph == nil {
		return writeBadRequest(c, "graph is required")
	}
	if req.Graph.Weights != "" {
		return writeBadRequest(c, "graph.weights is not accepted over HTTP; declare initializers inline")
	}
	req.Graph.NameNodes()

	opts := s.options(req)
	cfg, err := qdq.GetConfig(req.Graph, nil, opts)
	if err != nil {
		s.log.Warn("resolution failed", "graph", req.Graph.Name, "error", err)
		return writeResolveError(c, err)
	}

	res := s.store.Create(req.Graph.Name, cfg, s.clock())
	s.log.Info("resolved config", "id", res.ID, "graph", req.Graph.Name,
		"overrides", len(cfg.ExtraOptions.TensorQuantOverrides))
	return writeJSON(c, http.StatusOK, res)
}

func (s *Server) options(req CreateConfigRequest) qdq.Options {
	opts := s.defaults
	opts.InitOverrides = req.Overrides
	opts.PerChannel = req.PerChannel
	if req.ActivationType != nil {
		opts.ActivationType = *req.ActivationType
	}
	if req.WeightType != nil {
		opts.WeightType = *req.WeightType
	}
	if req.CalibrateMethod != nil {
		opts.CalibrateMethod = *req.CalibrateMethod
	}
	if req.AddQTypeConverts != nil {
		opts.AddQTypeConverts = *req.AddQTypeConverts
	}
	return opts
}

func (s *Server) handleListConfigs(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, ConfigList{
		Object: "list",
		Data:   s.store.List(),
	})
}

func (s *Server) handleGetConfig(c *echo.Context) error {
	id := c.Param("id")
	res, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "config not found")
	}
	return writeJSON(c, http.StatusOK, res)
}

func (s *Server) handleDeleteConfig(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "config not found")
	}
	return writeJSON(c, http.StatusOK, DeleteConfigResp{
		ID:      id,
		Object:  "qdq.config",
		Deleted: true,
	})
}
