// Package server exposes the engine over HTTP.
package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/auth"
	"github.com/agenthands/notegraph/internal/core"
	"github.com/agenthands/notegraph/internal/core/graph"
	"github.com/agenthands/notegraph/internal/core/lifecycle"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/core/notes"
)

type Server struct {
	engine   *core.Engine
	verifier auth.Verifier
	logger   *zap.Logger
}

func New(engine *core.Engine, verifier auth.Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, verifier: verifier, logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), AccessLog(s.logger, s.engine.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.engine.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.engine.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := r.Group("/", Authenticate(s.verifier, s.logger))

	api.POST("/notes", s.CreateNote)
	api.GET("/notes", s.ListNotes)
	api.GET("/notes/:id", s.GetNote)
	api.PATCH("/notes/:id", s.UpdateNote)
	api.DELETE("/notes/:id", s.DeleteNote)
	api.GET("/notes/:id/history", s.History)
	api.POST("/notes/:id/detect", s.RequestDetection)
	api.GET("/notes/:id/connections", s.Neighbors)

	api.POST("/connections", s.Connect)
	api.DELETE("/connections/:id", s.Disconnect)

	api.GET("/graph", s.Graph)
	api.GET("/graph/clusters", s.Clusters)

	api.GET("/contradictions", s.ListContradictions)
	api.GET("/contradictions/:id", s.GetContradiction)
	api.POST("/contradictions/:id/resolve", s.Resolve)
	api.POST("/contradictions/:id/dismiss", s.Dismiss)

	return r
}

// Notes

func (s *Server) CreateNote(c *gin.Context) {
	var req notes.CreateInput
	if !s.bindJSON(c, &req) {
		return
	}
	note, err := s.engine.Notes.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (s *Server) ListNotes(c *gin.Context) {
	q := model.NoteQuery{
		Category:      c.Query("category"),
		Tag:           c.Query("tag"),
		IncludePublic: c.Query("include_public") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.respondError(c, apperr.NewValidation("limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	list, err := s.engine.Notes.List(c.Request.Context(), currentUser(c), q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": list})
}

func (s *Server) GetNote(c *gin.Context) {
	note, err := s.engine.Notes.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (s *Server) UpdateNote(c *gin.Context) {
	var patch notes.Patch
	if !s.bindJSON(c, &patch) {
		return
	}
	version, err := s.engine.Notes.Update(c.Request.Context(), currentUser(c), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (s *Server) DeleteNote(c *gin.Context) {
	if err := s.engine.Notes.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) History(c *gin.Context) {
	versions, err := s.engine.Notes.History(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (s *Server) RequestDetection(c *gin.Context) {
	if err := s.engine.Notes.RequestDetection(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Connections

func (s *Server) Neighbors(c *gin.Context) {
	var types []model.EdgeType
	for _, raw := range c.QueryArray("type") {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, model.EdgeType(t))
			}
		}
	}
	edges, err := s.engine.Graph.Neighbors(c.Request.Context(), currentUser(c), c.Param("id"), types)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": edges})
}

func (s *Server) Connect(c *gin.Context) {
	var req graph.ConnectInput
	if !s.bindJSON(c, &req) {
		return
	}
	edge, err := s.engine.Graph.Connect(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func (s *Server) Disconnect(c *gin.Context) {
	if err := s.engine.Graph.Disconnect(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Graph(c *gin.Context) {
	view, err := s.engine.Graph.Graph(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) Clusters(c *gin.Context) {
	clusters, err := s.engine.Graph.Clusters(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

// Contradictions

func (s *Server) ListContradictions(c *gin.Context) {
	status := model.ContradictionStatus(c.Query("status"))
	list, err := s.engine.Lifecycle.List(c.Request.Context(), currentUser(c), status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contradictions": list})
}

func (s *Server) GetContradiction(c *gin.Context) {
	contradiction, err := s.engine.Lifecycle.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contradiction)
}

func (s *Server) Resolve(c *gin.Context) {
	var req lifecycle.ResolveInput
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}
	contradiction, err := s.engine.Lifecycle.Resolve(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contradiction)
}

func (s *Server) Dismiss(c *gin.Context) {
	var req lifecycle.DismissInput
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}
	contradiction, err := s.engine.Lifecycle.Dismiss(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contradiction)
}
