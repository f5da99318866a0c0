// Package server exposes the HTTP surface: chat, session lifecycle,
// provider discovery, LLM settings and memory administration.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/orchestrator"
)

// Server wires the orchestrator and its collaborators to gin routes.
type Server struct {
	router   *gin.Engine
	orch     *orchestrator.Orchestrator
	manager  *llm.Manager
	settings *llm.SettingsStore
	index    memory.SimilarityIndex
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
}

func New(orch *orchestrator.Orchestrator, manager *llm.Manager, settings *llm.SettingsStore, index memory.SimilarityIndex, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:   gin.New(),
		orch:     orch,
		manager:  manager,
		settings: settings,
		index:    index,
		gatherer: gatherer,
		logger:   logger,
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/v1")
	{
		v1.POST("/chat", s.handleChat)
		v1.GET("/sessions", s.listSessions)
		v1.POST("/sessions", s.createSession)
		v1.DELETE("/sessions/:session_id", s.deleteSession)
		v1.GET("/providers", s.listProviders)
		v1.GET("/settings", s.getSettings)
		v1.POST("/settings", s.updateSettings)
		v1.POST("/memory/reset", s.resetMemory)
	}
}

// Handler exposes the router for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	s.logger.WithField("addr", addr).Info("HTTP server listening")
	return s.router.Run(addr)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Chimera Core is active."})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	SessionID   string              `json:"session_id" binding:"required"`
	Prompt      string              `json:"prompt" binding:"required"`
	LLMSettings *models.LLMSettingsPatch `json:"llm_settings,omitempty"`
}

type chatResponse struct {
	SessionID    string `json:"session_id"`
	ResponseText string `json:"response_text"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := s.orch.HandleUserTurn(c.Request.Context(), req.SessionID, req.Prompt, req.LLMSettings)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", req.SessionID).Error("Chat turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chatResponse{SessionID: req.SessionID, ResponseText: answer})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.orch.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

type newSessionRequest struct {
	SessionName string `json:"session_name"`
}

func (s *Server) createSession(c *gin.Context) {
	var req newSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.orch.CreateSession(c.Request.Context(), req.SessionName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) deleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	report, err := s.orch.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listProviders(c *gin.Context) {
	result := make(map[string][]string)
	for _, name := range s.manager.Providers() {
		modelNames := s.manager.ProviderModels(c.Request.Context(), name)
		if modelNames == nil {
			modelNames = []string{}
		}
		result[name] = modelNames
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Snapshot())
}

func (s *Server) updateSettings(c *gin.Context) {
	var req models.LLMSettingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := s.settings.Update(req)
	c.JSON(http.StatusOK, gin.H{
		"message":          "LLM settings updated.",
		"current_settings": current,
	})
}

type resetMemoryRequest struct {
	MemoryType string `json:"memory_type" binding:"required"`
}

func (s *Server) resetMemory(c *gin.Context) {
	var req resetMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.MemoryType != "similarity_index" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "memory type '" + req.MemoryType + "' does not support reset"})
		return
	}

	if err := s.index.Reset(c.Request.Context()); err != nil {
		s.logger.WithError(err).Error("Similarity index reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "The similarity index has been reset."})
}
