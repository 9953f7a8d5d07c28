// Package httpServer exposes diagnostics over HTTP: channel bindings,
// live codec streams, connected peers and Prometheus metrics.
package httpServer

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgelink/internal/registry"
	"edgelink/internal/transport"
)

// ChannelInfo describes one declared channel binding.
type ChannelInfo struct {
	Event      string `json:"event"`
	Type       string `json:"type"`
	ErrorEvent string `json:"error_event"`
}

// Server wraps the HTTP server with dependencies
type Server struct {
	router   *gin.Engine
	registry *registry.Registry
	trServer *transport.Server
	channels []ChannelInfo
}

// New creates a new HTTP server
func New(reg *registry.Registry, trServer *transport.Server, channels []ChannelInfo) *Server {
	s := &Server{
		registry: reg,
		trServer: trServer,
		channels: channels,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/v1/channels", s.handleListChannels)
		api.GET("/v1/streams", s.handleListStreams)
		api.GET("/v1/connections", s.handleListConnections)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels": s.channels,
		"count":    len(s.channels),
	})
}

func (s *Server) handleListStreams(c *gin.Context) {
	streams := s.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (s *Server) handleListConnections(c *gin.Context) {
	conns := s.trServer.Connections()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"count":       len(conns),
	})
}
