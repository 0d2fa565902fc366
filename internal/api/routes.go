// Package api provides HTTP API routing and middleware setup.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/proptrust/backend/internal/api/handlers"
	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/ledger"
	"github.com/proptrust/backend/internal/verification"
)

// Deps are the collaborators the API server needs.
type Deps struct {
	Orchestrator  *verification.Orchestrator
	Tamper        *verification.TamperChecker
	Ledger        ledger.Ledger
	Properties    domain.PropertyRepository
	Verifications domain.VerificationRepository
	Tampers       domain.TamperRepository
	Audits        domain.AuditRepository
	Logger         *slog.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wraps the Gin router and the event hub.
type Server struct {
	router *gin.Engine
	hub    *Hub
	logger *slog.Logger
}

// NewServer assembles routing, middleware and handlers.
func NewServer(deps Deps) *Server {
	hub := NewHub(deps.Logger)
	go hub.Run()
	deps.Orchestrator.SetNotifier(hub)

	verificationHandler := handlers.NewVerificationHandler(
		deps.Orchestrator, deps.Tamper, deps.Properties, deps.Verifications, deps.Logger)
	ledgerHandler := handlers.NewLedgerHandler(
		deps.Ledger, deps.Properties, deps.Verifications, deps.Tampers, deps.Logger)

	router := gin.New()
	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(CORSMiddleware())
	router.Use(NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst).Middleware())

	server := &Server{router: router, hub: hub, logger: deps.Logger}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/verify/upload", verificationHandler.VerifyUpload)
		v1.POST("/tamper/check", verificationHandler.CheckTamper)
		v1.GET("/verification/:property_id", verificationHandler.GetVerification)
		v1.GET("/verification/:property_id/history", verificationHandler.GetHistory)
		v1.DELETE("/verification/:property_id", verificationHandler.DeleteVerification)
		v1.GET("/properties", verificationHandler.SearchProperties)
		v1.GET("/ledger/status", ledgerHandler.Status)
		v1.GET("/statistics", ledgerHandler.Statistics)
		v1.GET("/events", hub.Subscribe)
	}

	return server
}

// Handler exposes the router for the HTTP server.
func (s *Server) Handler() *gin.Engine { return s.router }

// Close shuts the event hub down.
func (s *Server) Close() { s.hub.Close() }
