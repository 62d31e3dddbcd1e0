package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"library/internal/loans"
	"library/internal/storage"
)

// Server bundles the HTTP handlers with their collaborators
type Server struct {
	db     storage.Storage
	loans  *loans.Service
	logger *zap.Logger
}

// NewServer creates the HTTP handler set
func NewServer(db storage.Storage, loanService *loans.Service, logger *zap.Logger) *Server {
	return &Server{db: db, loans: loanService, logger: logger}
}

// SetupRoutes wires all endpoints into a gin engine
func (s *Server) SetupRoutes() *gin.Engine {
	routes := gin.New()
	routes.Use(gin.Recovery())

	routes.GET("/health", s.Health)

	routes.POST("/books", s.CreateBook)
	routes.GET("/books/:id", s.GetBook)
	routes.POST("/books/:id/loan", s.LoanBook)
	routes.POST("/books/:id/return", s.ReturnBook)

	routes.POST("/members", s.CreateMember)

	routes.POST("/loans/:id/extend-due-date", s.ExtendDueDate)

	return routes
}
