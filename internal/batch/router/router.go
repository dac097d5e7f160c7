package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/batch/service"
	"github.com/ggasparott/FastMission/internal/catalog"
	"github.com/ggasparott/FastMission/internal/config"
	"github.com/ggasparott/FastMission/internal/database"
	"github.com/ggasparott/FastMission/internal/middleware"
	"github.com/ggasparott/FastMission/internal/pipeline"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Dependencies are the services exposed over HTTP.
type Dependencies struct {
	DB         *gorm.DB
	Batches    *service.BatchService
	Catalog    *catalog.Service
	Dispatcher *pipeline.Dispatcher
	CORS       *config.CORSConfig
}

// New builds the HTTP handler with every route of the service.
func New(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if deps.CORS != nil {
		r.Use(middleware.CORS(deps.CORS))
	}

	r.GET("/healthz", func(c *gin.Context) {
		if err := database.HealthCheck(deps.DB); err != nil {
			slog.ErrorContext(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	NewBatchRouter(deps.Batches, deps.Dispatcher).Register(api.Group("/batches"))
	NewCatalogRouter(deps.Catalog).Register(api.Group("/ncm"))

	return r
}

// writeError maps domain errors to status codes. Internal details are logged, never returned.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		writeBadRequest(c, "batch id is invalid")
		return uuid.Nil, false
	}
	return id, true
}
