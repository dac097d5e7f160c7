package router

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ggasparott/FastMission/internal/catalog"
	"github.com/ggasparott/FastMission/utils"
)

const maxSourceBytes = 64 << 20

// SyncRequest replaces the catalog either from a stored source file or from inline entries.
type SyncRequest struct {
	Source  string                `json:"source,omitempty"`
	Entries []catalog.SourceEntry `json:"entries,omitempty"`
}

// SyncResponse reports a finished catalog sync
type SyncResponse struct {
	Synced int           `json:"synced"`
	Stats  catalog.Stats `json:"stats"`
}

// CatalogRouter exposes code validation and catalog maintenance.
type CatalogRouter struct {
	catalog *catalog.Service
}

func NewCatalogRouter(svc *catalog.Service) *CatalogRouter {
	return &CatalogRouter{catalog: svc}
}

// Register mounts the catalog routes on g.
func (cr *CatalogRouter) Register(g *gin.RouterGroup) {
	g.GET("/validate/:code", cr.HandleValidate)
	g.GET("/autocomplete", cr.HandleAutocomplete)
	g.GET("/search", cr.HandleSearch)
	g.GET("/suggest", cr.HandleSuggest)
	g.GET("/stats", cr.HandleStats)
	g.POST("/sync", cr.HandleSync)
	g.PUT("/sources/:key", cr.HandleImportSource)
}

// HandleValidate handles GET /api/ncm/validate/:code
func (cr *CatalogRouter) HandleValidate(c *gin.Context) {
	c.JSON(http.StatusOK, cr.catalog.Validate(c.Param("code")))
}

// HandleAutocomplete handles GET /api/ncm/autocomplete?prefix=&limit=
func (cr *CatalogRouter) HandleAutocomplete(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		writeBadRequest(c, "missing required query parameter: prefix")
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cr.catalog.Autocomplete(prefix, limit))
}

// HandleSearch handles GET /api/ncm/search?term=&limit=
func (cr *CatalogRouter) HandleSearch(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := cr.catalog.SearchByDescription(c.Query("term"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// HandleSuggest handles GET /api/ncm/suggest?description=&limit=
// Candidate codes for a free-text product description.
func (cr *CatalogRouter) HandleSuggest(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := cr.catalog.SuggestByDescription(c.Query("description"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// HandleStats handles GET /api/ncm/stats
func (cr *CatalogRouter) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, cr.catalog.Stats())
}

// HandleSync handles POST /api/ncm/sync
func (cr *CatalogRouter) HandleSync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx := c.Request.Context()
	var (
		count int
		err   error
	)
	switch {
	case len(req.Entries) > 0:
		count, err = cr.catalog.Sync(ctx, req.Entries)
	case req.Source != "":
		count, err = cr.catalog.SyncFromSource(ctx, req.Source)
	default:
		writeBadRequest(c, "either source or entries is required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SyncResponse{Synced: count, Stats: cr.catalog.Stats()})
}

// HandleImportSource handles PUT /api/ncm/sources/:key
// The body is a JSON array of {code, description}; it is stored under key and synced.
func (cr *CatalogRouter) HandleImportSource(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSourceBytes))
	if err != nil {
		writeBadRequest(c, "failed to read request body")
		return
	}

	count, err := cr.catalog.Import(c.Request.Context(), c.Param("key"), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Synced: count, Stats: cr.catalog.Stats()})
}

func parseLimit(c *gin.Context) (int, bool) {
	_, limit, err := utils.ParsePaginationQuery("", c.Query("limit"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return 0, false
	}
	if limit == nil {
		return 0, true
	}
	return *limit, true
}
