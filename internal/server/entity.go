package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
)

type createEntityRequest struct {
	Name     string         `json:"name"`
	Parent   string         `json:"parent"`
	Metadata map[string]any `json:"metadata"`
}

type entityResponse struct {
	entitydomain.Response
	UsageSummary *usagedomain.UsageDetails `json:"usageSummary,omitempty"`
}

func (s *Server) CreateEntity(c *gin.Context) {
	var req createEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	e, err := s.entitySvc.Create(c.Request.Context(), entitydomain.CreateRequest{
		EntityType: c.Param("entity"),
		Name:       req.Name,
		Parent:     req.Parent,
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": e.Response()})
}

func (s *Server) ListEntities(c *gin.Context) {
	items, err := s.entitySvc.ListByType(c.Request.Context(), c.Param("entity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]entitydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, items[i].Response())
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEntityByID(c *gin.Context) {
	e, err := s.entitySvc.GetByID(c.Request.Context(), c.Param("entity"), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondEntity(c, e)
}

func (s *Server) GetEntityByName(c *gin.Context) {
	e, err := s.entitySvc.GetByName(c.Request.Context(), c.Param("entity"), c.Param("fqn"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondEntity(c, e)
}

// respondEntity embeds the latest usage record when fields asks for usageSummary.
func (s *Server) respondEntity(c *gin.Context, e *entitydomain.Entity) {
	resp := entityResponse{Response: e.Response()}
	if hasField(c.Query("fields"), "usageSummary") {
		summary, err := s.usageSvc.LatestUsage(c.Request.Context(), e.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		resp.UsageSummary = summary
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
