package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
)

type reportUsageRequest struct {
	Date  string `json:"date"`
	Count *int64 `json:"count"`
}

type usageQuery struct {
	Date string `form:"date"`
	Days string `form:"days"`
}

func bindReport(c *gin.Context) (reportUsageRequest, bool) {
	var req reportUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}
	if req.Count == nil {
		AbortWithError(c, newValidationError("count", "required", "count is required"))
		return req, false
	}
	return req, true
}

func bindUsageQuery(c *gin.Context) (string, *int, bool) {
	var query usageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return "", nil, false
	}
	days, err := parseOptionalInt(query.Days)
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be an integer"))
		return "", nil, false
	}
	return strings.TrimSpace(query.Date), days, true
}

func (s *Server) ReportUsage(c *gin.Context) {
	req, ok := bindReport(c)
	if !ok {
		return
	}

	record, err := s.usageSvc.ReportUsage(c.Request.Context(), usagedomain.ReportUsageRequest{
		EntityType: c.Param("entity"),
		EntityID:   c.Param("id"),
		Date:       strings.TrimSpace(req.Date),
		Count:      *req.Count,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) ReportUsageByName(c *gin.Context) {
	req, ok := bindReport(c)
	if !ok {
		return
	}

	record, err := s.usageSvc.ReportUsageByName(c.Request.Context(), usagedomain.ReportUsageByNameRequest{
		EntityType:         c.Param("entity"),
		FullyQualifiedName: c.Param("fqn"),
		Date:               strings.TrimSpace(req.Date),
		Count:              *req.Count,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) GetUsage(c *gin.Context) {
	date, days, ok := bindUsageQuery(c)
	if !ok {
		return
	}

	resp, err := s.usageSvc.GetUsage(c.Request.Context(), usagedomain.GetUsageRequest{
		EntityType: c.Param("entity"),
		EntityID:   c.Param("id"),
		Date:       date,
		Days:       days,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUsageByName(c *gin.Context) {
	date, days, ok := bindUsageQuery(c)
	if !ok {
		return
	}

	resp, err := s.usageSvc.GetUsageByName(c.Request.Context(), usagedomain.GetUsageByNameRequest{
		EntityType:         c.Param("entity"),
		FullyQualifiedName: c.Param("fqn"),
		Date:               date,
		Days:               days,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ComputePercentile(c *gin.Context) {
	entityType := c.Param("entity")
	date := c.Param("date")

	if err := s.usageSvc.ComputePercentile(c.Request.Context(), entityType, date); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
