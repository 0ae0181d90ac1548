package handler

import (
	"net/http"

	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 统计与分享
type AnalyticsHandler struct {
	svc *service.AnalyticsService
}

func NewAnalyticsHandler(svc *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// RegisterRoutes 挂载在 /forms/:id 下
func (h *AnalyticsHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/analytics/share", h.RecordShare)
	g.GET("/stats", h.Stats)
	g.POST("/shares", h.CreateShare)
	g.GET("/shares", h.ListShares)
}

// RecordShare POST /forms/:id/analytics/share
func (h *AnalyticsHandler) RecordShare(c *gin.Context) {
	var req service.RecordShareReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.RecordShare(c.Request.Context(), c.Param("id"), GetUserID(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Stats GET /forms/:id/stats
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, stats)
}

// CreateShare POST /forms/:id/shares
func (h *AnalyticsHandler) CreateShare(c *gin.Context) {
	var req service.CreateShareReq
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	link, err := h.svc.CreateShare(c.Request.Context(), c.Param("id"), GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, link)
}

// ListShares GET /forms/:id/shares
func (h *AnalyticsHandler) ListShares(c *gin.Context) {
	links, err := h.svc.ListShares(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, links)
}

// ResolveShare GET /s/:token
func (h *AnalyticsHandler) ResolveShare(c *gin.Context) {
	link, err := h.svc.ResolveShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"formId": link.FormID, "url": link.URL})
}
