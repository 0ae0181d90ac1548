package handler

import (
	"fmt"
	"net/http"

	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/gin-gonic/gin"
)

// ExportHandler 提交导出
type ExportHandler struct {
	svc *service.ExportService
}

func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// RegisterRoutes 挂载在 /forms/:id 下
func (h *ExportHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/export", h.Export)
	g.POST("/export/archive", h.Archive)
}

// Export GET /forms/:id/export?format=json|csv|xlsx|yaml
// JSON 直接作为响应体返回，其余格式作为附件下载
func (h *ExportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.ExportFormatJSON)
	result, err := h.svc.Export(c.Request.Context(), c.Param("id"), GetUserID(c), format)
	if err != nil {
		respondError(c, err)
		return
	}
	if format != service.ExportFormatJSON {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	}
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Archive POST /forms/:id/export/archive?format=...
func (h *ExportHandler) Archive(c *gin.Context) {
	format := c.DefaultQuery("format", service.ExportFormatCSV)
	obj, err := h.svc.Archive(c.Request.Context(), c.Param("id"), GetUserID(c), format)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, obj)
}
