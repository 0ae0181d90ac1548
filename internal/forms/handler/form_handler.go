package handler

import (
	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/gin-gonic/gin"
)

// FormHandler 表单生命周期
type FormHandler struct {
	svc *service.FormService
}

func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{svc: svc}
}

// RegisterRoutes 挂载 /forms 路由
func (h *FormHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.UpdateDetails)
	g.DELETE("/:id", h.Delete)
	g.PATCH("/:id/status", h.UpdateStatus)
	g.PATCH("/:id/settings", h.UpdateSettings)
}

// Create POST /forms
func (h *FormHandler) Create(c *gin.Context) {
	var req service.CreateFormReq
	if !bindJSON(c, &req) {
		return
	}
	form, err := h.svc.CreateForm(c.Request.Context(), GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, form)
}

// List GET /forms
func (h *FormHandler) List(c *gin.Context) {
	forms, err := h.svc.ListForms(c.Request.Context(), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, forms)
}

// Get GET /forms/:id
func (h *FormHandler) Get(c *gin.Context) {
	form, err := h.svc.GetForm(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, form)
}

// UpdateDetails PATCH /forms/:id
func (h *FormHandler) UpdateDetails(c *gin.Context) {
	var req service.UpdateDetailsReq
	if !bindJSON(c, &req) {
		return
	}
	form, err := h.svc.UpdateDetails(c.Request.Context(), c.Param("id"), GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, form)
}

// UpdateStatus PATCH /forms/:id/status
func (h *FormHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	form, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), GetUserID(c), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, form)
}

// UpdateSettings PATCH /forms/:id/settings
func (h *FormHandler) UpdateSettings(c *gin.Context) {
	patch, err := service.DecodeSettingsPatch(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	form, err := h.svc.UpdateSettings(c.Request.Context(), c.Param("id"), GetUserID(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, form)
}

// Delete DELETE /forms/:id
func (h *FormHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteForm(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"id": c.Param("id")})
}
