package handler

import (
	"net/http"

	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/Unknown-Bytes/formerr/internal/forms/sse"
	"github.com/Unknown-Bytes/formerr/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Auth      *AuthHandler
	Form      *FormHandler
	Draft     *DraftHandler
	Response  *ResponseHandler
	Export    *ExportHandler
	Analytics *AnalyticsHandler
	SSE       *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, auth *middleware.Authenticator, hub *sse.Hub) *Handlers {
	return &Handlers{
		Auth:      NewAuthHandler(svc.Auth, auth),
		Form:      NewFormHandler(svc.Form),
		Draft:     NewDraftHandler(svc.Draft),
		Response:  NewResponseHandler(svc.Response),
		Export:    NewExportHandler(svc.Export),
		Analytics: NewAnalyticsHandler(svc.Analytics),
		SSE:       NewSSEHandler(hub),
	}
}

// RegisterRoutes 注册全部业务路由
func (h *Handlers) RegisterRoutes(r gin.IRouter, auth *middleware.Authenticator) {
	// 公开填写
	public := r.Group("", auth.Optional())
	{
		public.GET("/f/:id", h.Response.GetPublicForm)
		public.POST("/f/:id/responses", h.Response.Submit)
		public.GET("/s/:token", h.Analytics.ResolveShare)
	}

	authed := r.Group("", auth.Required())
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.POST("/auth/logout-all", h.Auth.LogoutAll)
		authed.POST("/auth/token", h.Auth.IssueToken)
		authed.GET("/events", h.SSE.Stream)

		h.Form.RegisterRoutes(authed.Group("/forms"))
		forms := authed.Group("/forms/:id")
		h.Export.RegisterRoutes(forms)
		h.Analytics.RegisterRoutes(forms)

		h.Draft.RegisterRoutes(authed.Group("/drafts"))
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// Error 错误响应，统一为 {error: string}
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError 服务器错误响应，原始错误只记录日志
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// errorStatus 业务错误到 HTTP 状态码
func errorStatus(err error) (int, string) {
	if de, ok := service.AsDanglingReference(err); ok {
		return http.StatusBadRequest, de.Error()
	}
	se, ok := service.AsServiceError(err)
	if !ok {
		return http.StatusInternalServerError, ""
	}
	switch se.Code {
	case service.ErrorInvalid:
		return http.StatusBadRequest, se.Message
	case service.ErrorUnauthorized:
		return http.StatusUnauthorized, se.Message
	case service.ErrorForbidden:
		return http.StatusForbidden, se.Message
	case service.ErrorNotFound:
		return http.StatusNotFound, se.Message
	case service.ErrorUnavailable:
		return http.StatusServiceUnavailable, se.Message
	}
	return http.StatusInternalServerError, ""
}

// respondError 把服务层错误写成响应
func respondError(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		InternalError(c, err)
		return
	}
	Error(c, status, message)
}

// bindJSON 解析请求体，失败时已写入 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

// GetUserEmail 从上下文获取用户邮箱
func GetUserEmail(c *gin.Context) string {
	return c.GetString(middleware.ContextUserEmail)
}
