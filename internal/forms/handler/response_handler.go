package handler

import (
	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/gin-gonic/gin"
)

// ResponseHandler 公开表单与提交
type ResponseHandler struct {
	svc *service.ResponseService
}

func NewResponseHandler(svc *service.ResponseService) *ResponseHandler {
	return &ResponseHandler{svc: svc}
}

// GetPublicForm GET /f/:id
func (h *ResponseHandler) GetPublicForm(c *gin.Context) {
	form, err := h.svc.GetPublicForm(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, form)
}

// Submit POST /f/:id/responses，登录可选
func (h *ResponseHandler) Submit(c *gin.Context) {
	var req service.SubmitResponseReq
	if !bindJSON(c, &req) {
		return
	}
	who := service.Respondent{
		UserID:    GetUserID(c),
		Email:     GetUserEmail(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	result, err := h.svc.Submit(c.Request.Context(), c.Param("id"), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, result)
}
