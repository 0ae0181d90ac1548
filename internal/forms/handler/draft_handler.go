package handler

import (
	"net/http"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/gin-gonic/gin"
)

// DraftHandler 表单编排草稿
type DraftHandler struct {
	svc *service.DraftService
}

func NewDraftHandler(svc *service.DraftService) *DraftHandler {
	return &DraftHandler{svc: svc}
}

// RegisterRoutes 挂载 /drafts 路由
func (h *DraftHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/flush", h.Flush)

	g.POST("/:id/sections", h.AddSection)
	g.POST("/:id/sections/reorder", h.ReorderSections)
	g.PATCH("/:id/sections/:sectionId", h.UpdateSection)
	g.DELETE("/:id/sections/:sectionId", h.DeleteSection)

	g.POST("/:id/questions", h.AddQuestion)
	g.POST("/:id/questions/reorder", h.ReorderQuestions)
	g.PATCH("/:id/questions/:questionId", h.UpdateQuestion)
	g.DELETE("/:id/questions/:questionId", h.DeleteQuestion)
	g.POST("/:id/questions/:questionId/move", h.MoveQuestion)
}

// Create POST /drafts
func (h *DraftHandler) Create(c *gin.Context) {
	var req service.CreateDraftReq
	if !bindJSON(c, &req) {
		return
	}
	draft, err := h.svc.CreateDraft(c.Request.Context(), GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, draft)
}

// Get GET /drafts/:id
func (h *DraftHandler) Get(c *gin.Context) {
	draft, err := h.svc.GetDraft(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, draft)
}

// Delete DELETE /drafts/:id
func (h *DraftHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteDraft(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"id": c.Param("id")})
}

// Flush POST /drafts/:id/flush，失败时整体返回 {success:false, error}
func (h *DraftHandler) Flush(c *gin.Context) {
	result, err := h.svc.Flush(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		status, message := errorStatus(err)
		if status == http.StatusInternalServerError {
			_ = c.Error(err)
			message = "Internal server error"
		}
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}
	c.JSON(http.StatusOK, result)
}

// mutate 执行一次草稿编辑并返回最新草稿
func (h *DraftHandler) mutate(c *gin.Context, status int, fn func(d *builder.Draft) error) {
	draft, err := h.svc.Mutate(c.Request.Context(), GetUserID(c), c.Param("id"), fn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, gin.H{"data": draft})
}

// insert 执行一次新增并同时返回新元素ID
func (h *DraftHandler) insert(c *gin.Context, fn func(d *builder.Draft) (string, error)) {
	var id string
	draft, err := h.svc.Mutate(c.Request.Context(), GetUserID(c), c.Param("id"), func(d *builder.Draft) error {
		var err error
		id, err = fn(d)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": draft, "id": id})
}

// AddSection POST /drafts/:id/sections
func (h *DraftHandler) AddSection(c *gin.Context) {
	var req builder.SectionInput
	if !bindJSON(c, &req) {
		return
	}
	h.insert(c, func(d *builder.Draft) (string, error) {
		return d.AddSection(req), nil
	})
}

// UpdateSection PATCH /drafts/:id/sections/:sectionId
func (h *DraftHandler) UpdateSection(c *gin.Context) {
	var req builder.SectionPatch
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.UpdateSection(c.Param("sectionId"), req)
	})
}

// DeleteSection DELETE /drafts/:id/sections/:sectionId
func (h *DraftHandler) DeleteSection(c *gin.Context) {
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.DeleteSection(c.Param("sectionId"))
	})
}

type reorderReq struct {
	SectionID string   `json:"sectionId"`
	IDs       []string `json:"ids" binding:"required"`
}

// ReorderSections POST /drafts/:id/sections/reorder
func (h *DraftHandler) ReorderSections(c *gin.Context) {
	var req reorderReq
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.ReorderSections(req.IDs)
	})
}

// AddQuestion POST /drafts/:id/questions
func (h *DraftHandler) AddQuestion(c *gin.Context) {
	var req builder.QuestionInput
	if !bindJSON(c, &req) {
		return
	}
	h.insert(c, func(d *builder.Draft) (string, error) {
		return d.AddQuestion(req)
	})
}

// UpdateQuestion PATCH /drafts/:id/questions/:questionId
func (h *DraftHandler) UpdateQuestion(c *gin.Context) {
	var req builder.QuestionPatch
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.UpdateQuestion(c.Param("questionId"), req)
	})
}

// DeleteQuestion DELETE /drafts/:id/questions/:questionId
func (h *DraftHandler) DeleteQuestion(c *gin.Context) {
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.DeleteQuestion(c.Param("questionId"))
	})
}

// ReorderQuestions POST /drafts/:id/questions/reorder
func (h *DraftHandler) ReorderQuestions(c *gin.Context) {
	var req reorderReq
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.ReorderQuestions(req.SectionID, req.IDs)
	})
}

// MoveQuestion POST /drafts/:id/questions/:questionId/move
func (h *DraftHandler) MoveQuestion(c *gin.Context) {
	var req struct {
		SectionID string `json:"sectionId" binding:"required"`
		Position  int    `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, http.StatusOK, func(d *builder.Draft) error {
		return d.MoveQuestion(c.Param("questionId"), req.SectionID, req.Position)
	})
}
