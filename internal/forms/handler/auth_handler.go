package handler

import (
	"context"
	"errors"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/Unknown-Bytes/formerr/internal/middleware"
	"github.com/gin-gonic/gin"
)

// AuthHandler 当前用户、API token 与登出。OAuth 回调由外部组件完成后调用 CompleteLogin
type AuthHandler struct {
	svc  *service.AuthService
	auth *middleware.Authenticator
}

func NewAuthHandler(svc *service.AuthService, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{svc: svc, auth: auth}
}

// CompleteLogin 保存用户资料、创建会话并写入 cookie
func (h *AuthHandler) CompleteLogin(c *gin.Context, profile service.GithubProfile) (*entity.User, error) {
	ctx := c.Request.Context()
	user, err := h.svc.UpsertGithubUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	session, err := h.svc.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := h.auth.Login(c, session.ID); err != nil {
		_ = h.svc.InvalidateSession(context.WithoutCancel(ctx), session.ID)
		return nil, err
	}
	return user, nil
}

// Me GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.svc.GetUser(c.Request.Context(), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, user)
}

// Logout POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := h.auth.Logout(c)
	if err != nil {
		InternalError(c, err)
		return
	}
	if sessionID != "" {
		if err := h.svc.InvalidateSession(c.Request.Context(), sessionID); err != nil {
			InternalError(c, err)
			return
		}
	}
	c.JSON(200, gin.H{"success": true})
}

// IssueToken POST /auth/token 为当前用户签发 bearer token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	token, expiresAt, err := h.auth.IssueToken(GetUserID(c), GetUserEmail(c))
	if errors.Is(err, middleware.ErrTokensDisabled) {
		respondError(c, service.NewUnavailableError("API tokens are disabled"))
		return
	}
	if err != nil {
		InternalError(c, err)
		return
	}
	Success(c, gin.H{"token": token, "expiresAt": expiresAt})
}

// LogoutAll POST /auth/logout-all 注销该用户的全部会话
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	if _, err := h.auth.Logout(c); err != nil {
		InternalError(c, err)
		return
	}
	if err := h.svc.InvalidateUserSessions(c.Request.Context(), GetUserID(c)); err != nil {
		InternalError(c, err)
		return
	}
	c.JSON(200, gin.H{"success": true})
}
