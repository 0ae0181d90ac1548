package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
)

// DefaultSessionTTL 会话有效期
const DefaultSessionTTL = 30 * 24 * time.Hour

// ErrInvalidSession 会话不存在、过期或用户已删除
var ErrInvalidSession = NewUnauthorizedError("Unauthorized")

// AuthService 登录会话服务，OAuth 回调拿到用户资料后调用
type AuthService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	ttl         time.Duration
	now         func() time.Time
	newID       func() string
}

func NewAuthService(userRepo *repository.UserRepository, sessionRepo *repository.SessionRepository, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		ttl:         ttl,
		now:         time.Now,
		newID:       newUUID,
	}
}

// GithubProfile GitHub 用户资料
type GithubProfile struct {
	GithubID  string
	Email     string
	Username  string
	Name      string
	AvatarURL string
}

// UpsertGithubUser 按 GitHub ID 创建或更新用户
func (s *AuthService) UpsertGithubUser(ctx context.Context, p GithubProfile) (*entity.User, error) {
	if p.GithubID == "" || p.Email == "" {
		return nil, NewInvalidError("githubId and email are required")
	}
	user, err := s.userRepo.FindByGithubID(ctx, p.GithubID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user == nil {
		user = &entity.User{ID: s.newID(), GithubID: p.GithubID}
	}
	user.Email = strings.ToLower(strings.TrimSpace(p.Email))
	user.Username = p.Username
	user.Name = p.Name
	user.AvatarURL = p.AvatarURL

	if user.CreatedAt.IsZero() {
		err = s.userRepo.Create(ctx, user)
	} else {
		err = s.userRepo.Update(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// CreateSession 为用户创建新会话
func (s *AuthService) CreateSession(ctx context.Context, userID string) (*entity.Session, error) {
	session := &entity.Session{
		ID:        strings.ReplaceAll(s.newID()+s.newID(), "-", ""),
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ValidateSession 校验会话。过期或用户不存在的会话会被删除；剩余不足一半有效期时自动续期
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*entity.User, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if session.IsExpired(now) {
		if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, ErrInvalidSession
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
				return nil, fmt.Errorf("delete orphaned session: %w", err)
			}
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}

	if session.ExpiresAt.Sub(now) < s.ttl/2 {
		if err := s.sessionRepo.Extend(ctx, session.ID, now.Add(s.ttl)); err != nil {
			return nil, fmt.Errorf("extend session: %w", err)
		}
	}
	return user, nil
}

// Identify 中间件使用：会话ID -> 用户ID、邮箱
func (s *AuthService) Identify(ctx context.Context, sessionID string) (string, string, error) {
	user, err := s.ValidateSession(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	return user.ID, user.Email, nil
}

// InvalidateSession 注销会话
func (s *AuthService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateUserSessions 注销用户的全部会话
func (s *AuthService) InvalidateUserSessions(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

// PurgeExpiredSessions 清理已过期会话，返回删除条数
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}

// GetUser 获取用户
func (s *AuthService) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("User not found")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
