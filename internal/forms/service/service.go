package service

import (
	"context"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/config"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"github.com/Unknown-Bytes/formerr/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier 向表单所有者推送实时事件
type Notifier interface {
	Publish(userID, eventType string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, interface{}) {}

// Services 服务集合
type Services struct {
	Auth      *AuthService
	Form      *FormService
	Draft     *DraftService
	Response  *ResponseService
	Export    *ExportService
	Analytics *AnalyticsService
}

// NewServices 创建服务集合。rdb 为空时草稿存于内存；未配置 MinIO 时导出归档不可用
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	var drafts storage.KVStore
	if rdb != nil {
		drafts = storage.NewRedisStore(rdb, "formerr:draft:")
	} else {
		drafts = storage.NewMemoryStore()
	}

	formSvc := NewFormService(db, repos)
	exportSvc := NewExportService(repos)

	archive, err := storage.NewMinIOArchive(cfg.MinIO, logger)
	if err != nil {
		logger.Warn("MinIO unavailable, export archiving disabled", zap.Error(err))
	} else if archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := archive.EnsureBucket(ctx); err != nil {
			logger.Warn("MinIO bucket check failed, export archiving disabled", zap.Error(err))
		} else {
			exportSvc.SetArchive(archive)
		}
		cancel()
	}

	return &Services{
		Auth:      NewAuthService(repos.User, repos.Session, cfg.Session.MaxAge),
		Form:      formSvc,
		Draft:     NewDraftService(drafts, formSvc, cfg.Redis.DraftTTL),
		Response:  NewResponseService(repos, logger),
		Export:    exportSvc,
		Analytics: NewAnalyticsService(repos, cfg.Public.BaseURL),
	}
}

// SetNotifier 注入实时推送
func (s *Services) SetNotifier(n Notifier) {
	s.Form.notifier = n
	s.Response.notifier = n
}

func newUUID() string {
	return uuid.New().String()
}

// dayKey 统计日期键（UTC）
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
