package repository

import (
	"context"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"gorm.io/gorm"
)

// ShareRepository 分享仓库
type ShareRepository struct {
	db *gorm.DB
}

// NewShareRepository 创建分享仓库
func NewShareRepository(db *gorm.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Create 创建分享链接
func (r *ShareRepository) Create(ctx context.Context, share *entity.FormShare) error {
	return r.db.WithContext(ctx).Create(share).Error
}

// ListByForm 表单的分享链接
func (r *ShareRepository) ListByForm(ctx context.Context, formID string) ([]entity.FormShare, error) {
	var shares []entity.FormShare
	err := r.db.WithContext(ctx).Where("form_id = ?", formID).Order("created_at DESC").Find(&shares).Error
	return shares, err
}

// FindByToken 根据 token 查找分享链接
func (r *ShareRepository) FindByToken(ctx context.Context, token string) (*entity.FormShare, error) {
	var share entity.FormShare
	if err := r.db.WithContext(ctx).Where("share_token = ?", token).First(&share).Error; err != nil {
		return nil, notFound(err)
	}
	return &share, nil
}

// ConsumeUse 使用次数 +1；已过期或用完时返回 false
func (r *ShareRepository) ConsumeUse(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.FormShare{}).
		Where("id = ?", id).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("max_uses = 0 OR current_uses < max_uses").
		Update("current_uses", gorm.Expr("current_uses + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateEvent 记录分享行为
func (r *ShareRepository) CreateEvent(ctx context.Context, event *entity.ShareEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CountEvents 表单分享行为数，按平台分组
func (r *ShareRepository) CountEvents(ctx context.Context, formID string) (map[string]int64, error) {
	var rows []struct {
		Platform string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&entity.ShareEvent{}).
		Select("platform, COUNT(*) AS total").
		Where("form_id = ?", formID).
		Group("platform").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Platform] = row.Total
	}
	return out, nil
}
