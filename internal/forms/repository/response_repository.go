package repository

import (
	"context"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"gorm.io/gorm"
)

// ResponseRepository 填写记录仓库
type ResponseRepository struct {
	db *gorm.DB
}

// NewResponseRepository 创建填写记录仓库
func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// CreateWithAnalytics 在一个事务内写入提交、答案，并累加当日统计
func (r *ResponseRepository) CreateWithAnalytics(ctx context.Context, resp *entity.Response, day string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Answers").Create(resp).Error; err != nil {
			return err
		}
		if len(resp.Answers) > 0 {
			if err := tx.Omit("Option").Create(&resp.Answers).Error; err != nil {
				return err
			}
		}
		return upsertCompletion(tx, resp.FormID, day, resp.CompletionTime)
	})
}

// CountByForm 表单提交数
func (r *ResponseRepository) CountByForm(ctx context.Context, formID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Response{}).Where("form_id = ?", formID).Count(&count).Error
	return count, err
}

// ListWithAnswers 表单全部提交（含答案与选项标签），最新提交在前
func (r *ResponseRepository) ListWithAnswers(ctx context.Context, formID string) ([]entity.Response, error) {
	var responses []entity.Response
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Answers.Option").
		Where("form_id = ?", formID).
		Order("submitted_at DESC").
		Find(&responses).Error
	return responses, err
}
