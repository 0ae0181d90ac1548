package repository

import (
	"context"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsRepository 表单统计仓库
type AnalyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository 创建统计仓库
func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

var analyticsKey = []clause.Column{{Name: "form_id"}, {Name: "date"}}

// RecordView 当日浏览数 +1
func (r *AnalyticsRepository) RecordView(ctx context.Context, formID, day string) error {
	row := &entity.FormAnalytics{
		ID:     uuid.New().String(),
		FormID: formID,
		Date:   day,
		Views:  1,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: analyticsKey,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"views":      gorm.Expr("form_analytics.views + 1"),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(row).Error
}

// upsertCompletion 累加当日完成数并更新平均耗时（滚动平均）
func upsertCompletion(tx *gorm.DB, formID, day string, seconds int) error {
	row := &entity.FormAnalytics{
		ID:                 uuid.New().String(),
		FormID:             formID,
		Date:               day,
		StartedResponses:   1,
		CompletedResponses: 1,
		AvgCompletionTime:  seconds,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: analyticsKey,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"started_responses":   gorm.Expr("form_analytics.started_responses + 1"),
			"completed_responses": gorm.Expr("form_analytics.completed_responses + 1"),
			"avg_completion_time": gorm.Expr(
				"(form_analytics.avg_completion_time * form_analytics.completed_responses + ?) / (form_analytics.completed_responses + 1)",
				seconds,
			),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(row).Error
}

// ListRecent 最近 n 天的统计，日期倒序
func (r *AnalyticsRepository) ListRecent(ctx context.Context, formID string, n int) ([]entity.FormAnalytics, error) {
	var rows []entity.FormAnalytics
	err := r.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("date DESC").
		Limit(n).
		Find(&rows).Error
	return rows, err
}
