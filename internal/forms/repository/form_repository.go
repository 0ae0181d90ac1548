package repository

import (
	"context"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"gorm.io/gorm"
)

// FormRepository 表单仓库
type FormRepository struct {
	db *gorm.DB
}

// NewFormRepository 创建表单仓库
func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

// FindByID 根据ID查找表单（不含分区树）
func (r *FormRepository) FindByID(ctx context.Context, id string) (*entity.Form, error) {
	var form entity.Form
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&form).Error; err != nil {
		return nil, notFound(err)
	}
	return &form, nil
}

// FindTree 加载表单及其分区/问题/选项，全部按 order 排序
func (r *FormRepository) FindTree(ctx context.Context, id string) (*entity.Form, error) {
	var form entity.Form
	err := r.db.WithContext(ctx).
		Preload("Sections", byOrder).
		Preload("Sections.Questions", byOrder).
		Preload("Sections.Questions.Options", byOrder).
		Where("id = ?", id).
		First(&form).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &form, nil
}

// ListByOwner 用户的表单，最近更新在前
func (r *FormRepository) ListByOwner(ctx context.Context, userID string) ([]entity.Form, error) {
	var forms []entity.Form
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&forms).Error
	return forms, err
}

// Save 保存表单全部字段
func (r *FormRepository) Save(ctx context.Context, form *entity.Form) error {
	return r.db.WithContext(ctx).Omit("Sections").Save(form).Error
}

// ListQuestions 表单全部问题：先按分区顺序，再按问题顺序
func (r *FormRepository) ListQuestions(ctx context.Context, formID string) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.WithContext(ctx).
		Model(&entity.Question{}).
		Joins("JOIN sections ON sections.id = questions.section_id").
		Where("questions.form_id = ?", formID).
		Order("sections.sort_order ASC, questions.sort_order ASC").
		Preload("Options", byOrder).
		Find(&questions).Error
	return questions, err
}

// DeleteCascade 在一个事务内删除表单及其全部从属数据
func (r *FormRepository) DeleteCascade(ctx context.Context, formID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		responseIDs := tx.Model(&entity.Response{}).Select("id").Where("form_id = ?", formID)
		if err := tx.Where("response_id IN (?)", responseIDs).Delete(&entity.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", formID).Delete(&entity.Response{}).Error; err != nil {
			return err
		}
		if err := DeleteComposition(tx, formID); err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", formID).Delete(&entity.FormAnalytics{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", formID).Delete(&entity.FormShare{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", formID).Delete(&entity.ShareEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", formID).Delete(&entity.Form{}).Error
	})
}

// DeleteComposition 删除表单的分区/问题/选项，需在调用方事务中执行
func DeleteComposition(tx *gorm.DB, formID string) error {
	questionIDs := tx.Model(&entity.Question{}).Select("id").Where("form_id = ?", formID)
	if err := tx.Where("question_id IN (?)", questionIDs).Delete(&entity.Option{}).Error; err != nil {
		return err
	}
	if err := tx.Where("form_id = ?", formID).Delete(&entity.Question{}).Error; err != nil {
		return err
	}
	return tx.Where("form_id = ?", formID).Delete(&entity.Section{}).Error
}

func byOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC")
}
