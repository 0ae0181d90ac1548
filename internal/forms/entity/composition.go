package entity

import (
	"strings"
	"time"
)

// Section 表单分区
type Section struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	FormID      string    `json:"formId" gorm:"size:36;not null;index"`
	Title       string    `json:"title" gorm:"size:255"`
	Description string    `json:"description" gorm:"type:text"`
	Order       int       `json:"order" gorm:"column:sort_order;not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:SectionID"`
}

func (Section) TableName() string {
	return "sections"
}

// Question 问题
type Question struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	SectionID   string    `json:"sectionId" gorm:"size:36;not null;index"`
	FormID      string    `json:"formId" gorm:"size:36;not null;index"`
	Title       string    `json:"title" gorm:"size:500;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Type        string    `json:"type" gorm:"size:40;not null"`
	Required    bool      `json:"required"`
	Order       int       `json:"order" gorm:"column:sort_order;not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// Option 选项
type Option struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	QuestionID string    `json:"questionId" gorm:"size:36;not null;index"`
	Label      string    `json:"label" gorm:"size:500;not null"`
	Order      int       `json:"order" gorm:"column:sort_order;not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Option) TableName() string {
	return "options"
}

// 问题类型
const (
	QuestionTypeShortText      = "short-text"
	QuestionTypeParagraph      = "paragraph"
	QuestionTypeSingleChoice   = "multiple-choice-single"
	QuestionTypeMultipleChoice = "multiple-choice-multiple"
	QuestionTypeDropdown       = "dropdown"
	QuestionTypeDate           = "date"
	QuestionTypeTime           = "time"
	QuestionTypeDateTime       = "datetime"
	QuestionTypeRating         = "rating"
)

// questionTypeOptions 问题类型 -> 是否需要选项
var questionTypeOptions = map[string]bool{
	QuestionTypeShortText:      false,
	QuestionTypeParagraph:      false,
	QuestionTypeSingleChoice:   true,
	QuestionTypeMultipleChoice: true,
	QuestionTypeDropdown:       true,
	QuestionTypeDate:           false,
	QuestionTypeTime:           false,
	QuestionTypeDateTime:       false,
	QuestionTypeRating:         true,
}

// IsValidQuestionType 是否为合法问题类型
func IsValidQuestionType(t string) bool {
	_, ok := questionTypeOptions[t]
	return ok
}

// QuestionTypeHasOptions 选择类/下拉/评分题需要选项
func QuestionTypeHasOptions(t string) bool {
	return questionTypeOptions[t]
}

// IsSingleSelect 只能选一个选项的题型
func IsSingleSelect(t string) bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeDropdown || t == QuestionTypeRating
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
