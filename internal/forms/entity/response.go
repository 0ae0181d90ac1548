package entity

import "time"

// Response 一次填写提交
type Response struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	FormID          string    `json:"formId" gorm:"size:36;not null;index"`
	UserID          *string   `json:"userId" gorm:"size:36;index"` // 匿名提交为空
	RespondentEmail string    `json:"respondentEmail,omitempty" gorm:"size:255"`
	IPAddress       string    `json:"ipAddress" gorm:"size:64"`
	UserAgent       string    `json:"userAgent" gorm:"size:512"`
	StartedAt       time.Time `json:"startedAt"`
	SubmittedAt     time.Time `json:"submittedAt" gorm:"index"`
	CompletionTime  int       `json:"completionTime"` // 秒
	CreatedAt       time.Time `json:"createdAt"`

	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:ResponseID"`
}

func (Response) TableName() string {
	return "responses"
}

// Answer 单题答案：选择题记录 OptionID，其余题型记录 Value
type Answer struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	ResponseID string    `json:"responseId" gorm:"size:36;not null;index"`
	QuestionID string    `json:"questionId" gorm:"size:36;not null;index"`
	OptionID   *string   `json:"optionId" gorm:"size:36"`
	Value      *string   `json:"value" gorm:"type:text"`
	CreatedAt  time.Time `json:"createdAt"`

	Option *Option `json:"option,omitempty" gorm:"foreignKey:OptionID"`
}

func (Answer) TableName() string {
	return "answers"
}

// Text 单元格文本：优先自由文本，其次选项标签
func (a Answer) Text() string {
	if a.Value != nil && *a.Value != "" {
		return *a.Value
	}
	if a.Option != nil {
		return a.Option.Label
	}
	return ""
}
