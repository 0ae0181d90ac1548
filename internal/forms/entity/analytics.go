package entity

import (
	"time"

	"gorm.io/datatypes"
)

// FormAnalytics 表单每日统计，(form_id, date) 唯一
type FormAnalytics struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:36"`
	FormID             string    `json:"formId" gorm:"size:36;not null;uniqueIndex:idx_form_analytics_form_date"`
	Date               string    `json:"date" gorm:"size:10;not null;uniqueIndex:idx_form_analytics_form_date"` // YYYY-MM-DD
	Views              int       `json:"views"`
	StartedResponses   int       `json:"startedResponses"`
	CompletedResponses int       `json:"completedResponses"`
	AvgCompletionTime  int       `json:"avgCompletionTime"` // 秒
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (FormAnalytics) TableName() string {
	return "form_analytics"
}

// FormShare 分享链接
type FormShare struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	FormID      string     `json:"formId" gorm:"size:36;not null;index"`
	ShareToken  string     `json:"shareToken" gorm:"size:64;not null;uniqueIndex"`
	Type        string     `json:"type" gorm:"size:20;not null"` // link/embed/qr
	ExpiresAt   *time.Time `json:"expiresAt"`
	MaxUses     int        `json:"maxUses"` // 0 表示不限
	CurrentUses int        `json:"currentUses"`
	CreatedBy   string     `json:"createdBy" gorm:"size:36"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (FormShare) TableName() string {
	return "form_shares"
}

// 分享链接类型
const (
	ShareTypeLink  = "link"
	ShareTypeEmbed = "embed"
	ShareTypeQR    = "qr"
)

// IsValidShareType 是否为合法分享类型
func IsValidShareType(t string) bool {
	return t == ShareTypeLink || t == ShareTypeEmbed || t == ShareTypeQR
}

// ShareEvent 分享行为记录
type ShareEvent struct {
	ID        string            `json:"id" gorm:"primaryKey;size:36"`
	FormID    string            `json:"formId" gorm:"size:36;not null;index"`
	Platform  string            `json:"platform" gorm:"size:50;not null"`
	EventData datatypes.JSONMap `json:"eventData"`
	CreatedBy string            `json:"createdBy" gorm:"size:36"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (ShareEvent) TableName() string {
	return "form_share_events"
}
