package entity

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultThankYouMessage 默认感谢语
const DefaultThankYouMessage = "Obrigado por responder nosso formulário!"

// Form 表单
type Form struct {
	ID                 string                      `json:"id" gorm:"primaryKey;size:36"`
	UserID             string                      `json:"userId" gorm:"size:36;not null;index"`
	Title              string                      `json:"title" gorm:"size:255;not null"`
	Description        string                      `json:"description" gorm:"type:text"`
	IsPrivate          bool                        `json:"isPrivate"`
	MaxResponses       int                         `json:"maxResponses"` // 0 表示不限
	AllowedEmails      datatypes.JSONSlice[string] `json:"allowedEmails"`
	AllowAnonymous     bool                        `json:"allowAnonymous"`
	Status             string                      `json:"status" gorm:"size:20;not null;index"` // draft/active/paused/archived
	ThankYouMessage    string                      `json:"thankYouMessage" gorm:"type:text"`
	RedirectURL        *string                     `json:"redirectUrl" gorm:"size:1024"`
	PasswordProtected  bool                        `json:"passwordProtected"`
	FormPassword       string                      `json:"-" gorm:"size:255"` // bcrypt
	EmailNotifications bool                        `json:"emailNotifications"`
	WebhookURL         *string                     `json:"webhookUrl" gorm:"size:1024"`
	ExpiresAt          *time.Time                  `json:"expiresAt"`
	PublishedAt        *time.Time                  `json:"publishedAt"`
	CreatedAt          time.Time                   `json:"createdAt"`
	UpdatedAt          time.Time                   `json:"updatedAt"`

	Sections []Section `json:"sections,omitempty" gorm:"foreignKey:FormID"`
}

func (Form) TableName() string {
	return "forms"
}

// 表单状态
const (
	FormStatusDraft    = "draft"
	FormStatusActive   = "active"
	FormStatusPaused   = "paused"
	FormStatusArchived = "archived"
)

// ValidFormTransitions 合法的表单状态流转（同状态重复设置视为幂等）
var ValidFormTransitions = map[string][]string{
	FormStatusDraft:    {FormStatusDraft, FormStatusActive, FormStatusArchived},
	FormStatusActive:   {FormStatusActive, FormStatusPaused, FormStatusDraft, FormStatusArchived},
	FormStatusPaused:   {FormStatusPaused, FormStatusActive, FormStatusDraft, FormStatusArchived},
	FormStatusArchived: {FormStatusArchived},
}

// IsValidFormStatus 是否为合法状态值
func IsValidFormStatus(status string) bool {
	_, ok := ValidFormTransitions[status]
	return ok
}

// CanTransition 检查状态流转
func CanTransition(from, to string) bool {
	for _, s := range ValidFormTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOwnedBy 所有权检查
func (f *Form) IsOwnedBy(userID string) bool {
	return f != nil && userID != "" && f.UserID == userID
}

// AcceptsEmail 私有表单的邮箱白名单检查（大小写不敏感）
func (f *Form) AcceptsEmail(email string) bool {
	for _, allowed := range f.AllowedEmails {
		if equalFoldTrim(allowed, email) {
			return true
		}
	}
	return false
}

// IsExpired 是否已过截止时间
func (f *Form) IsExpired(now time.Time) bool {
	return f.ExpiresAt != nil && !now.Before(*f.ExpiresAt)
}
