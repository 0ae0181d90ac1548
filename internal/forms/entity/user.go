package entity

import "time"

// User 用户（通过 GitHub OAuth 登录）
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	GithubID  string    `json:"githubId" gorm:"size:64;uniqueIndex"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex"`
	Username  string    `json:"username" gorm:"size:100"`
	Name      string    `json:"name" gorm:"size:255"`
	AvatarURL string    `json:"avatarUrl" gorm:"size:1024"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Session 登录会话
type Session struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	UserID    string    `json:"userId" gorm:"size:36;not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsExpired 会话是否过期
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
