package repository

import (
	"errors"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	User      *UserRepository
	Session   *SessionRepository
	Form      *FormRepository
	Response  *ResponseRepository
	Analytics *AnalyticsRepository
	Share     *ShareRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Session:   NewSessionRepository(db),
		Form:      NewFormRepository(db),
		Response:  NewResponseRepository(db),
		Analytics: NewAnalyticsRepository(db),
		Share:     NewShareRepository(db),
	}
}

// Models 需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&entity.User{},
		&entity.Session{},
		&entity.Form{},
		&entity.Section{},
		&entity.Question{},
		&entity.Option{},
		&entity.Response{},
		&entity.Answer{},
		&entity.FormAnalytics{},
		&entity.FormShare{},
		&entity.ShareEvent{},
	}
}

// AutoMigrate 建表。级联删除由应用层在事务中完成，连接需配置
// DisableForeignKeyConstraintWhenMigrating
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
