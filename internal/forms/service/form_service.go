package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// FormService 表单生命周期服务
type FormService struct {
	db           *gorm.DB
	formRepo     *repository.FormRepository
	responseRepo *repository.ResponseRepository
	notifier     Notifier
	now          func() time.Time
	newID        func() string
}

func NewFormService(db *gorm.DB, repos *repository.Repositories) *FormService {
	return &FormService{
		db:           db,
		formRepo:     repos.Form,
		responseRepo: repos.Response,
		notifier:     nopNotifier{},
		now:          time.Now,
		newID:        newUUID,
	}
}

// FormSettings 创建表单时可携带的设置
type FormSettings struct {
	Status             string     `json:"status"`
	IsPrivate          bool       `json:"isPrivate"`
	MaxResponses       int        `json:"maxResponses"`
	AllowedEmails      []string   `json:"allowedEmails"`
	AllowAnonymous     *bool      `json:"allowAnonymous"`
	ThankYouMessage    string     `json:"thankYouMessage"`
	RedirectURL        string     `json:"redirectUrl"`
	PasswordProtected  bool       `json:"passwordProtected"`
	FormPassword       string     `json:"formPassword"`
	EmailNotifications *bool      `json:"emailNotifications"`
	WebhookURL         string     `json:"webhookUrl"`
	ExpirationDate     *time.Time `json:"expirationDate"`
}

// CreateFormReq 创建表单（可内联分区与问题）
type CreateFormReq struct {
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Sections    []builder.NestedSection  `json:"sections"`
	Questions   []builder.NestedQuestion `json:"questions"`
	Settings    *FormSettings            `json:"settings"`
}

// FlushResult 落库结果
type FlushResult struct {
	Success bool   `json:"success"`
	FormID  string `json:"formId"`
}

// CreateForm 创建表单。除非设置中显式要求 active，否则一律为 draft
func (s *FormService) CreateForm(ctx context.Context, ownerID string, req CreateFormReq) (*entity.Form, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, NewInvalidError("Title is required")
	}

	settings := req.Settings
	if settings == nil {
		settings = &FormSettings{}
	}
	form, err := s.newForm(ownerID, title, req.Description, settings)
	if err != nil {
		return nil, err
	}

	draft := builder.FromNested(ownerID, title, req.Description, req.Sections, req.Questions)
	if err := draft.Validate(); err != nil {
		return nil, fromBuilderError(err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.persistComposition(tx, form, draft, true)
	}); err != nil {
		if _, ok := AsDanglingReference(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("create form: %w", err)
	}

	return s.formRepo.FindTree(ctx, form.ID)
}

func (s *FormService) newForm(ownerID, title, description string, settings *FormSettings) (*entity.Form, error) {
	emails := normalizeEmails(settings.AllowedEmails)
	if err := validateEmails(emails); err != nil {
		return nil, err
	}
	if settings.MaxResponses < 0 {
		return nil, NewInvalidError("maxResponses must not be negative")
	}

	form := &entity.Form{
		ID:                 s.newID(),
		UserID:             ownerID,
		Title:              title,
		Description:        description,
		IsPrivate:          settings.IsPrivate,
		MaxResponses:       settings.MaxResponses,
		AllowedEmails:      emails,
		AllowAnonymous:     boolOr(settings.AllowAnonymous, true),
		Status:             entity.FormStatusDraft,
		ThankYouMessage:    entity.DefaultThankYouMessage,
		RedirectURL:        optionalString(settings.RedirectURL),
		EmailNotifications: boolOr(settings.EmailNotifications, true),
		WebhookURL:         optionalString(settings.WebhookURL),
		ExpiresAt:          settings.ExpirationDate,
	}
	if msg := strings.TrimSpace(settings.ThankYouMessage); msg != "" {
		form.ThankYouMessage = msg
	}

	if settings.PasswordProtected {
		if settings.FormPassword == "" {
			return nil, NewInvalidError("formPassword is required when passwordProtected is enabled")
		}
		hashed, err := hashPassword(settings.FormPassword)
		if err != nil {
			return nil, err
		}
		form.PasswordProtected = true
		form.FormPassword = hashed
	}

	if settings.Status == entity.FormStatusActive {
		if err := checkPrivateAudience(form); err != nil {
			return nil, err
		}
		now := s.now()
		form.Status = entity.FormStatusActive
		form.PublishedAt = &now
	}
	return form, nil
}

// persistComposition 在事务内写入表单行与分区/问题/选项树。
// 分区的临时ID映射为持久化ID；问题引用的分区没有映射时整个事务失败
func (s *FormService) persistComposition(tx *gorm.DB, form *entity.Form, draft *builder.Draft, create bool) error {
	if create {
		if err := tx.Omit("Sections").Create(form).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Model(&entity.Form{}).Where("id = ?", form.ID).Updates(map[string]interface{}{
			"title":       draft.Title,
			"description": draft.Description,
			"updated_at":  s.now(),
		}).Error; err != nil {
			return err
		}
		if err := repository.DeleteComposition(tx, form.ID); err != nil {
			return err
		}
	}

	sectionIDs := make(map[string]string, len(draft.Sections))
	for _, ds := range draft.Sections {
		section := &entity.Section{
			ID:          s.newID(),
			FormID:      form.ID,
			Title:       ds.Title,
			Description: ds.Description,
			Order:       ds.Order,
		}
		if err := tx.Omit("Questions").Create(section).Error; err != nil {
			return err
		}
		sectionIDs[ds.ID] = section.ID
	}

	for _, dq := range draft.Questions {
		sectionID, ok := sectionIDs[dq.SectionID]
		if !ok {
			return &builder.DanglingReferenceError{QuestionID: dq.ID, SectionRef: dq.SectionID}
		}
		question := &entity.Question{
			ID:          s.newID(),
			SectionID:   sectionID,
			FormID:      form.ID,
			Title:       dq.Title,
			Description: dq.Description,
			Type:        dq.Type,
			Required:    dq.Required,
			Order:       dq.Order,
		}
		if err := tx.Omit("Options").Create(question).Error; err != nil {
			return err
		}
		if len(dq.Options) == 0 {
			continue
		}
		options := make([]entity.Option, 0, len(dq.Options))
		for _, do := range dq.Options {
			options = append(options, entity.Option{
				ID:         s.newID(),
				QuestionID: question.ID,
				Label:      do.Label,
				Order:      do.Order,
			})
		}
		if err := tx.Create(&options).Error; err != nil {
			return err
		}
	}
	return nil
}

// FlushDraft 把草稿整体落库：新表单直接创建，已有表单替换其分区树（已有提交时拒绝）
func (s *FormService) FlushDraft(ctx context.Context, ownerID string, draft *builder.Draft) (*FlushResult, error) {
	if err := draft.Validate(); err != nil {
		return nil, fromBuilderError(err)
	}

	var form *entity.Form
	create := draft.FormID == ""
	if create {
		var err error
		form, err = s.newForm(ownerID, draft.Title, draft.Description, &FormSettings{})
		if err != nil {
			return nil, err
		}
	} else {
		existing, err := s.loadOwned(ctx, draft.FormID, ownerID)
		if err != nil {
			return nil, err
		}
		count, err := s.responseRepo.CountByForm(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("count responses: %w", err)
		}
		if count > 0 {
			return nil, NewInvalidError("Form already has responses; its questions can no longer be restructured")
		}
		form = existing
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.persistComposition(tx, form, draft, create)
	}); err != nil {
		if _, ok := AsDanglingReference(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("flush draft: %w", err)
	}
	return &FlushResult{Success: true, FormID: form.ID}, nil
}

// GetForm 获取表单完整结构
func (s *FormService) GetForm(ctx context.Context, formID, ownerID string) (*entity.Form, error) {
	form, err := s.formRepo.FindTree(ctx, formID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("load form: %w", err)
	}
	if !form.IsOwnedBy(ownerID) {
		return nil, ErrFormNotFound
	}
	return form, nil
}

// ListForms 用户的表单，最近更新在前
func (s *FormService) ListForms(ctx context.Context, ownerID string) ([]entity.Form, error) {
	forms, err := s.formRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

// UpdateDetailsReq 表单基本信息与可见性
type UpdateDetailsReq struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	IsPrivate      *bool     `json:"isPrivate"`
	MaxResponses   *int      `json:"maxResponses"`
	AllowedEmails  *[]string `json:"allowedEmails"`
	AllowAnonymous *bool     `json:"allowAnonymous"`
}

// UpdateDetails 更新标题、描述与可见性
func (s *FormService) UpdateDetails(ctx context.Context, formID, ownerID string, req UpdateDetailsReq) (*entity.Form, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, NewInvalidError("Title is required")
		}
		form.Title = title
	}
	if req.Description != nil {
		form.Description = *req.Description
	}
	if req.IsPrivate != nil {
		form.IsPrivate = *req.IsPrivate
	}
	if req.MaxResponses != nil {
		if *req.MaxResponses < 0 {
			return nil, NewInvalidError("maxResponses must not be negative")
		}
		form.MaxResponses = *req.MaxResponses
	}
	if req.AllowedEmails != nil {
		emails := normalizeEmails(*req.AllowedEmails)
		if err := validateEmails(emails); err != nil {
			return nil, err
		}
		form.AllowedEmails = emails
	}
	if req.AllowAnonymous != nil {
		form.AllowAnonymous = *req.AllowAnonymous
	}
	if form.Status != entity.FormStatusDraft {
		if err := checkPrivateAudience(form); err != nil {
			return nil, err
		}
	}

	if err := s.formRepo.Save(ctx, form); err != nil {
		return nil, fmt.Errorf("update form: %w", err)
	}
	return form, nil
}

// UpdateSettings 按白名单字段部分更新设置
func (s *FormService) UpdateSettings(ctx context.Context, formID, ownerID string, patch SettingsPatch) (*entity.Form, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := patch.apply(form); err != nil {
		return nil, err
	}
	if err := s.formRepo.Save(ctx, form); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return form, nil
}

// SetStatus 状态流转。首次发布时记录 publishedAt，之后不再覆盖
func (s *FormService) SetStatus(ctx context.Context, formID, ownerID, status string) (*entity.Form, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if !entity.IsValidFormStatus(status) {
		return nil, NewInvalidError("Invalid status: must be one of draft, active, paused, archived")
	}
	if !entity.CanTransition(form.Status, status) {
		return nil, NewInvalidError(fmt.Sprintf("Cannot change status from %s to %s", form.Status, status))
	}
	if status != entity.FormStatusDraft {
		if err := checkPrivateAudience(form); err != nil {
			return nil, err
		}
	}

	previous := form.Status
	form.Status = status
	if status == entity.FormStatusActive && form.PublishedAt == nil {
		now := s.now()
		form.PublishedAt = &now
	}
	if err := s.formRepo.Save(ctx, form); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if previous != status {
		s.notifier.Publish(form.UserID, "form_status_changed", map[string]string{
			"formId": form.ID,
			"from":   previous,
			"to":     status,
		})
	}
	return form, nil
}

// DeleteForm 删除表单及全部从属数据
func (s *FormService) DeleteForm(ctx context.Context, formID, ownerID string) error {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return err
	}
	if err := s.formRepo.DeleteCascade(ctx, form.ID); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return nil
}

func (s *FormService) loadOwned(ctx context.Context, formID, ownerID string) (*entity.Form, error) {
	return loadOwnedForm(ctx, s.formRepo, formID, ownerID)
}

// loadOwnedForm 加载表单并校验所有者，每次变更都重新校验
func loadOwnedForm(ctx context.Context, repo *repository.FormRepository, formID, ownerID string) (*entity.Form, error) {
	form, err := repo.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("load form: %w", err)
	}
	if !form.IsOwnedBy(ownerID) {
		return nil, ErrFormNotFound
	}
	return form, nil
}

// checkPrivateAudience 私有表单离开草稿前至少需要一个允许的邮箱
func checkPrivateAudience(form *entity.Form) error {
	if form.IsPrivate && len(form.AllowedEmails) == 0 {
		return NewInvalidError("A private form needs at least one allowed email before it can leave draft")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash form password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func validateEmails(emails []string) error {
	for _, e := range emails {
		at := strings.Index(e, "@")
		if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " ,;") {
			return NewInvalidError("Invalid email: " + e)
		}
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
