package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ResponseService 公开填写与提交
type ResponseService struct {
	formRepo      *repository.FormRepository
	responseRepo  *repository.ResponseRepository
	analyticsRepo *repository.AnalyticsRepository
	notifier      Notifier
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewResponseService(repos *repository.Repositories, logger *zap.Logger) *ResponseService {
	return &ResponseService{
		formRepo:      repos.Form,
		responseRepo:  repos.Response,
		analyticsRepo: repos.Analytics,
		notifier:      nopNotifier{},
		logger:        logger,
		now:           time.Now,
		newID:         newUUID,
	}
}

// Respondent 填写人信息，匿名时 UserID/Email 为空
type Respondent struct {
	UserID    string
	Email     string
	IP        string
	UserAgent string
}

// AnswerInput 单题答案：选择题用 optionId/optionIds，其余题型用 value
type AnswerInput struct {
	QuestionID string   `json:"questionId" binding:"required"`
	Value      *string  `json:"value"`
	OptionID   string   `json:"optionId"`
	OptionIDs  []string `json:"optionIds"`
}

// SubmitResponseReq 提交请求
type SubmitResponseReq struct {
	Password  string        `json:"password"`
	StartedAt *time.Time    `json:"startedAt"`
	Answers   []AnswerInput `json:"answers"`
}

// PublicForm 对外展示的表单（不含任何敏感设置）
type PublicForm struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	IsPrivate         bool             `json:"isPrivate"`
	PasswordProtected bool             `json:"passwordProtected"`
	AllowAnonymous    bool             `json:"allowAnonymous"`
	ExpiresAt         *time.Time       `json:"expiresAt"`
	Sections          []entity.Section `json:"sections"`
}

// SubmitResult 提交结果
type SubmitResult struct {
	ResponseID      string  `json:"responseId"`
	ThankYouMessage string  `json:"thankYouMessage"`
	RedirectURL     *string `json:"redirectUrl,omitempty"`
}

// GetPublicForm 获取已发布的表单并记录一次浏览
func (s *ResponseService) GetPublicForm(ctx context.Context, formID string) (*PublicForm, error) {
	form, err := s.loadPublished(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.IsExpired(s.now()) {
		return nil, NewNotFoundError("Form not found")
	}

	if err := s.analyticsRepo.RecordView(ctx, form.ID, dayKey(s.now())); err != nil {
		s.logger.Warn("Failed to record form view", zap.String("form_id", form.ID), zap.Error(err))
	}

	return &PublicForm{
		ID:                form.ID,
		Title:             form.Title,
		Description:       form.Description,
		IsPrivate:         form.IsPrivate,
		PasswordProtected: form.PasswordProtected,
		AllowAnonymous:    form.AllowAnonymous,
		ExpiresAt:         form.ExpiresAt,
		Sections:          form.Sections,
	}, nil
}

// Submit 校验并写入一次提交
func (s *ResponseService) Submit(ctx context.Context, formID string, who Respondent, req SubmitResponseReq) (*SubmitResult, error) {
	form, err := s.loadPublished(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.IsExpired(s.now()) {
		return nil, NewInvalidError("This form is no longer accepting responses")
	}
	if err := s.checkAccess(ctx, form, who, req.Password); err != nil {
		return nil, err
	}

	submittedAt := s.now()
	resp := &entity.Response{
		ID:              s.newID(),
		FormID:          form.ID,
		RespondentEmail: who.Email,
		IPAddress:       who.IP,
		UserAgent:       truncate(who.UserAgent, 512),
		StartedAt:       submittedAt,
		SubmittedAt:     submittedAt,
	}
	if who.UserID != "" {
		uid := who.UserID
		resp.UserID = &uid
	}
	if req.StartedAt != nil && req.StartedAt.Before(submittedAt) {
		resp.StartedAt = *req.StartedAt
		resp.CompletionTime = int(submittedAt.Sub(*req.StartedAt).Seconds())
	}

	answers, err := s.buildAnswers(form, resp.ID, req.Answers)
	if err != nil {
		return nil, err
	}
	resp.Answers = answers

	if err := s.responseRepo.CreateWithAnalytics(ctx, resp, dayKey(submittedAt)); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}

	s.notifier.Publish(form.UserID, "response_created", map[string]string{
		"formId":     form.ID,
		"responseId": resp.ID,
	})

	return &SubmitResult{
		ResponseID:      resp.ID,
		ThankYouMessage: form.ThankYouMessage,
		RedirectURL:     form.RedirectURL,
	}, nil
}

// loadPublished 只有 active 的表单对外可见，过期由调用方判断
func (s *ResponseService) loadPublished(ctx context.Context, formID string) (*entity.Form, error) {
	form, err := s.formRepo.FindTree(ctx, formID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("Form not found")
		}
		return nil, fmt.Errorf("load form: %w", err)
	}
	if form.Status != entity.FormStatusActive {
		return nil, NewNotFoundError("Form not found")
	}
	return form, nil
}

func (s *ResponseService) checkAccess(ctx context.Context, form *entity.Form, who Respondent, password string) error {
	if form.MaxResponses > 0 {
		count, err := s.responseRepo.CountByForm(ctx, form.ID)
		if err != nil {
			return fmt.Errorf("count responses: %w", err)
		}
		if count >= int64(form.MaxResponses) {
			return NewInvalidError("This form has reached its response limit")
		}
	}

	if form.PasswordProtected {
		if password == "" || bcrypt.CompareHashAndPassword([]byte(form.FormPassword), []byte(password)) != nil {
			return NewUnauthorizedError("Invalid form password")
		}
	}

	if (form.IsPrivate || !form.AllowAnonymous) && who.UserID == "" {
		return NewUnauthorizedError("Sign in to answer this form")
	}
	if form.IsPrivate && !form.AcceptsEmail(who.Email) {
		return NewForbiddenError("You are not allowed to answer this form")
	}
	return nil
}

// buildAnswers 按题型校验答案；多选题每个选项一行
func (s *ResponseService) buildAnswers(form *entity.Form, responseID string, inputs []AnswerInput) ([]entity.Answer, error) {
	questions := make(map[string]*entity.Question)
	var ordered []*entity.Question
	for si := range form.Sections {
		for qi := range form.Sections[si].Questions {
			q := &form.Sections[si].Questions[qi]
			questions[q.ID] = q
			ordered = append(ordered, q)
		}
	}

	byQuestion := make(map[string]AnswerInput, len(inputs))
	for _, in := range inputs {
		if _, ok := questions[in.QuestionID]; !ok {
			return nil, NewInvalidError("Unknown question: " + in.QuestionID)
		}
		if _, dup := byQuestion[in.QuestionID]; dup {
			return nil, NewInvalidError("Question answered twice: " + in.QuestionID)
		}
		byQuestion[in.QuestionID] = in
	}

	var answers []entity.Answer
	for _, q := range ordered {
		in, ok := byQuestion[q.ID]
		var rows []entity.Answer
		if ok {
			var err error
			rows, err = s.answerRows(q, responseID, in)
			if err != nil {
				return nil, err
			}
		}
		if len(rows) == 0 && q.Required {
			return nil, NewInvalidError(fmt.Sprintf("Question %q is required", q.Title))
		}
		answers = append(answers, rows...)
	}
	return answers, nil
}

func (s *ResponseService) answerRows(q *entity.Question, responseID string, in AnswerInput) ([]entity.Answer, error) {
	if entity.QuestionTypeHasOptions(q.Type) {
		if in.Value != nil && strings.TrimSpace(*in.Value) != "" {
			return nil, NewInvalidError(fmt.Sprintf("Question %q expects an option", q.Title))
		}
		ids := in.OptionIDs
		if in.OptionID != "" {
			ids = append([]string{in.OptionID}, ids...)
		}
		ids = dedupe(ids)
		if len(ids) == 0 {
			return nil, nil
		}
		if entity.IsSingleSelect(q.Type) && len(ids) > 1 {
			return nil, NewInvalidError(fmt.Sprintf("Question %q accepts a single option", q.Title))
		}
		valid := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			valid[o.ID] = true
		}
		rows := make([]entity.Answer, 0, len(ids))
		for _, id := range ids {
			if !valid[id] {
				return nil, NewInvalidError(fmt.Sprintf("Option %s does not belong to question %q", id, q.Title))
			}
			optionID := id
			rows = append(rows, entity.Answer{
				ID: s.newID(), ResponseID: responseID, QuestionID: q.ID, OptionID: &optionID,
			})
		}
		return rows, nil
	}

	if in.OptionID != "" || len(in.OptionIDs) > 0 {
		return nil, NewInvalidError(fmt.Sprintf("Question %q expects a value", q.Title))
	}
	if in.Value == nil || strings.TrimSpace(*in.Value) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*in.Value)
	if err := validateValue(q, value); err != nil {
		return nil, err
	}
	return []entity.Answer{{
		ID: s.newID(), ResponseID: responseID, QuestionID: q.ID, Value: &value,
	}}, nil
}

func validateValue(q *entity.Question, value string) error {
	var layouts []string
	switch q.Type {
	case entity.QuestionTypeDate:
		layouts = []string{"2006-01-02"}
	case entity.QuestionTypeTime:
		layouts = []string{"15:04", "15:04:05"}
	case entity.QuestionTypeDateTime:
		layouts = []string{time.RFC3339, "2006-01-02T15:04"}
	default:
		return nil
	}
	for _, layout := range layouts {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return NewInvalidError(fmt.Sprintf("Question %q expects a %s value", q.Title, q.Type))
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// truncate 按字节上限截断，不拆开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
