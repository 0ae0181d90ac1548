package builder

import (
	"sort"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/google/uuid"
)

// newID 临时ID生成器（测试可替换）
var newID = func() string { return uuid.New().String() }

// Draft 表单编排草稿：分区 -> 问题 -> 选项，落库前全部保存在内存中
type Draft struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"ownerId"`
	FormID      string           `json:"formId,omitempty"` // 已落库的表单ID
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Sections    []*DraftSection  `json:"sections"`
	Questions   []*DraftQuestion `json:"questions"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// DraftSection 草稿分区
type DraftSection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// DraftQuestion 草稿问题，SectionID 为分区临时ID
type DraftQuestion struct {
	ID          string         `json:"id"`
	SectionID   string         `json:"sectionId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Required    bool           `json:"required"`
	Order       int            `json:"order"`
	Options     []*DraftOption `json:"options"`
}

// DraftOption 草稿选项
type DraftOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Order int    `json:"order"`
}

// SectionInput 新增分区
type SectionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    *int   `json:"position"` // 插入位置，为空追加到末尾
}

// SectionPatch 分区合并更新
type SectionPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// QuestionInput 新增问题
type QuestionInput struct {
	SectionID   string   `json:"sectionId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Options     []string `json:"options"`
	Position    *int     `json:"position"`
}

// QuestionPatch 问题合并更新
type QuestionPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Type        *string   `json:"type"`
	Required    *bool     `json:"required"`
	Options     *[]string `json:"options"`
}

// New 创建空草稿
func New(ownerID, title, description string) *Draft {
	return &Draft{
		ID:          newID(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Sections:    []*DraftSection{},
		Questions:   []*DraftQuestion{},
	}
}

// FromForm 把已落库的表单树载入草稿，ID 沿用持久化ID
func FromForm(form *entity.Form) *Draft {
	d := New(form.UserID, form.Title, form.Description)
	d.FormID = form.ID

	sections := append([]entity.Section(nil), form.Sections...)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	for _, s := range sections {
		d.Sections = append(d.Sections, &DraftSection{
			ID: s.ID, Title: s.Title, Description: s.Description, Order: s.Order,
		})
		for _, q := range s.Questions {
			dq := &DraftQuestion{
				ID: q.ID, SectionID: s.ID, Title: q.Title, Description: q.Description,
				Type: q.Type, Required: q.Required, Order: q.Order, Options: []*DraftOption{},
			}
			for _, o := range q.Options {
				dq.Options = append(dq.Options, &DraftOption{ID: o.ID, Label: o.Label, Order: o.Order})
			}
			sort.SliceStable(dq.Options, func(i, j int) bool { return dq.Options[i].Order < dq.Options[j].Order })
			d.Questions = append(d.Questions, dq)
		}
	}
	d.normalize()
	return d
}

// Section 按ID查找分区
func (d *Draft) Section(id string) *DraftSection {
	for _, s := range d.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Question 按ID查找问题
func (d *Draft) Question(id string) *DraftQuestion {
	for _, q := range d.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// SectionQuestions 分区内问题（按 order）
func (d *Draft) SectionQuestions(sectionID string) []*DraftQuestion {
	var out []*DraftQuestion
	for _, q := range d.Questions {
		if q.SectionID == sectionID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// AddSection 新增分区，返回临时ID
func (d *Draft) AddSection(in SectionInput) string {
	s := &DraftSection{
		ID:          newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
	}
	pos := clampPosition(in.Position, len(d.Sections))
	d.Sections = append(d.Sections, nil)
	copy(d.Sections[pos+1:], d.Sections[pos:])
	d.Sections[pos] = s
	d.normalize()
	return s.ID
}

// UpdateSection 合并更新分区
func (d *Draft) UpdateSection(id string, patch SectionPatch) error {
	s := d.Section(id)
	if s == nil {
		return ErrSectionNotFound
	}
	if patch.Title != nil {
		s.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	d.touch()
	return nil
}

// DeleteSection 删除分区，并级联删除其下所有问题
func (d *Draft) DeleteSection(id string) error {
	idx := -1
	for i, s := range d.Sections {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSectionNotFound
	}
	d.Sections = append(d.Sections[:idx], d.Sections[idx+1:]...)

	kept := d.Questions[:0]
	for _, q := range d.Questions {
		if q.SectionID != id {
			kept = append(kept, q)
		}
	}
	d.Questions = kept
	d.normalize()
	return nil
}

// ReorderSections 按给定ID序列重排分区，必须是现有分区的一个排列
func (d *Draft) ReorderSections(ids []string) error {
	if !isPermutation(ids, sectionIDs(d.Sections)) {
		return &ValidationError{Field: "sectionIds", Message: "must list every section exactly once"}
	}
	byID := make(map[string]*DraftSection, len(d.Sections))
	for _, s := range d.Sections {
		byID[s.ID] = s
	}
	reordered := make([]*DraftSection, 0, len(ids))
	for _, id := range ids {
		reordered = append(reordered, byID[id])
	}
	d.Sections = reordered
	d.normalize()
	return nil
}

// AddQuestion 向分区新增问题，返回临时ID
func (d *Draft) AddQuestion(in QuestionInput) (string, error) {
	if d.Section(in.SectionID) == nil {
		return "", ErrSectionNotFound
	}
	if !entity.IsValidQuestionType(in.Type) {
		return "", &ValidationError{Field: "type", Message: "unsupported question type: " + in.Type}
	}
	q := &DraftQuestion{
		ID:          newID(),
		SectionID:   in.SectionID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        in.Type,
		Required:    in.Required,
		Options:     buildOptions(in.Options),
	}

	siblings := d.SectionQuestions(in.SectionID)
	pos := clampPosition(in.Position, len(siblings))
	for _, s := range siblings {
		if s.Order >= pos {
			s.Order++
		}
	}
	q.Order = pos
	d.Questions = append(d.Questions, q)
	d.normalize()
	return q.ID, nil
}

// UpdateQuestion 合并更新问题
func (d *Draft) UpdateQuestion(id string, patch QuestionPatch) error {
	q := d.Question(id)
	if q == nil {
		return ErrQuestionNotFound
	}
	if patch.Type != nil {
		if !entity.IsValidQuestionType(*patch.Type) {
			return &ValidationError{Field: "type", Message: "unsupported question type: " + *patch.Type}
		}
		q.Type = *patch.Type
	}
	if patch.Title != nil {
		q.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		q.Description = *patch.Description
	}
	if patch.Required != nil {
		q.Required = *patch.Required
	}
	if patch.Options != nil {
		q.Options = buildOptions(*patch.Options)
	}
	d.touch()
	return nil
}

// SetQuestionOptions 整体替换问题选项
func (d *Draft) SetQuestionOptions(id string, labels []string) error {
	return d.UpdateQuestion(id, QuestionPatch{Options: &labels})
}

// DeleteQuestion 删除问题
func (d *Draft) DeleteQuestion(id string) error {
	for i, q := range d.Questions {
		if q.ID == id {
			d.Questions = append(d.Questions[:i], d.Questions[i+1:]...)
			d.normalize()
			return nil
		}
	}
	return ErrQuestionNotFound
}

// ReorderQuestions 按给定ID序列重排分区内问题
func (d *Draft) ReorderQuestions(sectionID string, ids []string) error {
	if d.Section(sectionID) == nil {
		return ErrSectionNotFound
	}
	siblings := d.SectionQuestions(sectionID)
	current := make([]string, 0, len(siblings))
	for _, q := range siblings {
		current = append(current, q.ID)
	}
	if !isPermutation(ids, current) {
		return &ValidationError{Field: "questionIds", Message: "must list every question of the section exactly once"}
	}
	for i, id := range ids {
		d.Question(id).Order = i
	}
	d.normalize()
	return nil
}

// MoveQuestion 拖拽移动问题到目标分区的指定位置（可跨分区）
func (d *Draft) MoveQuestion(id, toSectionID string, position int) error {
	q := d.Question(id)
	if q == nil {
		return ErrQuestionNotFound
	}
	if d.Section(toSectionID) == nil {
		return ErrSectionNotFound
	}

	var siblings []*DraftQuestion
	for _, s := range d.SectionQuestions(toSectionID) {
		if s.ID != id {
			siblings = append(siblings, s)
		}
	}
	pos := clampPosition(&position, len(siblings))
	siblings = append(siblings, nil)
	copy(siblings[pos+1:], siblings[pos:])
	siblings[pos] = q

	q.SectionID = toSectionID
	for i, s := range siblings {
		s.Order = i
	}
	d.normalize()
	return nil
}

// normalize 重新编号：分区按切片顺序，问题在各自分区内按 order 稠密编号（从0开始）。
// 引用了不存在分区的问题保留在末尾，由 Flush 报错。
func (d *Draft) normalize() {
	known := make(map[string]bool, len(d.Sections))
	ordered := make([]*DraftQuestion, 0, len(d.Questions))
	for i, s := range d.Sections {
		s.Order = i
		known[s.ID] = true
		for j, q := range d.SectionQuestions(s.ID) {
			q.Order = j
			ordered = append(ordered, q)
		}
	}
	for _, q := range d.Questions {
		if !known[q.SectionID] {
			ordered = append(ordered, q)
		}
	}
	d.Questions = ordered
	for _, q := range d.Questions {
		for k, o := range q.Options {
			o.Order = k
		}
	}
	d.touch()
}

func (d *Draft) touch() {
	d.UpdatedAt = time.Now()
}

// Validate 落库前校验
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	for _, q := range d.Questions {
		if err := validateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}

func validateQuestion(q *DraftQuestion) error {
	if q.Title == "" {
		return &ValidationError{Field: "questions", Message: "question title is required"}
	}
	if !entity.IsValidQuestionType(q.Type) {
		return &ValidationError{Field: "questions", Message: "unsupported question type: " + q.Type}
	}
	if entity.QuestionTypeHasOptions(q.Type) {
		if len(q.Options) == 0 {
			return &ValidationError{Field: "questions", Message: "question \"" + q.Title + "\" of type " + q.Type + " needs at least one option"}
		}
		for _, o := range q.Options {
			if strings.TrimSpace(o.Label) == "" {
				return &ValidationError{Field: "options", Message: "option label is required"}
			}
		}
	} else if len(q.Options) > 0 {
		return &ValidationError{Field: "questions", Message: "question \"" + q.Title + "\" of type " + q.Type + " does not take options"}
	}
	return nil
}

func buildOptions(labels []string) []*DraftOption {
	out := make([]*DraftOption, 0, len(labels))
	for i, l := range labels {
		out = append(out, &DraftOption{ID: newID(), Label: strings.TrimSpace(l), Order: i})
	}
	return out
}

func clampPosition(pos *int, n int) int {
	if pos == nil || *pos > n {
		return n
	}
	if *pos < 0 {
		return 0
	}
	return *pos
}

func sectionIDs(sections []*DraftSection) []string {
	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	return ids
}

func isPermutation(ids, current []string) bool {
	if len(ids) != len(current) {
		return false
	}
	seen := make(map[string]int, len(current))
	for _, id := range current {
		seen[id]++
	}
	for _, id := range ids {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
