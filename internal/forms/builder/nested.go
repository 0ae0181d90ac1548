package builder

import (
	"fmt"
	"sort"
	"strings"
)

// NestedSection POST /forms 中内联提交的分区
type NestedSection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// NestedOption 内联选项
type NestedOption struct {
	Label string `json:"label"`
}

// NestedQuestion 内联问题，通过 SectionOrder 引用分区
type NestedQuestion struct {
	SectionOrder int            `json:"sectionOrder"`
	Label        string         `json:"label"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Type         string         `json:"type"`
	Required     bool           `json:"required"`
	Order        int            `json:"order"`
	Options      []NestedOption `json:"options"`
}

// FromNested 把一次性提交的表单树转换成草稿。
// 分区按 order 排序后分配临时ID；找不到分区的问题保留无效引用，Flush 时整体失败。
func FromNested(ownerID, title, description string, sections []NestedSection, questions []NestedQuestion) *Draft {
	d := New(ownerID, strings.TrimSpace(title), description)

	sorted := append([]NestedSection(nil), sections...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	byOrder := make(map[int]string, len(sorted))
	for _, s := range sorted {
		id := newID()
		if _, dup := byOrder[s.Order]; !dup {
			byOrder[s.Order] = id
		}
		d.Sections = append(d.Sections, &DraftSection{
			ID:          id,
			Title:       strings.TrimSpace(s.Title),
			Description: s.Description,
		})
	}

	for _, nq := range questions {
		sectionID, ok := byOrder[nq.SectionOrder]
		if !ok {
			sectionID = fmt.Sprintf("order:%d", nq.SectionOrder)
		}
		title := nq.Label
		if title == "" {
			title = nq.Title
		}
		labels := make([]string, 0, len(nq.Options))
		for _, o := range nq.Options {
			labels = append(labels, o.Label)
		}
		d.Questions = append(d.Questions, &DraftQuestion{
			ID:          newID(),
			SectionID:   sectionID,
			Title:       strings.TrimSpace(title),
			Description: nq.Description,
			Type:        nq.Type,
			Required:    nq.Required,
			Order:       nq.Order,
			Options:     buildOptions(labels),
		})
	}

	d.normalize()
	return d
}
