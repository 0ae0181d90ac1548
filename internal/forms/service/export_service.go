package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"github.com/Unknown-Bytes/formerr/internal/storage"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// 导出格式
const (
	ExportFormatJSON = "json"
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatYAML = "yaml"
)

// submittedAtLayout 与 JS toISOString 一致（UTC，毫秒）
const submittedAtLayout = "2006-01-02T15:04:05.000Z"

var exportContentTypes = map[string]string{
	ExportFormatJSON: "application/json; charset=utf-8",
	ExportFormatCSV:  "text/csv; charset=utf-8",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ExportFormatYAML: "application/yaml; charset=utf-8",
}

var filenameUnsafe = regexp.MustCompile(`(?i)[^a-z0-9]`)

// ExportService 提交数据导出
type ExportService struct {
	formRepo     *repository.FormRepository
	responseRepo *repository.ResponseRepository
	archive      storage.ArchiveStore
	now          func() time.Time
}

func NewExportService(repos *repository.Repositories) *ExportService {
	return &ExportService{
		formRepo:     repos.Form,
		responseRepo: repos.Response,
		now:          time.Now,
	}
}

// SetArchive 注入导出归档存储
func (s *ExportService) SetArchive(archive storage.ArchiveStore) {
	s.archive = archive
}

// ExportResult 导出文件
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportDocument JSON/YAML 导出结构
type ExportDocument struct {
	Form      ExportFormInfo    `json:"form"`
	Questions []entity.Question `json:"questions"`
	Responses []entity.Response `json:"responses"`
}

// ExportFormInfo 表单摘要
type ExportFormInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Export 导出表单提交，仅所有者可用
func (s *ExportService) Export(ctx context.Context, formID, ownerID, format string) (*ExportResult, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = ExportFormatJSON
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		return nil, NewInvalidError("Unsupported export format: " + format)
	}

	questions, err := s.formRepo.ListQuestions(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	responses, err := s.responseRepo.ListWithAnswers(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}

	var data []byte
	switch format {
	case ExportFormatCSV:
		data = renderCSV(BuildTable(questions, responses))
	case ExportFormatXLSX:
		data, err = renderXLSX(form.Title, BuildTable(questions, responses))
	case ExportFormatYAML:
		data, err = renderYAML(buildDocument(form, questions, responses))
	default:
		data, err = json.Marshal(buildDocument(form, questions, responses))
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}

	return &ExportResult{
		Filename:    ExportFilename(form.Title, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// Archive 导出并归档到对象存储
func (s *ExportService) Archive(ctx context.Context, formID, ownerID, format string) (*storage.ArchivedObject, error) {
	if s.archive == nil {
		return nil, NewUnavailableError("Export archiving is not configured")
	}
	result, err := s.Export(ctx, formID, ownerID, format)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("exports/%s/%s-%s", formID, s.now().UTC().Format("20060102T150405Z"), result.Filename)
	obj, err := s.archive.Put(ctx, key, result.Filename, result.ContentType, result.Data)
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	return obj, nil
}

func (s *ExportService) loadOwned(ctx context.Context, formID, ownerID string) (*entity.Form, error) {
	return loadOwnedForm(ctx, s.formRepo, formID, ownerID)
}

// ExportFilename 标题中非字母数字替换为下划线并转小写
func ExportFilename(title, format string) string {
	return strings.ToLower(filenameUnsafe.ReplaceAllString(title, "_")) + "-respostas." + format
}

func buildDocument(form *entity.Form, questions []entity.Question, responses []entity.Response) ExportDocument {
	if questions == nil {
		questions = []entity.Question{}
	}
	if responses == nil {
		responses = []entity.Response{}
	}
	return ExportDocument{
		Form:      ExportFormInfo{ID: form.ID, Title: form.Title, Description: form.Description},
		Questions: questions,
		Responses: responses,
	}
}

// Table 表格化导出：表头 + 每个提交一行
type Table struct {
	Header []string
	Rows   [][]string
}

// BuildTable 列为 Response ID、Submitted At 以及按顺序的每个问题。
// 单元格取自由文本，否则取选项标签；同一题多个选项用 "; " 连接；未答为空
func BuildTable(questions []entity.Question, responses []entity.Response) Table {
	header := []string{"Response ID", "Submitted At"}
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
		header = append(header, q.Title)
	}

	rows := make([][]string, 0, len(responses))
	for _, r := range responses {
		cells := make([][]entity.Answer, len(questions))
		for _, a := range r.Answers {
			if i, ok := index[a.QuestionID]; ok && a.Text() != "" {
				cells[i] = append(cells[i], a)
			}
		}
		row := []string{r.ID, r.SubmittedAt.UTC().Format(submittedAtLayout)}
		for _, answers := range cells {
			row = append(row, joinAnswers(answers))
		}
		rows = append(rows, row)
	}
	return Table{Header: header, Rows: rows}
}

// joinAnswers 多选答案按选项顺序连接
func joinAnswers(answers []entity.Answer) string {
	sort.SliceStable(answers, func(i, j int) bool {
		return optionOrder(answers[i]) < optionOrder(answers[j])
	})
	texts := make([]string, len(answers))
	for i, a := range answers {
		texts[i] = a.Text()
	}
	return strings.Join(texts, "; ")
}

func optionOrder(a entity.Answer) int {
	if a.Option == nil {
		return 0
	}
	return a.Option.Order
}

// renderCSV 每个字段都加引号，内部引号加倍，行之间用 \n 分隔
func renderCSV(t Table) []byte {
	var buf bytes.Buffer
	writeCSVRow(&buf, t.Header)
	for _, row := range t.Rows {
		buf.WriteByte('\n')
		writeCSVRow(&buf, row)
	}
	return buf.Bytes()
}

func writeCSVRow(buf *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(c, `"`, `""`))
		buf.WriteByte('"')
	}
}

func renderXLSX(title string, t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Respostas"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(t.Header))
	f.SetColWidth(sheet, "A", lastCol, 24)
	f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "formerr"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderYAML(doc ExportDocument) ([]byte, error) {
	// 先转成 JSON 结构再输出，保证字段名与 JSON 导出一致
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
