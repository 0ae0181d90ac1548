package builder

import (
	"errors"
	"fmt"
)

var (
	ErrSectionNotFound  = errors.New("section not found")
	ErrQuestionNotFound = errors.New("question not found")
)

// ValidationError 草稿内容不合法
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DanglingReferenceError 落库时问题引用的分区没有对应的持久化ID，整个 Flush 回滚
type DanglingReferenceError struct {
	QuestionID string
	SectionRef string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("question %s references unknown section %s", e.QuestionID, e.SectionRef)
}
