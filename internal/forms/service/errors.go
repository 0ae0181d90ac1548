package service

import (
	"errors"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorUnavailable  ErrorCode = "unavailable"
)

// ServiceError 预期内的业务错误，其余错误一律按持久化错误处理
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewUnavailableError(msg string) error {
	return &ServiceError{Code: ErrorUnavailable, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrFormNotFound 不存在与无权访问不做区分
var ErrFormNotFound = NewNotFoundError("Form not found or access denied")

// AsDanglingReference 落库时的悬空分区引用
func AsDanglingReference(err error) (*builder.DanglingReferenceError, bool) {
	var de *builder.DanglingReferenceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// fromBuilderError 草稿编辑错误转为业务错误
func fromBuilderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, builder.ErrSectionNotFound) {
		return NewNotFoundError("Section not found")
	}
	if errors.Is(err, builder.ErrQuestionNotFound) {
		return NewNotFoundError("Question not found")
	}
	var ve *builder.ValidationError
	if errors.As(err, &ve) {
		return NewInvalidError(ve.Error())
	}
	return err
}
