package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeState        ErrorCode = "STATE_ERROR"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeDependency   ErrorCode = "DEPENDENCY_ERROR"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError — единый тип ошибки для всех слоёв: код определяет категорию,
// Cause сохраняет исходную ошибку для errors.Is/As.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation возвращает ошибку валидации входных данных.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// NotFound возвращает ошибку отсутствия сущности.
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// Forbidden возвращает ошибку авторизации: актор аутентифицирован,
// но не имеет права на операцию над этим заказом.
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// State возвращает ошибку недопустимого перехода: операция в принципе
// разрешена актору, но не из текущего статуса заказа.
func State(message string) *AppError {
	return New(ErrCodeState, message)
}

// Conflict возвращает ошибку конкурентного изменения записи.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Dependency возвращает ошибку побочного эффекта: статус уже зафиксирован,
// но запись в ledger или статистику не прошла и требует сверки.
func Dependency(err error, message string) *AppError {
	return Wrap(err, ErrCodeDependency, message)
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeState, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsState(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeState
}

func IsConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeConflict
}

func IsDependency(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeDependency
}

var (
	ErrOrderNotFound      = New(ErrCodeNotFound, "заказ не найден")
	ErrGigNotFound        = New(ErrCodeNotFound, "гиг не найден")
	ErrUserNotFound       = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden          = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials = New(ErrCodeUnauthorized, "неверные учетные данные")
)
