package service

import (
	"fmt"
	"net/http"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
)

// Error — ошибка сервисного слоя с HTTP-кодом.
// Хендлеры транслируют её в ответ через WriteError без ветвления.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errValidation — 400 некорректные входные данные.
func errValidation(format string, args ...any) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    fmt.Sprintf(format, args...),
	}
}

// errNotFound — 404 запись или блоб не найдены.
func errNotFound(format string, args ...any) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf(format, args...),
	}
}

// errGone — 410 блоб уже удалён (tombstone).
func errGone(format string, args ...any) *Error {
	return &Error{
		StatusCode: http.StatusGone,
		Code:       apierrors.CodeGone,
		Message:    fmt.Sprintf(format, args...),
	}
}

// errInternal — 500 внутренняя ошибка.
func errInternal(format string, args ...any) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    fmt.Sprintf(format, args...),
	}
}
