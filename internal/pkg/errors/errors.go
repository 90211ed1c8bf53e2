// Package errors carries HTTP-aware application errors rendered as
// application/problem+json.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/strogmv/fanout/internal/pkg/logger"
)

// AppError is an error with an HTTP status and a problem title.
type AppError struct {
	Code   int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError.
func New(code int, title, detail string) *AppError {
	return &AppError{Code: code, Title: title, Detail: detail}
}

// Wrap builds an AppError that keeps cause for errors.Is/As.
func Wrap(code int, title string, cause error) *AppError {
	return &AppError{Code: code, Title: title, Detail: cause.Error(), Err: cause}
}

// WriteError renders err as a problem document. Errors that are not AppErrors
// become an opaque 500 and are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		logger.From(r.Context()).Error("unhandled error", "path", r.URL.Path, "error", err)
		appErr = New(http.StatusInternalServerError, "Internal Server Error", "")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(appErr.Code)
	_ = json.NewEncoder(w).Encode(appErr)
}
