// Package apierror maps domain failures onto HTTP responses.
package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an Error for status mapping
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnprocessable
	KindUnavailable
)

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. Code is a stable machine-readable identifier,
// Fields are merged into the JSON body.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind and Code so sentinel errors can be compared with errors.Is
// even after With has attached fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// With returns a copy of e carrying an extra response field
func (e *Error) With(key string, value any) *Error {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Fields: fields}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func BadRequest(code, message string) *Error    { return New(KindBadRequest, code, message) }
func Unauthorized(code, message string) *Error  { return New(KindUnauthorized, code, message) }
func Forbidden(code, message string) *Error     { return New(KindForbidden, code, message) }
func NotFound(code, message string) *Error      { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error      { return New(KindConflict, code, message) }
func Unprocessable(code, message string) *Error { return New(KindUnprocessable, code, message) }
func Unavailable(code, message string) *Error   { return New(KindUnavailable, code, message) }

// Respond writes err as a JSON error body. Unclassified errors are logged and
// reported as 500 without leaking their text.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString("request_id"),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": apiErr.Message}
	if apiErr.Code != "" {
		body["code"] = apiErr.Code
	}
	for k, v := range apiErr.Fields {
		body[k] = v
	}
	c.JSON(apiErr.Kind.Status(), body)
}

// Abort is Respond followed by c.Abort, for use in middleware
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
