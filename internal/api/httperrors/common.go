package httperrors

import (
	"fmt"
	"net/http"
)

// error types exposed to clients
const (
	HTTPErrorTypeGeneric = "generic"
)

// HTTPError is the public JSON error envelope
type HTTPError struct {
	Code   int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTPError %d (%s): %s - %s", e.Code, e.Type, e.Title, e.Detail)
	}
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

// NewHTTPError builds a public error with the given status code
func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

// NewHTTPErrorWithDetail builds a public error carrying extra detail text
func NewHTTPErrorWithDetail(code int, errorType, title, detail string) *HTTPError {
	return &HTTPError{
		Code:   code,
		Type:   errorType,
		Title:  title,
		Detail: detail,
	}
}

var (
	ErrBadRequestMalformedBody = NewHTTPError(http.StatusBadRequest, HTTPErrorTypeGeneric, "Malformed request body.")
)
