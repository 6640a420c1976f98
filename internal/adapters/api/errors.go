package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NetworkErrorMessage is shown whenever the backend could not be reached at all.
const NetworkErrorMessage = "A network error occurred. Please check your connection and try again."

// FieldError is one entry of a 422 validation response.
type FieldError struct {
	Field   string
	Message string
}

// Error is the single failure shape returned by every Client method.
// Status is 0 when the request never produced an HTTP response.
type Error struct {
	Op     string
	Status int
	Detail string
	Fields []FieldError
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return e.Op + ": no response"
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message())
}

// Unwrap exposes the transport or decoding error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether the failure happened before any HTTP response.
func (e *Error) IsNetwork() bool {
	return e.Status == 0
}

// Message renders the failure for display. Validation failures are joined
// per field; other statuses use the server's detail when it sent one.
func (e *Error) Message() string {
	switch {
	case e.Status == 0:
		return NetworkErrorMessage
	case len(e.Fields) > 0:
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = fmt.Sprintf("Error in '%s': %s", f.Field, f.Message)
		}
		return "Validation Error: " + strings.Join(parts, ". ")
	case e.Detail != "":
		return e.Detail
	}
	return fmt.Sprintf("Request failed with status %d.", e.Status)
}

// Message returns a display message for any error returned by this package.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// IsStatus reports whether err is an *Error carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsUnauthorized reports whether the backend rejected the credential.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// validationItem is one element of a FastAPI-style detail array.
type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// decodeError builds an *Error from a non-2xx response body. The detail may
// be a string, an array of validation items, or absent.
func decodeError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return e
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		e.Detail = detail
		return e
	}

	var items []validationItem
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		for _, it := range items {
			e.Fields = append(e.Fields, FieldError{Field: fieldName(it.Loc), Message: it.Msg})
		}
		return e
	}

	e.Detail = string(envelope.Detail)
	return e
}

// fieldName picks the field out of a location path like ["body", "title"].
func fieldName(loc []any) string {
	if len(loc) == 0 {
		return "request"
	}
	idx := len(loc) - 1
	if len(loc) > 1 {
		idx = 1
	}
	return fmt.Sprint(loc[idx])
}
