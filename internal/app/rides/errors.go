package rides

import "net/http"

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func errRideNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: "RIDE_NOT_FOUND", Message: "ride not found"}
}

func errPageNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: "PAGE_NOT_FOUND", Message: "invalid page"}
}

func errUpdateConflict() *Error {
	return &Error{
		Status:  http.StatusConflict,
		Code:    "RIDE_UPDATE_CONFLICT",
		Message: "the ride was modified concurrently; retry the request",
	}
}

// validationErrors accumulates field-level messages.
type validationErrors map[string]any

func (v validationErrors) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v validationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: "invalid ride",
		Details: map[string]any(v),
	}
}
