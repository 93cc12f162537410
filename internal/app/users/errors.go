package users

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

func errUserNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
}

func errValidation(field, msg string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: "invalid " + field,
		Details: map[string]any{field: msg},
	}
}

func errUsernameTaken() *Error {
	return &Error{
		Status:  http.StatusConflict,
		Code:    "USERNAME_TAKEN",
		Message: "a user with that username already exists",
		Details: map[string]any{"username": "already taken"},
	}
}

func errInvalidCredentials() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "invalid credentials"}
}

func errPageNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: "PAGE_NOT_FOUND", Message: "invalid page"}
}
