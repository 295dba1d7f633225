package crud

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ExceptionResponse renders an error as the exception envelope. Outside of
// production the envelope carries the error class and a stack trace; in
// production only a generic message and, for AppErrors, the stable code.
func ExceptionResponse(err error, prod bool) (int, map[string]any) {
	body := map[string]any{
		"success":   false,
		"exception": true,
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		body["code"] = appErr.Code
		body["message"] = appErr.Message
		if appErr.Path != "" {
			body["path"] = appErr.Path
		}
		if appErr.Role != "" {
			body["role"] = appErr.Role
		}
		if !prod {
			body["class"] = fmt.Sprintf("%T", appErr)
		}
		return appErr.Status, body
	}

	if prod {
		body["message"] = "Internal server error"
	} else {
		body["message"] = err.Error()
		body["class"] = fmt.Sprintf("%T", err)
		body["stack_trace"] = string(debug.Stack())
	}
	return 500, body
}
