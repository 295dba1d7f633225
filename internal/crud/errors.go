package crud

import "fmt"

// AppError is the structured error carried through action handlers and
// rendered by the exception formatter.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`

	// Path points at the offending request field for bad-request errors.
	Path string `json:"path,omitempty"`

	// Role carries the missing role on access-denied errors.
	Role string `json:"role,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// BadRequestError reports a missing or malformed wire field. Path is a
// pointer into the request body ("/record", "/filter").
func BadRequestError(path, msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Status: 400, Message: msg, Path: path}
}

// NotFoundError reports a query that yielded no rows where exactly one was
// expected.
func NotFoundError(entity string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("No %s matched the given query", entity),
	}
}

// MoreThanOneResultError reports a query that yielded several rows where
// exactly one was expected. Distinct from NotFound so callers can branch.
func MoreThanOneResultError(entity string) *AppError {
	return &AppError{
		Code:    "MORE_THAN_ONE_RESULT",
		Status:  409,
		Message: fmt.Sprintf("More than one %s matched the given query", entity),
	}
}

// UnknownEntityError reports a request against an unregistered entity.
func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

// BadConfigError reports broken wiring. Always a deployment mistake, never
// a user input problem.
func BadConfigError(msg string) *AppError {
	return &AppError{Code: "BAD_CONFIG", Status: 500, Message: msg}
}

// UnauthorizedError reports a missing or invalid credential.
func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

// AccessDeniedError reports a security hook veto, optionally naming the
// missing role.
func AccessDeniedError(role string) *AppError {
	msg := "Access denied"
	if role != "" {
		msg = fmt.Sprintf("Access denied, role %s is required", role)
	}
	return &AppError{Code: "ACCESS_DENIED", Status: 403, Message: msg, Role: role}
}
