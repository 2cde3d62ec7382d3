package storage

import "fmt"

// Postgres SQLSTATE codes the stores report back to callers.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodePermissionDenied    = "42501"
)

// Error is a store failure carrying a machine-readable code.
// In-process stores use it so callers see the same codes a real database would produce.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

func (e *Error) ErrorCode() string {
	return e.Code
}

// Is lets errors.Is(err, ErrNotFound) match a not-found coded error.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Code == NotFoundCode
}

func UniqueViolation(msg string) error {
	return &Error{Code: CodeUniqueViolation, Message: msg}
}

func PermissionDenied(msg string) error {
	return &Error{Code: CodePermissionDenied, Message: msg}
}
