package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeChatNotFound    = "chat_not_found"
	ErrCodeNotAMember      = "not_a_member"
	ErrCodeMessageNotFound = "message_not_found"
	ErrCodeInvalidToken    = "invalid_token"
	ErrCodeAccessDenied    = "access_denied"
	ErrCodeBadRequest      = "bad_request"
)

var (
	ErrChatNotFound    = coreError(ErrCodeChatNotFound, "chat not found")
	ErrNotAMember      = coreError(ErrCodeNotAMember, "not a member of this chat")
	ErrMessageNotFound = coreError(ErrCodeMessageNotFound, "message not found")
	ErrInvalidToken    = coreError(ErrCodeInvalidToken, "invalid token")
	ErrAccessDenied    = coreError(ErrCodeAccessDenied, "access denied")
	ErrBadRequest      = coreError(ErrCodeBadRequest, "bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorCode extracts the domain error code, or empty string for
// non-domain errors.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
