package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation targets a session/agent pair that
// has no registered row.
var ErrNotFound = errors.New("not found")

// Validation codes reported to callers.
const (
	CodeMissingField   = "MISSING_FIELD"
	CodeTextTooLong    = "TEXT_TOO_LONG"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// ValidationError carries field-level detail for caller-fixable rejections.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// MissingField reports a required field that was absent or blank.
func MissingField(field string) *ValidationError {
	return &ValidationError{Field: field, Code: CodeMissingField, Message: "required"}
}

// TextTooLong reports a text field exceeding MaxTextLen bytes.
func TextTooLong(field string, n int) *ValidationError {
	return &ValidationError{
		Field:   field,
		Code:    CodeTextTooLong,
		Message: fmt.Sprintf("%d bytes exceeds limit of %d", n, MaxTextLen),
	}
}

// InvalidPayload reports a structurally malformed request body or blob.
func InvalidPayload(field string) *ValidationError {
	return &ValidationError{Field: field, Code: CodeInvalidPayload, Message: "malformed"}
}

// CheckTextLen validates a text field against MaxTextLen.
func CheckTextLen(field, text string) error {
	if len(text) > MaxTextLen {
		return TextTooLong(field, len(text))
	}
	return nil
}

// ValidateEvent checks the required fields and blob shape of an incoming
// event before it reaches storage.
func ValidateEvent(ev Event) error {
	if ev.SourceApp == "" {
		return MissingField("source_app")
	}
	if ev.SessionID == "" {
		return MissingField("session_id")
	}
	if ev.HookEventType == "" {
		return MissingField("hook_event_type")
	}
	if len(ev.Payload) == 0 {
		return MissingField("payload")
	}
	if !json.Valid(ev.Payload) {
		return InvalidPayload("payload")
	}
	if len(ev.Payload) > MaxTextLen {
		return TextTooLong("payload", len(ev.Payload))
	}
	if len(ev.Chat) > 0 && !json.Valid(ev.Chat) {
		return InvalidPayload("chat")
	}
	if len(ev.Chat) > MaxTextLen {
		return TextTooLong("chat", len(ev.Chat))
	}
	return nil
}
