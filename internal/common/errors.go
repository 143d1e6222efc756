package common

import (
	"fmt"
)

// CorruptRecordError is returned when an on-disk record (write ahead log entry,
// table block or batch payload) fails to decode.
type CorruptRecordError struct {
	Message string
}

func (cr CorruptRecordError) Error() string {
	return fmt.Sprintf("%s", cr.Message)
}

// NewCorruptRecordError creates a new instance of CorruptRecordError with the given message.
func NewCorruptRecordError(message string) CorruptRecordError {
	return CorruptRecordError{
		Message: message,
	}
}

// InvalidInternalKeyError is returned when an internal key is structurally invalid.
type InvalidInternalKeyError struct {
	Message string
}

func (ik InvalidInternalKeyError) Error() string {
	return fmt.Sprintf("%s", ik.Message)
}

// NewInvalidInternalKeyError creates a new instance of InvalidInternalKeyError with the given message.
func NewInvalidInternalKeyError(message string) InvalidInternalKeyError {
	return InvalidInternalKeyError{
		Message: message,
	}
}
