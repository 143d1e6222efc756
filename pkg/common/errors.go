package common

import (
	"fmt"
)

// NotFoundError is returned when the required value is not found.
type NotFoundError struct {
	Message string
}

func (nf NotFoundError) Error() string {
	return fmt.Sprintf("%s", nf.Message)
}

// NewNotFoundError creates a new instance of NotFoundError with the given message.
func NewNotFoundError(message string) NotFoundError {
	return NotFoundError{
		Message: message,
	}
}

// StorageClosedError is returned when an operation is attempted on a closed storage.
type StorageClosedError struct {
	Message string
}

func (sc StorageClosedError) Error() string {
	return fmt.Sprintf("%s", sc.Message)
}

// NewStorageClosedError creates a new instance of StorageClosedError with the given message.
func NewStorageClosedError(message string) StorageClosedError {
	return StorageClosedError{
		Message: message,
	}
}

// ComparatorRegistrationError is returned when registering a timestamp comparator fails.
type ComparatorRegistrationError struct {
	Message string
}

func (cr ComparatorRegistrationError) Error() string {
	return fmt.Sprintf("%s", cr.Message)
}

// NewComparatorRegistrationError creates a new instance of ComparatorRegistrationError with the given message.
func NewComparatorRegistrationError(message string) ComparatorRegistrationError {
	return ComparatorRegistrationError{
		Message: message,
	}
}

// InvalidTimestampError is returned when a timestamp doesn't match the size
// declared by the column family's comparator.
type InvalidTimestampError struct {
	Message string
}

func (it InvalidTimestampError) Error() string {
	return fmt.Sprintf("%s", it.Message)
}

// NewInvalidTimestampError creates a new instance of InvalidTimestampError with the given message.
func NewInvalidTimestampError(message string) InvalidTimestampError {
	return InvalidTimestampError{
		Message: message,
	}
}

// ColumnFamilyError is returned for invalid column family operations such as
// creating a duplicate family or writing to an unknown one.
type ColumnFamilyError struct {
	Message string
}

func (cf ColumnFamilyError) Error() string {
	return fmt.Sprintf("%s", cf.Message)
}

// NewColumnFamilyError creates a new instance of ColumnFamilyError with the given message.
func NewColumnFamilyError(message string) ColumnFamilyError {
	return ColumnFamilyError{
		Message: message,
	}
}

// UnknownError is returned when an unknown error happens.
type UnknownError struct {
	Message string
}

func (nf UnknownError) Error() string {
	return fmt.Sprintf("%s", nf.Message)
}

// NewUnknownError creates a new instance of UnknownError with the given message.
func NewUnknownError(message string) UnknownError {
	return UnknownError{
		Message: message,
	}
}
