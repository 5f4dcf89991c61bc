package errors

import (
	"errors"
	"fmt"
)

// PDFError describes a failure to read a PDF or its metadata
type PDFError struct {
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	Context  string    `json:"context,omitempty"`
	FilePath string    `json:"file_path,omitempty"`
	Err      error     `json:"-"`
}

// ErrorType represents different categories of PDF reading errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInvalidPath
	ErrorTypeResourceNotFound
	ErrorTypeFileTooLarge
	ErrorTypeInvalidStructure
	ErrorTypeInvalidMetadata
	ErrorTypeSecurityRestriction
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying parser or filesystem error
func (e *PDFError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeInvalidPath:
		return "INVALID_PATH"
	case ErrorTypeResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case ErrorTypeFileTooLarge:
		return "FILE_TOO_LARGE"
	case ErrorTypeInvalidStructure:
		return "INVALID_STRUCTURE"
	case ErrorTypeInvalidMetadata:
		return "INVALID_METADATA"
	case ErrorTypeSecurityRestriction:
		return "SECURITY_RESTRICTION"
	default:
		return "UNKNOWN"
	}
}

// NewPDFError creates a new PDFError
func NewPDFError(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
	}
}

// WrapError wraps a standard error as a PDFError
func WrapError(errorType ErrorType, message string, err error) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithFile adds file path information to an existing PDFError
func (e *PDFError) WithFile(filePath string) *PDFError {
	e.FilePath = filePath
	return e
}

// IsType reports whether err is a PDFError of the given type anywhere in its chain
func IsType(err error, errorType ErrorType) bool {
	var pdfErr *PDFError
	if errors.As(err, &pdfErr) {
		return pdfErr.Type == errorType
	}
	return false
}
