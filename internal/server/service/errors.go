package service

import (
	"errors"
	"fmt"

	"convertly/internal/server/database"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound         = errors.New("conversion not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidOptions   = errors.New("invalid options format")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrConversionFailed = errors.New("conversion failed")
	ErrForbidden        = errors.New("access denied")
	ErrFileNotFound     = errors.New("file not found")
)

// InputError is a request problem whose message is safe to show to the
// client as is.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// ConversionFailure wraps an error raised while converting. Clients only
// ever see Message; Err is for logs.
type ConversionFailure struct {
	Type database.ConversionType
	Err  error
}

func (e *ConversionFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *ConversionFailure) Unwrap() []error {
	return []error{ErrConversionFailed, e.Err}
}

// Message is the generic client-facing description of the failure.
func (e *ConversionFailure) Message() string {
	switch e.Type {
	case database.TypePDFMerge:
		return "Failed to merge PDFs"
	case database.TypeImageToPDF:
		return "Failed to convert images to PDF"
	case database.TypePDFToImage:
		return "Failed to convert PDF to images"
	case database.TypeImageConvert:
		return "Failed to convert images"
	default:
		return "Conversion failed"
	}
}
