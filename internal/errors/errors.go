package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the juxtapose worker
 *
 * Every failure of the extraction/collage pipeline is reported as a
 * ProcessingError carrying one ErrorCode, so callers can tell
 * "could not process image" apart from the valid "no text found" outcome.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Extraction errors
	ErrorImageLoadFailed        ErrorCode = "IMAGE_LOAD_FAILED"
	ErrorEngineUnavailable      ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorUnsupportedGranularity ErrorCode = "UNSUPPORTED_GRANULARITY"
	ErrorOCRFailed              ErrorCode = "OCR_FAILED"
	ErrorUnsupportedFormat      ErrorCode = "UNSUPPORTED_FORMAT"

	// Composition errors
	ErrorEmptyInput  ErrorCode = "EMPTY_INPUT"
	ErrorWriteFailed ErrorCode = "WRITE_FAILED"

	// Job errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Path      string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewImageLoadError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageLoadFailed,
		Message:   fmt.Sprintf("Failed to load image: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewEngineUnavailableError(engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineUnavailable,
		Message:   fmt.Sprintf("OCR engine unavailable: %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewUnsupportedGranularityError(granularity string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedGranularity,
		Message:   fmt.Sprintf("Unsupported granularity: %q (want letter or word)", granularity),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"granularity": granularity,
		},
	}
}

func NewOCRFailedError(path string, engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed with engine: %s", engine),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(path string, format string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported image format: %s", format),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"format": format,
		},
	}
}

func NewEmptyInputError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyInput,
		Message:   fmt.Sprintf("Cannot reopen source image for annotation: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewWriteFailedError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorWriteFailed,
		Message:   fmt.Sprintf("Failed to write collage: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// HasCode reports whether err, or anything it wraps, is a ProcessingError
// with the given code.
func HasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if !stderrors.As(err, &pe) {
		return false
	}
	if pe.Code == code {
		return true
	}
	return pe.Cause != nil && HasCode(pe.Cause, code)
}

// CodeOf returns the code of the outermost ProcessingError in err's chain,
// or "" when there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// AsProcessingError returns the outermost ProcessingError in err's chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ToMap converts error to map for job status payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Path != "" {
		result["path"] = e.Path
	}
	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
