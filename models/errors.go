package models

import "fmt"

// FileValidationError reports a file that fails a precondition check.
type FileValidationError struct {
	Name   string
	Reason string
}

func (e *FileValidationError) Error() string {
	return fmt.Sprintf("invalid file %s: %s", e.Name, e.Reason)
}

// CodecLoadError reports a codec resource that could not be fetched or
// instantiated. It is retryable and never aborts a job on its own.
type CodecLoadError struct {
	Codec string
	Err   error
}

func (e *CodecLoadError) Error() string {
	return fmt.Sprintf("load codec %s: %v", e.Codec, e.Err)
}

func (e *CodecLoadError) Unwrap() error { return e.Err }

// ProcessingError reports a local execution failure.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("local processing failed: %v", e.Err)
	}
	return fmt.Sprintf("local processing failed during %s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// EdgeProcessingError reports an edge endpoint error status or an
// unreachable endpoint (StatusCode 0).
type EdgeProcessingError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *EdgeProcessingError) Error() string {
	return "edge processing failed: " + e.Message
}

func (e *EdgeProcessingError) Unwrap() error { return e.Err }

// AggregateProcessingError is returned when local execution and the automatic
// edge fallback both failed.
type AggregateProcessingError struct {
	Local error
	Edge  error
}

func (e *AggregateProcessingError) Error() string {
	return fmt.Sprintf("local and edge processing failed: local: %v; edge: %v", e.Local, e.Edge)
}

func (e *AggregateProcessingError) Unwrap() []error {
	return []error{e.Local, e.Edge}
}

// JobErrorMessage turns an error into the message stored on a failed job.
func JobErrorMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

// CancelledMessage is the error stored on jobs cancelled by the user.
const CancelledMessage = "Cancelled by user"
