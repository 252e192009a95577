package models

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the registry and job control surface
var (
	// ErrInvalidSource indicates a job creation request named an unregistered source tag
	ErrInvalidSource = errors.New("invalid source")

	// ErrNotFound indicates an unknown job ID
	ErrNotFound = errors.New("job not found")

	// ErrNotCompleted indicates results were requested before the job completed
	ErrNotCompleted = errors.New("job not completed")
)

// FetchError wraps a collaborator failure from the browser/network layer.
// It fails the whole job but never another job; no automatic retry.
type FetchError struct {
	Source SourceType
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for source %s page %d: %v", e.Source, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError marks a single fragment that failed normalization.
// Logged and skipped; never aborts the job.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for fragment %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistError wraps an output-write failure. The job ends failed and no
// partial output is presented as complete.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist failed for %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
