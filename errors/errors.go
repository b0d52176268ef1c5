package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Error kinds surfaced to whoever submitted a question. Match them with Is.
var (
	// ErrConfiguration means a required setting, usually the API credential,
	// is missing or invalid. No network call was attempted.
	ErrConfiguration = stderrors.New("configuration error")
	// ErrService means the remote completion service failed.
	ErrService = stderrors.New("service error")
	// ErrEmptyGeneration means a call succeeded but produced no usable text.
	ErrEmptyGeneration = stderrors.New("empty generation, please try again")
	// ErrEmptyQuestion means the submitted question was blank.
	ErrEmptyQuestion = stderrors.New("please enter a question")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(2), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(2), fmt.Sprintf(format, a...), err)
}

// Configuration returns an ErrConfiguration with file and line information.
func Configuration(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %w: %s", caller(2), ErrConfiguration, fmt.Sprintf(format, a...))
}

// Service wraps a remote failure as ErrService. If err is nil, Service
// returns nil.
func Service(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %w: %s: %w", caller(2), ErrService, fmt.Sprintf(format, a...), err)
}

// EmptyGeneration reports that the named agent returned no text.
func EmptyGeneration(agent string) error {
	return fmt.Errorf("[%s] %s agent: %w", caller(2), agent, ErrEmptyGeneration)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
