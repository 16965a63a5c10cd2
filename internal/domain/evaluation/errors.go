package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("evaluation not found")
	ErrForbidden         = errors.New("not permitted")
	ErrDuplicate         = errors.New("evaluation already submitted for this period")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("evaluation is not open for this action")
	ErrValidation        = errors.New("validation failed")
)

type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, reason string) {
	e.Issues = append(e.Issues, Issue{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

func invalid(field, reason string) error {
	return &ValidationError{Issues: []Issue{{Field: field, Reason: reason}}}
}

// DuplicateSubmissionError carries the record already stored for the tuple.
type DuplicateSubmissionError struct {
	Existing Evaluation
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("evaluation %s already exists for this period", e.Existing.ID)
}

func (e *DuplicateSubmissionError) Unwrap() error {
	return ErrDuplicate
}

// TransientStoreError marks a store or network failure the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// storeErr passes domain sentinels through and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, context.Canceled):
		return err
	}
	var transient *TransientStoreError
	if errors.As(err, &transient) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}
