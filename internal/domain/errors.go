package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned (optionally wrapped) by repositories.
var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("unique constraint violated")
)

// IssueCategory classifies a ValidationIssue
type IssueCategory string

const (
	IssueMissing   IssueCategory = "missing"
	IssueInvalid   IssueCategory = "invalid"
	IssueDuplicate IssueCategory = "duplicate"
	// IssueError marks an infrastructure failure recorded against a bulk item.
	IssueError IssueCategory = "error"
)

// ValidationIssue pinpoints one problem with one input field
type ValidationIssue struct {
	Field    string        `json:"field"`
	Message  string        `json:"message"`
	Category IssueCategory `json:"category"`
}

// ValidationError carries the issues that rejected a single-record request
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DuplicateEmail is the issue reported when an email is already taken.
func DuplicateEmail() ValidationIssue {
	return ValidationIssue{
		Field:    "email",
		Message:  "email is already in use",
		Category: IssueDuplicate,
	}
}
