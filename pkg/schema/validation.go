package schema

import (
	"fmt"
	"strings"
)

// ValidationIssue is a single problem found in a program document.
type ValidationIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult collects the issues from schema and structural checks.
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// Valid returns true if no issues were recorded.
func (r *ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

// Addf records an issue with a formatted message.
func (r *ValidationResult) Addf(path, code, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{
		Path: path, Code: code, Message: fmt.Sprintf(format, args...),
	})
}

// Merge appends the issues of another result.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// ToError returns nil when valid, otherwise a VALIDATION_ERROR listing every issue.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	lines := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		lines[i] = issue.String()
	}
	msg := lines[0]
	if len(lines) > 1 {
		msg = fmt.Sprintf("%d issues: %s", len(lines), strings.Join(lines, "; "))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"issues": r.Issues})
}
