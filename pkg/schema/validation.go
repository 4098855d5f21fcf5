package schema

import (
	"encoding/json"
	"fmt"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// Issue codes produced by the diagram validator and the document loader.
const (
	IssueMissingStart            = "missing_start"
	IssueMultipleStarts          = "multiple_starts"
	IssueMissingEnd              = "missing_end"
	IssueDisconnectedNode        = "disconnected_nodes"
	IssueDecisionWithoutBranches = "decision_without_branches"
	IssuePotentialCycle          = "potential_cycles"
	IssueSelfLoop                = "self_loop"
	IssueCycleDetected           = "cycle_detected"
	IssueUnreachableNode         = "unreachable_node"

	IssueDanglingConnection = "dangling_connection"
	IssueUnknownNodeType    = "unknown_node_type"
	IssueDuplicateConnector = "duplicate_connector"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path         string             `json:"path"`
	Code         string             `json:"code"`
	Message      string             `json:"message"`
	Severity     ValidationSeverity `json:"severity"`
	NodeIDs      []string           `json:"node_ids,omitempty"`
	ConnectorIDs []string           `json:"connector_ids,omitempty"`
	Details      map[string]any     `json:"details,omitempty"`
}

// ValidationResult aggregates all issues from a validation run.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Add(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Add(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Add appends a fully populated issue to the list matching its severity.
// An issue without a severity is treated as an error.
func (r *ValidationResult) Add(issue ValidationIssue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ErrorsWithCode returns the error issues carrying the given code.
func (r *ValidationResult) ErrorsWithCode(code string) []ValidationIssue {
	return filterIssues(r.Errors, code)
}

// WarningsWithCode returns the warning issues carrying the given code.
func (r *ValidationResult) WarningsWithCode(code string) []ValidationIssue {
	return filterIssues(r.Warnings, code)
}

func filterIssues(issues []ValidationIssue, code string) []ValidationIssue {
	var out []ValidationIssue
	for _, is := range issues {
		if is.Code == code {
			out = append(out, is)
		}
	}
	return out
}

// MarshalJSON emits the report with an is_valid flag and never-null issue lists.
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	errs, warns := r.Errors, r.Warnings
	if errs == nil {
		errs = []ValidationIssue{}
	}
	if warns == nil {
		warns = []ValidationIssue{}
	}
	return json.Marshal(struct {
		IsValid  bool              `json:"is_valid"`
		Errors   []ValidationIssue `json:"errors"`
		Warnings []ValidationIssue `json:"warnings"`
	}{IsValid: len(errs) == 0, Errors: errs, Warnings: warns})
}

// ToError converts the result to a FlowError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
