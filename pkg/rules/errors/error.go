package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"mercator-hq/triage/pkg/rules/ast"
)

// ErrorType categorizes the type of error encountered while loading a stage.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // YAML syntax error
	ErrorTypeStructural ErrorType = "structural" // Schema violation (missing/invalid fields)
	ErrorTypeSemantic   ErrorType = "semantic"   // Undefined reference, conflicting declaration
	ErrorTypeBounds     ErrorType = "bounds"     // Missing or invalid resource ceiling
	ErrorTypeIO         ErrorType = "io"         // File I/O error
)

// Code identifies a specific compilation failure so callers can test for it.
type Code string

const (
	CodeMissingFallback     Code = "MissingFallback"
	CodeDuplicateSignal     Code = "DuplicateSignal"
	CodeUnboundedCeiling    Code = "UnboundedCeiling"
	CodeUnsupportedFailMode Code = "UnsupportedFailMode"
	CodeUnknownOutcome      Code = "UnknownOutcome"
	CodeUnknownProbe        Code = "UnknownProbe"
	CodeProbeCycle          Code = "ProbeCycle"
	CodeUndeclaredSource    Code = "UndeclaredSource"
	CodeOutcomeNotPermitted Code = "OutcomeNotPermitted"
	CodeInvalidAction       Code = "InvalidAction"
	CodeInvalidCondition    Code = "InvalidCondition"
	CodeInvalidPipeline     Code = "InvalidPipeline"
)

// Error represents a compilation error with location, context, and suggestions.
type Error struct {
	Type       ErrorType    // Category of error
	Code       Code         // Specific failure, empty for generic errors
	Message    string       // Error message
	Location   ast.Location // Source location (file, line, column)
	Context    string       // Surrounding lines of source
	Suggestion string       // Suggested fix (optional)
}

// Error implements the error interface.
// It returns a formatted error message with location and context.
func (e *Error) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString(fmt.Sprintf("[%s:%s] %s\n", e.Type, e.Code, e.Message))
	} else {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Type, e.Message))
	}

	if e.Location.IsValid() {
		sb.WriteString(fmt.Sprintf("  --> %s\n", e.Location.String()))
	}

	if e.Context != "" {
		sb.WriteString("  |\n")
		sb.WriteString(e.Context)
		sb.WriteString("  |\n")
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  = suggestion: %s\n", e.Suggestion))
	}

	return sb.String()
}

// ErrorList accumulates errors instead of failing on the first one.
type ErrorList struct {
	Errors []*Error
}

// NewErrorList creates a new empty error list.
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*Error, 0),
	}
}

// Add appends an error to the list.
func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddError creates and adds a new error with the given parameters.
func (el *ErrorList) AddError(errType ErrorType, message string, location ast.Location) {
	el.Add(&Error{
		Type:     errType,
		Message:  message,
		Location: location,
	})
}

// AddErrorWithSuggestion creates and adds a new error with a suggestion.
func (el *ErrorList) AddErrorWithSuggestion(errType ErrorType, message string, location ast.Location, suggestion string) {
	el.Add(&Error{
		Type:       errType,
		Message:    message,
		Location:   location,
		Suggestion: suggestion,
	})
}

// AddCoded creates and adds a new error carrying a failure code.
func (el *ErrorList) AddCoded(errType ErrorType, code Code, message string, location ast.Location, suggestion string) {
	el.Add(&Error{
		Type:       errType,
		Code:       code,
		Message:    message,
		Location:   location,
		Suggestion: suggestion,
	})
}

// Merge appends all errors of another list.
func (el *ErrorList) Merge(other *ErrorList) {
	if other == nil {
		return
	}
	el.Errors = append(el.Errors, other.Errors...)
}

// HasErrors returns true if the error list contains any errors.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Count returns the number of errors in the list.
func (el *ErrorList) Count() int {
	return len(el.Errors)
}

// Error implements the error interface.
// It returns all errors formatted as a single string.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d error(s):\n\n", el.Count()))

	for i, err := range el.Errors {
		sb.WriteString(fmt.Sprintf("Error %d:\n", i+1))
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}

	return sb.String()
}

// ToError returns nil if the error list is empty, otherwise the list itself.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	return el
}

// ByType returns all errors of the given type.
func (el *ErrorList) ByType(errType ErrorType) []*Error {
	var result []*Error
	for _, err := range el.Errors {
		if err.Type == errType {
			result = append(result, err)
		}
	}
	return result
}

// HasErrorType returns true if the list contains at least one error of the given type.
func (el *ErrorList) HasErrorType(errType ErrorType) bool {
	for _, err := range el.Errors {
		if err.Type == errType {
			return true
		}
	}
	return false
}

// HasCode returns true if the list contains at least one error with the given code.
func (el *ErrorList) HasCode(code Code) bool {
	for _, err := range el.Errors {
		if err.Code == code {
			return true
		}
	}
	return false
}

// HasCode reports whether err is, or wraps, a compilation error carrying code.
func HasCode(err error, code Code) bool {
	var list *ErrorList
	if stderrors.As(err, &list) {
		return list.HasCode(code)
	}
	var single *Error
	if stderrors.As(err, &single) {
		return single.Code == code
	}
	return false
}
