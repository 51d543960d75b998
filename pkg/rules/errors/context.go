package errors

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"mercator-hq/triage/pkg/rules/ast"
)

// defaultContextLines is the number of lines shown around an error.
const defaultContextLines = 2

// ExtractContext renders the lines surrounding location from src, marking the
// offending line and column. It returns "" when the location is outside src.
func ExtractContext(src []byte, location ast.Location, contextLines int) string {
	if !location.IsValid() || len(src) == 0 {
		return ""
	}

	lines := strings.Split(string(bytes.TrimRight(src, "\n")), "\n")
	target := location.Line - 1
	if target < 0 || target >= len(lines) {
		return ""
	}

	start := max(target-contextLines, 0)
	end := min(target+contextLines, len(lines)-1)
	width := len(fmt.Sprintf("%d", end+1))

	var sb strings.Builder
	for i := start; i <= end; i++ {
		marker := "  "
		if i == target {
			marker = "->"
		}
		fmt.Fprintf(&sb, "%s %*d | %s\n", marker, width, i+1, lines[i])

		if i == target && location.Column > 0 {
			fmt.Fprintf(&sb, "   %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", location.Column-1))
		}
	}
	return sb.String()
}

// WithSource attaches context from in-memory stage source to every error in the list.
func (el *ErrorList) WithSource(src []byte) *ErrorList {
	for _, err := range el.Errors {
		if err.Context == "" {
			err.Context = ExtractContext(src, err.Location, defaultContextLines)
		}
	}
	return el
}

// AddContextToError reads the stage file named by the error location and
// attaches the surrounding lines. Unreadable files leave the error unchanged.
func AddContextToError(err *Error) *Error {
	if !err.Location.IsValid() || err.Location.File == "" {
		return err
	}
	src, readErr := os.ReadFile(err.Location.File)
	if readErr != nil {
		return err
	}
	err.Context = ExtractContext(src, err.Location, defaultContextLines)
	return err
}
