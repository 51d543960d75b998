// Package errors provides rich compilation errors for triage stage definitions.
//
// Compilation errors are fatal at load time and never occur at run time.
// Each error carries a type, an optional failure code (MissingFallback,
// DuplicateSignal, UnboundedCeiling, ...), the source location and a
// suggested fix.
//
// Accumulate multiple errors:
//
//	errList := errors.NewErrorList()
//	errList.AddCoded(errors.ErrorTypeSemantic, errors.CodeMissingFallback,
//	    "finalization stage has no 'otherwise' outcome", stage.Location, "")
//	return errList.ToError()
//
// Test for a specific failure:
//
//	if errors.HasCode(err, errors.CodeMissingFallback) { ... }
package errors
