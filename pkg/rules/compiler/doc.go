// Package compiler turns parsed stage ASTs into an immutable, checked pipeline.
//
// Compilation runs three passes per stage (structural, action, semantic)
// followed by pipeline-wide checks. Every failure is a load-time error with
// a code from the errors package:
//
//   - MissingFallback: the finalization stage has no 'otherwise' outcome
//   - DuplicateSignal: a stage writes the same signal key in two places
//   - UnboundedCeiling: a bound is missing or not positive
//   - UnsupportedFailMode: any fail mode other than soft
//   - UnknownOutcome, UnknownProbe, ProbeCycle, UndeclaredSource
//   - OutcomeNotPermitted: outcome assignment outside finalization
//   - InvalidAction, InvalidCondition, InvalidPipeline
//
// Errors accumulate so a single lint run reports every problem.
//
//	pipeline, err := compiler.NewCompiler().Compile(stages)
//	if errors.HasCode(err, errors.CodeMissingFallback) { ... }
package compiler
