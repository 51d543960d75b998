// Package config loads the triage configuration.
//
// Configuration comes from a YAML file decoded over built-in defaults, then
// TRIAGE_* environment variables, then validation:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("triage.yaml")
//
// Variables follow TRIAGE_SECTION_FIELD, for example:
//
//   - TRIAGE_STAGES_PATH overrides stages.path
//   - TRIAGE_RECORDER_BACKEND overrides recorder.backend
//   - TRIAGE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A variable with an unparsable value fails loading with a ValidationError
// naming the variable.
//
// Validation collects every problem before failing:
//
//	if err := config.Validate(cfg); err != nil {
//		var verr config.ValidationError
//		if errors.As(err, &verr) {
//			for _, fe := range verr.Errors {
//				fmt.Println(fe.Field, fe.Message)
//			}
//		}
//	}
//
// Initialize, GetConfig and ReloadConfig keep a process-wide instance for the
// command-line tool. Libraries take explicit values instead.
package config
