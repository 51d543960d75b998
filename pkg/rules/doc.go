// Package rules loads declarative triage stages.
//
// Each stage is a YAML file describing bounds, probes, magic signatures,
// classification mappings and ordered condition rules. The last stage in
// order is the finalization stage; it declares the outcomes, the mandatory
// otherwise fallback and the dispatch rules.
//
// # Architecture
//
// - ast: stage, rule, condition and action nodes plus field references
// - parser: YAML parsing and AST construction with source locations
// - compiler: load-time checks and the compiled, immutable pipeline
// - errors: located compilation errors with codes and suggestions
// - source: file, memory and watched stage sources
//
// # Basic Usage
//
//	pipeline, err := rules.LoadPipeline([]string{
//	    "stages/10-ingest.yaml",
//	    "stages/90-verdict.yaml",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(pipeline.Names())
package rules
