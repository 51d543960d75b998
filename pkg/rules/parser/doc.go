// Package parser provides YAML parsing and AST construction for triage stages.
//
// Each file describes one stage. The parser reads the YAML, checks its
// structure and builds an [ast.Stage] with line/column locations taken from
// the YAML nodes. Reference, bound and fallback checks happen later in the
// compiler package.
//
// # Stage format
//
//	name: pdf_analysis
//	version: "1.0.0"
//	order: 20
//	bounds:
//	  max_read_bytes: 1048576
//	  max_scan_bytes: 4194304
//	  max_depth: 8
//	  max_members: 256
//	  fail_mode: soft
//	sources: [ingest]
//	probes:
//	  - name: pdf
//	    kind: pdf_structure
//	    observe: true
//	magic:
//	  - signal: magic_pdf
//	    offset: 0
//	    bytes: "25 50 44 46"
//	classify:
//	  - observed: magic_pdf
//	    then:
//	      - {type: signal, key: observed_type, value: pdf}
//	rules:
//	  - name: pdf-active-content
//	    when:
//	      all:
//	        - {field: observed_type, operator: "==", value: pdf}
//	        - pdf.has_javascript
//	    then:
//	      - {type: signal, key: PdfHasJavascript, value: true}
//	      - {type: risk_hint, value: ActiveContent}
//	      - {type: score, delta: 0.4}
//
// A bare string condition is shorthand for "field is true". A list of
// conditions is an implicit all.
//
// The finalization stage uses kind: finalization and declares outcomes,
// a mandatory otherwise fallback and dispatch rules.
//
// # Usage
//
//	p := parser.NewParser()
//	stage, err := p.Parse("stages/20-pdf.yaml")
//	if err != nil {
//	    log.Fatal(err) // *errors.Error or *errors.ErrorList with locations
//	}
package parser
