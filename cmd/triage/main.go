// Triage analyses untrusted files with a staged, bounded rule pipeline and
// reports a verdict for each.
//
// Usage:
//
//	# Analyse files against the stages in ./stages
//	triage run sample.pdf archive.zip
//
//	# Pass submitter metadata and record the results
//	triage run --claim extension=pdf --record invoice.pdf
//
//	# Check stage files before deploying them
//	triage lint stages/
//
//	# Analyse everything dropped into an inbox, reloading stages on change
//	triage watch --inbox /var/spool/triage
//
//	# Show recorded runs
//	triage history --outcome Malicious --since 24h
package main

import "os"

func main() {
	os.Exit(Execute())
}
