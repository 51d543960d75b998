// Package metrics provides the Prometheus metrics of the triage engine.
//
// A Collector groups run, stage and probe metrics under one registry:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRun("Malicious", elapsed, 0.9)
//	http.Handle("/metrics", collector.Handler())
//
// Label values derived from stage definitions (outcomes, rules, emission
// kinds, actors) pass through a CardinalityLimiter and collapse into
// "other" past the limit. Commands that exit after one run can write the
// registry to a textfile with WriteTextfile.
package metrics
