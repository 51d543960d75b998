// Package health serves liveness and readiness endpoints for the
// long-running watch command.
package health
