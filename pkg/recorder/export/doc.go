// Package export writes run records as JSON or CSV for the history
// command and for archiving records before retention deletes them.
package export
