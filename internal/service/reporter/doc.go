// Package reporter renders the end-of-run summary and exports the run as
// Prometheus textfile metrics.
//
// An unverified artifact is always called out as reduced assurance so it
// never reads as a plain success.
package reporter
