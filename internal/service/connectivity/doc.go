// Package connectivity confirms outbound reachability of the release host with
// a fallback chain of probes (HTTP HEAD, TCP connect, DNS lookup) and falls
// back to operator consent when none of them succeeds.
package connectivity
