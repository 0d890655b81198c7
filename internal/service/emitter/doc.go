// Package emitter renders the media server configuration from a fixed
// template and writes it as a transactional step.
//
// Only ports, paths and the log destination vary. A rendered document is
// validated against an embedded JSON schema and must parse back into the
// settings it was rendered from before it is written.
package emitter
