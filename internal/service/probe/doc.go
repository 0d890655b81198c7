// Package probe answers read-only questions about the host: the release
// architecture tag, the init system, the package manager, free disk space and
// whether the media server is already running.
package probe
