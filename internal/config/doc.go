// Package config defines the installer settings and provides helpers to
// load, validate and save them in YAML format.
//
// Config holds release URL templates, target directories, service naming,
// listener ports, the download retry policy and the dependency list.
// Config.Target freezes settings plus command line overrides into the
// immutable install.Target used for one run.
package config
