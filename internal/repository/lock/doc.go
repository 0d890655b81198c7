// Package lock provides the PID lock file that serializes installer runs on a host.
package lock
