// Package systemtest provides in-memory fakes of the system package for tests.
package systemtest
