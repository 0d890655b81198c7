// Package fetcher downloads release artifacts and checksum manifests into a
// scoped temporary workspace and extracts the server binary from them.
//
// Downloads go through a chain of Downloaders (in-process HTTP first, then
// curl and wget through the command runner), each retried with a constant
// delay. The workspace is removed on Close whatever the outcome.
package fetcher
