// Package installer wires the installation steps into one transaction: probe,
// fetch, verify, install, configure, register, then report. It also removes an
// installation described by its receipt.
package installer
