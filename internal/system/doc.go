// Package system is the boundary to host executables.
//
// Every external command the installer runs (package managers, download tools,
// systemctl, account management) goes through Runner so services can be tested
// with a recorded fake instead of touching the host.
package system
