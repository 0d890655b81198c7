// Package registrar creates the service account and registers the media
// server with the host service manager.
//
// Systemd is driven with systemctl through the command runner and receives a
// hardened unit file. Other init systems go through kardianos/service. Every
// step that creates something persistent returns its compensating action.
// Failing to create the dedicated account is the one tolerated error: the
// service then runs under the fallback account and a warning is logged.
package registrar
