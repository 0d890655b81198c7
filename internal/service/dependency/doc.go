// Package dependency makes sure the executables an installation relies on are
// present, installing them through the detected package manager (apt-get,
// dnf, yum, apk, pacman or zypper).
package dependency
