package install

// Actor identifies who ran an installation.
type Actor struct {
	// Hostname is the machine name where the installer ran.
	Hostname string `yaml:"hostname"`
	// Username is the effective user, normally root.
	Username string `yaml:"username"`
	// SudoUser is the operator behind sudo, if any.
	SudoUser string `yaml:"sudo_user,omitempty"`
}

// String renders the actor as user@host, naming the sudo operator when known.
func (a *Actor) String() string {
	if a == nil {
		return ""
	}

	who := a.Username
	if a.SudoUser != "" && a.SudoUser != a.Username {
		who = a.SudoUser + " (as " + a.Username + ")"
	}

	return who + "@" + a.Hostname
}
