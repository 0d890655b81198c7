package install

import (
	"errors"
	"fmt"
)

// Kind classifies an installation failure.
type Kind string

// Failure kinds. RollbackAction failures are logged and never abort a run.
const (
	KindUnknown         Kind = "UnknownError"
	KindConnectivity    Kind = "ConnectivityError"
	KindDependency      Kind = "DependencyError"
	KindDownload        Kind = "DownloadError"
	KindChecksum        Kind = "ChecksumMismatch"
	KindUnverified      Kind = "UnverifiedArtifact"
	KindExtraction      Kind = "ExtractionError"
	KindInstall         Kind = "InstallError"
	KindConfig          Kind = "ConfigError"
	KindService         Kind = "ServiceError"
	KindRollbackAction  Kind = "RollbackActionError"
	KindUnsupportedArch Kind = "UnsupportedArchitecture"
	KindPermission      Kind = "PermissionError"
	KindInterrupted     Kind = "Interrupted"
	KindDeclined        Kind = "Declined"
	KindLocked          Kind = "Locked"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitGeneric         = 1
	ExitUnsupportedArch = 2
	ExitInstall         = 3
	ExitVerification    = 4
	ExitPermission      = 5
	ExitConnectivity    = 6
	ExitConfig          = 7
)

// Error is a classified installation failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Op names the operation that failed.
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind so errors.Is(err, &Error{Kind: K}) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	return other.Kind == e.Kind && other.Op == "" && other.Err == nil
}

// Wrap classifies err. A nil err yields nil. An already classified error keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return KindUnknown
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch KindOf(err) {
	case KindUnsupportedArch:
		return ExitUnsupportedArch
	case KindDownload, KindExtraction, KindInstall, KindService, KindInterrupted:
		return ExitInstall
	case KindChecksum, KindUnverified:
		return ExitVerification
	case KindPermission:
		return ExitPermission
	case KindConnectivity:
		return ExitConnectivity
	case KindConfig:
		return ExitConfig
	default:
		return ExitGeneric
	}
}
