//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDetectActorRecordsSudoOperator checks the receipt actor names the operator behind sudo.
func TestDetectActorRecordsSudoOperator(t *testing.T) {
	t.Setenv(sudoUserEnv, " ops ")

	a, err := DetectActor()
	require.NoError(t, err)
	require.NotEmpty(t, a.Hostname)
	require.NotEmpty(t, a.Username)
	require.Equal(t, "ops", a.SudoUser)
	require.Contains(t, a.String(), "ops")
}
