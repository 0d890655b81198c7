package version

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestUserAgent checks the agent names the product and the build.
func TestUserAgent(t *testing.T) {
	t.Parallel()

	agent := UserAgent()
	require.True(t, strings.HasPrefix(agent, "mediamtx-installer/"))
	require.True(t, strings.HasSuffix(agent, Short()))
}

// TestVersionCommand runs the attached subcommand and checks its output.
func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "mediamtx-installer"}
	AttachCobraVersionCommand(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Equal(t, Full()+"\n", out.String())
	require.Contains(t, out.String(), "commit: "+Commit)
}
