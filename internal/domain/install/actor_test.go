package install

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestActorString covers plain and sudo invocations and the nil receiver.
func TestActorString(t *testing.T) {
	t.Parallel()

	require.Empty(t, (*Actor)(nil).String())
	require.Equal(t, "root@media-01", (&Actor{Hostname: "media-01", Username: "root"}).String())
	require.Equal(t, "ops (as root)@media-01",
		(&Actor{Hostname: "media-01", Username: "root", SudoUser: "ops"}).String())
	require.Equal(t, "root@media-01",
		(&Actor{Hostname: "media-01", Username: "root", SudoUser: "root"}).String())
}

// TestPortsPrivileged checks the low-port detection used for capability grants.
func TestPortsPrivileged(t *testing.T) {
	t.Parallel()

	require.False(t, Ports{RTSP: 8554, RTMP: 1935, HLS: 8888}.Privileged())
	require.True(t, Ports{RTSP: 554, RTMP: 1935, HLS: 8888}.Privileged())
	require.Equal(t, []int{8554, 1935, 8888, 9997}, Ports{RTSP: 8554, RTMP: 1935, HLS: 8888, API: 9997}.List())
}
