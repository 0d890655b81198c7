package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStackIsLIFO pops actions in reverse push order and reports emptiness.
func TestStackIsLIFO(t *testing.T) {
	t.Parallel()

	var s Stack

	s.Push(RemovePath{Path: "/usr/local/bin/mediamtx"})
	s.Push(DeleteServiceAccount{Name: "mediamtx"})
	s.Push(StopService{Unit: "mediamtx.service"})
	require.Equal(t, 3, s.Len())
	require.Equal(t, "remove /usr/local/bin/mediamtx", s.Snapshot()[0].String())

	a, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, StopService{Unit: "mediamtx.service"}, a)

	a, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, DeleteServiceAccount{Name: "mediamtx"}, a)

	s.Clear()

	_, ok = s.Pop()
	require.False(t, ok)
}
