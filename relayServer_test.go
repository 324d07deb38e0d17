package sealink

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelayRetentionBound(t *testing.T) {
	relay, err := NewRelayServer(RelayConfig{Port: 0, RetainLimit: 3})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		relay.retain("dm/a/b", []byte(strconv.Itoa(i)))
	}

	frames := relay.retained["dm/a/b"]
	require.Len(t, frames, 3)
	require.Equal(t, []byte("2"), frames[0])
	require.Equal(t, []byte("4"), frames[2])
}

func TestLockListEvictsOldest(t *testing.T) {
	list := lockList{}
	list.setMaxLength(2)

	list.push([]byte("a"))
	list.push([]byte("b"))
	require.True(t, list.contains([]byte("a")))

	list.push([]byte("c"))
	require.False(t, list.contains([]byte("a")))
	require.True(t, list.contains([]byte("b")))
	require.True(t, list.contains([]byte("c")))
}
