package sealink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientConfigDefaults(t *testing.T) {
	client, err := NewClient(Config{DataDir: t.TempDir()})
	require.NoError(t, err)

	// unset knobs pick up working defaults
	require.Equal(t, 128, client.config.EventBuffer)
	require.Equal(t, 10000, client.config.AckTimeoutMS)
	require.NotEmpty(t, client.config.Relay)
}

func TestClientAPIDisabledByZeroPort(t *testing.T) {
	client, err := NewClient(Config{DataDir: t.TempDir(), APIPort: 0})
	require.NoError(t, err)

	require.Nil(t, client.api)
	require.NoError(t, client.ServeAPI())
}

func TestClientAPIConfiguredPort(t *testing.T) {
	client, err := NewClient(Config{DataDir: t.TempDir(), APIPort: 18099})
	require.NoError(t, err)

	require.NotNil(t, client.api)
	require.Equal(t, 18099, client.api.port)
}

func TestClientIdentitySingleton(t *testing.T) {
	client, err := NewClient(Config{DataDir: t.TempDir()})
	require.NoError(t, err)

	identity, err := client.CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)
	require.NotEmpty(t, identity.PublicKey)

	_, err = client.CreateIdentity("alice2", "correcthorse1")
	require.ErrorIs(t, err, ErrIdentityExists)
}
