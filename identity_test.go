package sealink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	identity, record, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)
	require.NotEmpty(t, identity.PublicKey)
	require.NotEmpty(t, identity.PrivateKey)
	require.NotEmpty(t, identity.EncryptionPublicKey)
	require.Equal(t, identity.PublicKey, record.PublicKey)

	unsealed := DecryptIdentity(record, "correcthorse1")
	require.NotNil(t, unsealed)
	require.Equal(t, identity.PublicKey, unsealed.PublicKey)
	require.Equal(t, identity.PrivateKey, unsealed.PrivateKey)
	require.Equal(t, identity.EncryptionPrivateKey, unsealed.EncryptionPrivateKey)
	require.Equal(t, "alice", unsealed.Username)
}

func TestIdentityWrongPassword(t *testing.T) {
	_, record, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)

	require.Nil(t, DecryptIdentity(record, "wrongpassword"))
}

func TestIdentityCorruptRecord(t *testing.T) {
	_, record, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)

	record.Ciphertext = record.Ciphertext[:len(record.Ciphertext)-4] + "AAAA"
	require.Nil(t, DecryptIdentity(record, "correcthorse1"))

	record.Salt = "not base64!"
	require.Nil(t, DecryptIdentity(record, "correcthorse1"))
}

func TestDeriveEncryptionPublicKey(t *testing.T) {
	identity, _, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)

	// any party holding the signing key can derive the same curve key
	derived, err := DeriveEncryptionPublicKey(identity.PublicKey)
	require.NoError(t, err)
	require.Equal(t, identity.EncryptionPublicKey, derived)

	again, err := DeriveEncryptionPublicKey(identity.PublicKey)
	require.NoError(t, err)
	require.Equal(t, derived, again)
}

func TestDeriveEncryptionPublicKeyRejectsGarbage(t *testing.T) {
	_, err := DeriveEncryptionPublicKey("not a key")
	require.Error(t, err)

	_, err = DeriveEncryptionPublicKey(toB64([]byte("short")))
	require.Error(t, err)
}

func TestCreateIdentityUniqueSalts(t *testing.T) {
	_, first, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)
	_, second, err := CreateIdentity("alice", "correcthorse1")
	require.NoError(t, err)

	require.NotEqual(t, first.Salt, second.Salt)
	require.NotEqual(t, first.Nonce, second.Nonce)
	require.NotEqual(t, first.PublicKey, second.PublicKey)
}
