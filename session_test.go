package sealink

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

func TestPresencePropagation(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	alice.UpdateStatus(StatusAway)

	contact, err := bob.store.GetContact(alice.identity.PublicKey)
	require.NoError(t, err)
	require.NotNil(t, contact)
	require.Equal(t, StatusAway, contact.Status)
	require.NotZero(t, contact.LastSeen)
	require.Equal(t, 1, drainEvents(bob)[EventContactPresence])
}

func TestPresenceForgedSignatureIgnored(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	mallory, _, err := CreateIdentity("mallory", "correcthorse1")
	require.NoError(t, err)

	// mallory claims alice's key but can only sign with her own
	payload := presencePayload{
		PublicKey: alice.identity.PublicKey,
		Username:  "alice",
		Status:    StatusBusy,
		Timestamp: nowMillis(),
	}
	canon, err := json.Marshal(payload)
	require.NoError(t, err)
	payload.Signature, err = signDetached(canon, mallory.PrivateKey)
	require.NoError(t, err)

	raw, err := msgpack.Marshal(&payload)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(presenceTopic(alice.identity.PublicKey), raw))

	contact, err := bob.store.GetContact(alice.identity.PublicKey)
	require.NoError(t, err)
	require.NotEqual(t, StatusBusy, contact.Status)
}

func TestSharedSecretCaching(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	first, err := alice.sharedSecret(bob.identity.PublicKey)
	require.NoError(t, err)

	second, err := alice.sharedSecret(bob.identity.PublicKey)
	require.NoError(t, err)
	require.Same(t, first, second)

	_, err = alice.sharedSecret("nobody")
	require.ErrorIs(t, err, ErrUnknownContact)
}

func TestLogoutLocksSession(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	alice.Logout()

	// operations after logout are programmer errors
	require.PanicsWithValue(t, ErrNotUnlocked, func() {
		alice.SendMessage(bob.identity.PublicKey, "hello")
	})

	// bob saw the offline announcement
	contact, err := bob.store.GetContact(alice.identity.PublicKey)
	require.NoError(t, err)
	require.Equal(t, StatusOffline, contact.Status)

	// a second logout is a harmless no-op
	alice.Logout()
}

func TestUnlockCatchesUpOfflineMessages(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	bobKeys := *bob.identity
	bob.Logout()

	// published while bob is locked; only the retained frame can carry it
	sent, err := alice.SendMessage(bobKeys.PublicKey, "missed you")
	require.NoError(t, err)
	require.True(t, sent.Delivered)

	revived := NewSession(bob.store, hub, 0)
	require.NoError(t, revived.Unlock(&bobKeys))
	defer revived.Logout()

	rows, err := revived.store.GetMessages(alice.identity.PublicKey, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "missed you", rows[0].Content)
}
