package sealink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeAccept(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	request, err := alice.SendContactRequest(bob.identity.PublicKey, "hey, it's alice")
	require.NoError(t, err)
	require.Equal(t, RequestPending, request.Status)

	// delivered live into bob's store
	bobSide, err := bob.store.GetContactRequest(request.RequestID)
	require.NoError(t, err)
	require.NotNil(t, bobSide)
	require.Equal(t, RequestPending, bobSide.Status)
	require.Equal(t, "hey, it's alice", bobSide.Message)
	require.Equal(t, alice.identity.EncryptionPublicKey, bobSide.FromEncryptionPublicKey)

	contact, err := bob.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)
	require.Equal(t, alice.identity.PublicKey, contact.PublicKey)
	require.Equal(t, alice.identity.EncryptionPublicKey, contact.EncryptionPublicKey)

	// both sides terminal, both sides hold a usable contact
	aliceSide, err := alice.store.GetContactRequest(request.RequestID)
	require.NoError(t, err)
	require.Equal(t, RequestAccepted, aliceSide.Status)

	aliceContact, err := alice.store.GetContact(bob.identity.PublicKey)
	require.NoError(t, err)
	require.NotNil(t, aliceContact)
	require.Equal(t, bob.identity.EncryptionPublicKey, aliceContact.EncryptionPublicKey)
	require.Equal(t, "bob", aliceContact.Username)
}

func TestHandshakeDecline(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	request, err := alice.SendContactRequest(bob.identity.PublicKey, "")
	require.NoError(t, err)

	declined, err := bob.DeclineContactRequest(request.RequestID)
	require.NoError(t, err)
	require.Equal(t, RequestDeclined, declined.Status)

	// the requester's pending state clears, but no contact appears anywhere
	aliceSide, err := alice.store.GetContactRequest(request.RequestID)
	require.NoError(t, err)
	require.Equal(t, RequestDeclined, aliceSide.Status)

	contact, err := alice.store.GetContact(bob.identity.PublicKey)
	require.NoError(t, err)
	require.Nil(t, contact)

	contact, err = bob.store.GetContact(alice.identity.PublicKey)
	require.NoError(t, err)
	require.Nil(t, contact)
}

func TestHandshakeExclusivity(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	_, err := alice.SendContactRequest(bob.identity.PublicKey, "first")
	require.NoError(t, err)

	_, err = alice.SendContactRequest(bob.identity.PublicKey, "second")
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestHandshakeToExistingContact(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")
	makeContacts(t, alice, bob)

	_, err := alice.SendContactRequest(bob.identity.PublicKey, "again")
	require.ErrorIs(t, err, ErrAlreadyContact)
}

func TestHandshakeTerminalStatesAreFinal(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	request, err := alice.SendContactRequest(bob.identity.PublicKey, "")
	require.NoError(t, err)

	_, err = bob.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)

	_, err = bob.AcceptContactRequest(request.RequestID)
	require.ErrorIs(t, err, ErrRequestTerminal)
	_, err = bob.DeclineContactRequest(request.RequestID)
	require.ErrorIs(t, err, ErrRequestTerminal)
}

func TestHandshakeRequesterCannotSelfRespond(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	request, err := alice.SendContactRequest(bob.identity.PublicKey, "hi")
	require.NoError(t, err)

	// the requester holds a local copy of the pending request, but only
	// the recipient may respond to it
	_, err = alice.AcceptContactRequest(request.RequestID)
	require.ErrorIs(t, err, ErrNotRequestRecipient)
	_, err = alice.DeclineContactRequest(request.RequestID)
	require.ErrorIs(t, err, ErrNotRequestRecipient)

	// no bogus contact, and the request is still pending for bob to answer
	contact, err := alice.store.GetContact(alice.identity.PublicKey)
	require.NoError(t, err)
	require.Nil(t, contact)

	local, err := alice.store.GetContactRequest(request.RequestID)
	require.NoError(t, err)
	require.Equal(t, RequestPending, local.Status)

	_, err = bob.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)
}

func TestHandshakeUnknownRequest(t *testing.T) {
	hub := newMemHub()
	bob := newTestSession(t, hub, "bob")

	_, err := bob.AcceptContactRequest("no-such-id")
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestHandshakePublishFailurePersistsNothing(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	hub.setDown(true)
	_, err := alice.SendContactRequest(bob.identity.PublicKey, "hello?")
	require.Error(t, err)

	requests, err := alice.store.GetContactRequests()
	require.NoError(t, err)
	require.Empty(t, requests)

	// the failed attempt must not block a retry
	hub.setDown(false)
	_, err = alice.SendContactRequest(bob.identity.PublicKey, "hello again")
	require.NoError(t, err)
}

func TestHandshakeOfflineCatchUp(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")

	bobIdentity, _, err := CreateIdentity("bob", "correcthorse1")
	require.NoError(t, err)

	// bob is offline; the request sits retained on the substrate
	request, err := alice.SendContactRequest(bobIdentity.PublicKey, "catch me up")
	require.NoError(t, err)

	bobStore, err := OpenStore(":memory:")
	require.NoError(t, err)
	bob := NewSession(bobStore, hub, 0)
	require.NoError(t, bob.Unlock(bobIdentity))
	defer bob.Logout()

	pending, err := bob.store.GetContactRequest(request.RequestID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, RequestPending, pending.Status)

	_, err = bob.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)

	contact, err := alice.store.GetContact(bobIdentity.PublicKey)
	require.NoError(t, err)
	require.NotNil(t, contact)
}
