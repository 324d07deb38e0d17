package sealink

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack"
)

// Session owns everything scoped to one unlocked identity: the key
// material, the shared-secret cache, the store and transport handles, and
// the outbound event queue. There are no package-level singletons; two
// sessions with different identities can coexist in one process.
type Session struct {
	identity  *Identity
	store     Store
	transport Transport
	secrets   secretCache
	events    *eventQueue

	heartbeatDone chan struct{}
}

// NewSession wires a session to its collaborators. eventBuffer sizes the
// outbound event queue; zero or less selects the default. The session is
// unusable for protocol operations until Unlock.
func NewSession(store Store, transport Transport, eventBuffer int) *Session {
	return &Session{
		store:     store,
		transport: transport,
		events:    newEventQueue(eventBuffer),
	}
}

// Unlock installs the identity and brings the session online: one-shot
// catch-up reads first, then live subscriptions, then presence.
func (s *Session) Unlock(identity *Identity) error {
	s.identity = identity

	// catch-up must run before the live subscriptions so nothing published
	// while this identity was offline is lost to an absent subscriber
	s.catchUpHandshake()
	s.catchUpMessages()

	if err := s.transport.Subscribe(requestTopic(identity.PublicKey), s.handleContactRequest); err != nil {
		return err
	}
	if err := s.transport.Subscribe(responseTopic(identity.PublicKey), s.handleRequestResponse); err != nil {
		return err
	}
	if err := s.transport.Subscribe(directWildcard(identity.PublicKey), s.handleEnvelope); err != nil {
		return err
	}

	contacts, err := s.store.GetContacts()
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		s.subscribePresence(contact.PublicKey)
	}

	s.announcePresence(StatusOnline)
	s.startHeartbeat()

	log.Info(colors.boldGreen+"AUTH"+colors.reset, "Session unlocked for "+identity.Username+".")
	return nil
}

// Logout announces offline, wipes the secret cache and drops the private
// key material. The session cannot be used again without a fresh Unlock.
func (s *Session) Logout() {
	if s.identity == nil {
		return
	}
	s.stopHeartbeat()
	s.announcePresence(StatusOffline)
	s.secrets.clear()
	s.identity.destroy()
	s.identity = nil
	log.Info(colors.boldGreen+"AUTH"+colors.reset, "Session locked.")
}

// Events returns the outbound event queue. When the host stops draining it
// the oldest events are dropped; see eventQueue.
func (s *Session) Events() <-chan Event {
	return s.events.channel()
}

// me returns the unlocked identity. Calling a protocol operation before
// Unlock is a programmer error, not a recoverable condition.
func (s *Session) me() *Identity {
	if s.identity == nil {
		panic(ErrNotUnlocked)
	}
	return s.identity
}

// sharedSecret resolves the pairwise secret with a contact, computing and
// caching it on first use.
func (s *Session) sharedSecret(contactPublicKey string) (*[keyBytes]byte, error) {
	if secret, ok := s.secrets.get(contactPublicKey); ok {
		return secret, nil
	}

	contact, err := s.store.GetContact(contactPublicKey)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrUnknownContact
	}

	secret, err := deriveSharedSecret(s.me().EncryptionPrivateKey, contact.EncryptionPublicKey)
	if err != nil {
		return nil, err
	}
	s.secrets.put(contactPublicKey, secret)
	return secret, nil
}

// UpdateStatus publishes a new presence status for the local identity.
func (s *Session) UpdateStatus(status string) {
	s.me()
	s.announcePresence(status)
}

func (s *Session) announcePresence(status string) {
	identity := s.identity
	if identity == nil {
		return
	}
	payload := presencePayload{
		PublicKey: identity.PublicKey,
		Username:  identity.Username,
		Status:    status,
		Timestamp: nowMillis(),
	}
	canon, err := json.Marshal(payload)
	if err != nil {
		return
	}
	sig, err := signDetached(canon, identity.PrivateKey)
	if err != nil {
		return
	}
	payload.Signature = sig

	b, err := msgpack.Marshal(&payload)
	if err != nil {
		return
	}
	// best effort; presence carries no guarantee
	if err := s.transport.Publish(presenceTopic(identity.PublicKey), b); err != nil {
		log.Debug("Presence publish failed: " + err.Error())
	}
}

func (s *Session) subscribePresence(contactPublicKey string) {
	err := s.transport.Subscribe(presenceTopic(contactPublicKey), s.handlePresence)
	if err != nil {
		log.Debug("Presence subscribe failed: " + err.Error())
	}
}

func (s *Session) handlePresence(raw []byte) {
	payload := presencePayload{}
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return
	}

	sig := payload.Signature
	payload.Signature = ""
	canon, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if !verifyDetached(canon, sig, payload.PublicKey) {
		return
	}

	contact, err := s.store.GetContact(payload.PublicKey)
	if err != nil || contact == nil {
		return
	}
	if err := s.store.UpdateContactPresence(payload.PublicKey, payload.Status, payload.Timestamp); err != nil {
		return
	}
	contact.Status = payload.Status
	contact.LastSeen = payload.Timestamp
	s.events.emit(EventContactPresence, contact)
}

func (s *Session) startHeartbeat() {
	s.heartbeatDone = make(chan struct{})
	go func(done chan struct{}) {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.announcePresence(StatusOnline)
			case <-done:
				return
			}
		}
	}(s.heartbeatDone)
}

func (s *Session) stopHeartbeat() {
	if s.heartbeatDone != nil {
		close(s.heartbeatDone)
		s.heartbeatDone = nil
	}
}
