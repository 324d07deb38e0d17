package sealink

import (
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack"
)

// SendMessage encrypts, signs and publishes one direct message. The row is
// persisted before the publish; transport failure leaves it undelivered and
// is surfaced to the caller, never retried here.
func (s *Session) SendMessage(recipientKey string, text string) (*Message, error) {
	identity := s.me()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	secret, err := s.sharedSecret(recipientKey)
	if err != nil {
		return nil, err
	}

	messageID := uuid.NewV4().String()
	timestamp := nowMillis()
	ciphertext, nonce := encryptContent(text, secret)

	envelope := &Envelope{
		ID:           messageID,
		From:         identity.PublicKey,
		FromUsername: identity.Username,
		To:           recipientKey,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		Timestamp:    timestamp,
	}
	if err := signEnvelope(envelope, identity.PrivateKey); err != nil {
		return nil, err
	}

	message := &Message{
		MessageID:        messageID,
		ContactPublicKey: recipientKey,
		Direction:        DirectionSent,
		Content:          text,
		Timestamp:        timestamp,
		Delivered:        false,
		Read:             false,
		Signature:        envelope.Signature,
	}
	if err := s.store.SaveMessage(message); err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	if err := s.transport.Publish(directTopic(recipientKey, identity.PublicKey), payload); err != nil {
		log.Warning("Message " + messageID + " unconfirmed: " + err.Error())
		return message, err
	}

	if err := s.store.MarkDelivered(messageID, true); err != nil {
		return message, err
	}
	message.Delivered = true
	s.events.emit(EventMessageSent, message)

	log.Info(colors.boldMagenta+"CAST"+colors.reset, "Delivered "+messageID+".")
	return message, nil
}

// handleEnvelope is the transport-facing entry of the receive pipeline.
func (s *Session) handleEnvelope(raw []byte) {
	envelope := Envelope{}
	if err := msgpack.Unmarshal(raw, &envelope); err != nil {
		log.Warning("Discarding undecodable envelope: " + err.Error())
		return
	}
	s.receiveEnvelope(&envelope)
}

// receiveEnvelope applies the uniform inbound pipeline regardless of
// origin: dedup, verify, auto-discover, decrypt, persist, emit. Every
// failure short of persistence is a silent discard with no state mutation.
func (s *Session) receiveEnvelope(envelope *Envelope) {
	// a frame arriving after Logout is dropped, not an error
	if s.identity == nil {
		return
	}

	seen, err := s.alreadySeen(envelope)
	if err != nil {
		log.Error(err)
		return
	}
	if seen {
		log.Debug("Duplicate envelope ignored: " + envelope.ID)
		return
	}

	if !verifyEnvelope(envelope) {
		log.Warning("Invalid envelope signature from " + envelope.From + ", discarded.")
		return
	}

	if err := s.autoDiscover(envelope); err != nil {
		log.Error(err)
		return
	}

	secret, err := s.sharedSecret(envelope.From)
	if err != nil {
		log.Error(err)
		return
	}
	plaintext, ok := decryptContent(envelope.Ciphertext, envelope.Nonce, secret)
	if !ok {
		log.Warning("Decryption failed for envelope " + envelope.ID + ", discarded.")
		return
	}

	if envelope.Type == envelopeTypeGroup {
		s.persistGroupMessage(envelope, plaintext)
		return
	}
	s.persistDirectMessage(envelope, plaintext)
}

func (s *Session) alreadySeen(envelope *Envelope) (bool, error) {
	if envelope.Type == envelopeTypeGroup {
		return s.store.HasGroupMessage(envelope.ID)
	}
	return s.store.HasMessage(envelope.ID)
}

// autoDiscover creates a minimal contact for a verified sender we have
// never seen. This is the only implicit contact-creation path.
func (s *Session) autoDiscover(envelope *Envelope) error {
	contact, err := s.store.GetContact(envelope.From)
	if err != nil {
		return err
	}
	if contact != nil {
		return nil
	}

	encryptionKey, err := DeriveEncryptionPublicKey(envelope.From)
	if err != nil {
		return err
	}
	username := envelope.FromUsername
	if username == "" {
		username = "Unknown User"
	}
	contact = &Contact{
		PublicKey:           envelope.From,
		Username:            username,
		EncryptionPublicKey: encryptionKey,
		Status:              StatusOnline,
		LastSeen:            nowMillis(),
	}
	if err := s.store.UpsertContact(contact); err != nil {
		return err
	}
	s.subscribePresence(contact.PublicKey)
	s.events.emit(EventContactDiscovered, contact)
	log.Info(colors.boldCyan+"DISC"+colors.reset, "Discovered new contact "+contact.PublicKey+".")
	return nil
}

func (s *Session) persistDirectMessage(envelope *Envelope, plaintext string) {
	message := &Message{
		MessageID:        envelope.ID,
		ContactPublicKey: envelope.From,
		Direction:        DirectionReceived,
		Content:          plaintext,
		Timestamp:        envelope.Timestamp,
		Delivered:        true,
		Read:             false,
		Signature:        envelope.Signature,
	}
	if err := s.store.SaveMessage(message); err != nil {
		log.Error(err)
		return
	}
	s.events.emit(EventMessageReceived, message)
	log.Info(colors.boldMagenta+"CAST"+colors.reset, "Message received from "+envelope.From+".")
}

func (s *Session) persistGroupMessage(envelope *Envelope, plaintext string) {
	senderUsername := envelope.FromUsername
	if senderUsername == "" {
		senderUsername = "Unknown"
	}
	message := &GroupMessage{
		MessageID:       envelope.ID,
		GroupID:         envelope.GroupID,
		SenderPublicKey: envelope.From,
		SenderUsername:  senderUsername,
		Content:         plaintext,
		Timestamp:       envelope.Timestamp,
		Delivered:       true,
		Signature:       envelope.Signature,
	}
	if err := s.store.SaveGroupMessage(message); err != nil {
		log.Error(err)
		return
	}
	s.events.emit(EventGroupMessageReceived, message)
	log.Info(colors.boldMagenta+"CAST"+colors.reset, "Group message received in "+envelope.GroupID+".")
}

// catchUpMessages replays direct-message frames retained for this identity
// while it was offline. The wildcard fetch covers unknown senders too, so
// auto-discovery works for offline traffic; dedup makes redelivery harmless.
func (s *Session) catchUpMessages() {
	pending, err := s.transport.FetchPending(directWildcard(s.identity.PublicKey))
	if err != nil {
		log.Debug("Catch-up fetch failed: " + err.Error())
		return
	}
	for _, raw := range pending {
		s.handleEnvelope(raw)
	}
}
