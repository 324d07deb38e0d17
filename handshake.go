package sealink

import (
	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack"
)

// The contact-request handshake: none → pending → accepted | declined,
// the terminal states being final. The requester's encryption key rides in
// the request and the acceptor's rides in the response; both sides trust
// the supplied key as-is. There is no out-of-band verification step.

// SendContactRequest starts a handshake toward recipientKey. The request is
// persisted locally only after the transport confirms the publish, so a
// failed send never leaves a dangling pending-sent record.
func (s *Session) SendContactRequest(recipientKey string, message string) (*ContactRequest, error) {
	identity := s.me()

	pending, err := s.store.PendingRequestExists(identity.PublicKey, recipientKey)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateRequest
	}
	contact, err := s.store.GetContact(recipientKey)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return nil, ErrAlreadyContact
	}

	requestID := uuid.NewV4().String()
	timestamp := nowMillis()
	payload := requestPayload{
		ID:                      requestID,
		FromPublicKey:           identity.PublicKey,
		FromUsername:            identity.Username,
		FromEncryptionPublicKey: identity.EncryptionPublicKey,
		ToPublicKey:             recipientKey,
		Message:                 message,
		Timestamp:               timestamp,
	}
	raw, err := msgpack.Marshal(&payload)
	if err != nil {
		return nil, err
	}

	if err := s.transport.Publish(requestTopic(recipientKey), raw); err != nil {
		log.Warning("Contact request unconfirmed, nothing persisted: " + err.Error())
		return nil, err
	}

	request := &ContactRequest{
		RequestID:               requestID,
		FromPublicKey:           identity.PublicKey,
		FromUsername:            identity.Username,
		FromEncryptionPublicKey: identity.EncryptionPublicKey,
		ToPublicKey:             recipientKey,
		Status:                  RequestPending,
		Message:                 message,
		Timestamp:               timestamp,
	}
	if err := s.store.SaveContactRequest(request); err != nil {
		return nil, err
	}

	log.Info(colors.boldCyan+"HAND"+colors.reset, "Contact request sent to "+recipientKey+".")
	return request, nil
}

// handleContactRequest persists an inbound request keyed by its id.
// Redelivery of the same id is a no-op.
func (s *Session) handleContactRequest(raw []byte) {
	identity := s.identity
	if identity == nil {
		return
	}

	payload := requestPayload{}
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		log.Warning("Discarding undecodable contact request: " + err.Error())
		return
	}
	if payload.ToPublicKey != identity.PublicKey {
		return
	}

	existing, err := s.store.GetContactRequest(payload.ID)
	if err != nil {
		log.Error(err)
		return
	}
	if existing != nil {
		return
	}

	// a request cannot target an existing contact
	contact, err := s.store.GetContact(payload.FromPublicKey)
	if err != nil {
		log.Error(err)
		return
	}
	if contact != nil {
		return
	}

	request := &ContactRequest{
		RequestID:               payload.ID,
		FromPublicKey:           payload.FromPublicKey,
		FromUsername:            payload.FromUsername,
		FromEncryptionPublicKey: payload.FromEncryptionPublicKey,
		ToPublicKey:             identity.PublicKey,
		Status:                  RequestPending,
		Message:                 payload.Message,
		Timestamp:               payload.Timestamp,
	}
	if err := s.store.SaveContactRequest(request); err != nil {
		log.Error(err)
		return
	}
	s.events.emit(EventRequestReceived, request)
	log.Info(colors.boldCyan+"HAND"+colors.reset, "Contact request received from "+payload.FromUsername+".")
}

// AcceptContactRequest transitions a pending request to accepted,
// materializes the contact from the key material the request carried and
// sends a response with our own encryption key so the requester can derive
// the shared secret.
func (s *Session) AcceptContactRequest(requestID string) (*Contact, error) {
	identity := s.me()

	request, err := s.store.GetContactRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	// only the recipient may respond; the requester's own outbound copy of
	// the pending request is not acceptable material
	if request.ToPublicKey != identity.PublicKey {
		return nil, ErrNotRequestRecipient
	}
	if request.Status != RequestPending {
		return nil, ErrRequestTerminal
	}

	respondedAt := nowMillis()
	if err := s.store.UpdateRequestStatus(requestID, RequestAccepted, respondedAt); err != nil {
		return nil, err
	}

	encryptionKey := request.FromEncryptionPublicKey
	if encryptionKey == "" {
		encryptionKey, err = DeriveEncryptionPublicKey(request.FromPublicKey)
		if err != nil {
			return nil, err
		}
	}
	contact := &Contact{
		PublicKey:           request.FromPublicKey,
		Username:            request.FromUsername,
		EncryptionPublicKey: encryptionKey,
		Status:              StatusOffline,
		LastSeen:            nowMillis(),
	}
	if err := s.store.UpsertContact(contact); err != nil {
		return nil, err
	}
	s.subscribePresence(contact.PublicKey)

	err = s.sendRequestResponse(request, RequestAccepted, respondedAt)
	s.events.emit(EventRequestAccepted, contact)
	log.Info(colors.boldCyan+"HAND"+colors.reset, "Accepted contact request from "+request.FromUsername+".")
	return contact, err
}

// DeclineContactRequest transitions a pending request to declined. No
// contact is created, but a response still goes out so the requester's
// pending state clears.
func (s *Session) DeclineContactRequest(requestID string) (*ContactRequest, error) {
	identity := s.me()

	request, err := s.store.GetContactRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	if request.ToPublicKey != identity.PublicKey {
		return nil, ErrNotRequestRecipient
	}
	if request.Status != RequestPending {
		return nil, ErrRequestTerminal
	}

	respondedAt := nowMillis()
	if err := s.store.UpdateRequestStatus(requestID, RequestDeclined, respondedAt); err != nil {
		return nil, err
	}
	request.Status = RequestDeclined
	request.RespondedAt = respondedAt

	err = s.sendRequestResponse(request, RequestDeclined, respondedAt)
	s.events.emit(EventRequestDeclined, request)
	log.Info(colors.boldCyan+"HAND"+colors.reset, "Declined contact request from "+request.FromUsername+".")
	return request, err
}

func (s *Session) sendRequestResponse(request *ContactRequest, status string, respondedAt int64) error {
	identity := s.me()
	response := responsePayload{
		ID:                      uuid.NewV4().String(),
		RequestID:               request.RequestID,
		FromPublicKey:           identity.PublicKey,
		FromUsername:            identity.Username,
		FromEncryptionPublicKey: identity.EncryptionPublicKey,
		Status:                  status,
		RespondedAt:             respondedAt,
	}
	raw, err := msgpack.Marshal(&response)
	if err != nil {
		return err
	}
	if err := s.transport.Publish(responseTopic(request.FromPublicKey), raw); err != nil {
		log.Warning("Handshake response unconfirmed: " + err.Error())
		return err
	}
	return nil
}

// handleRequestResponse resolves a pending request on the original sender.
// An accepted response materializes the contact from the response's key
// material; declined just marks the request terminal. Responses for
// already-terminal requests are ignored.
func (s *Session) handleRequestResponse(raw []byte) {
	if s.identity == nil {
		return
	}

	payload := responsePayload{}
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		log.Warning("Discarding undecodable handshake response: " + err.Error())
		return
	}

	request, err := s.store.GetContactRequest(payload.RequestID)
	if err != nil {
		log.Error(err)
		return
	}
	if request == nil || request.Status != RequestPending {
		return
	}
	if payload.Status != RequestAccepted && payload.Status != RequestDeclined {
		return
	}

	if err := s.store.UpdateRequestStatus(payload.RequestID, payload.Status, payload.RespondedAt); err != nil {
		log.Error(err)
		return
	}
	request.Status = payload.Status
	request.RespondedAt = payload.RespondedAt

	if payload.Status != RequestAccepted {
		s.events.emit(EventRequestDeclined, request)
		log.Info(colors.boldCyan+"HAND"+colors.reset, "Contact request was declined.")
		return
	}

	encryptionKey := payload.FromEncryptionPublicKey
	if encryptionKey == "" {
		encryptionKey, err = DeriveEncryptionPublicKey(request.ToPublicKey)
		if err != nil {
			log.Error(err)
			return
		}
	}
	username := payload.FromUsername
	if username == "" && len(request.ToPublicKey) >= 8 {
		username = "User_" + request.ToPublicKey[:8]
	}
	contact := &Contact{
		PublicKey:           request.ToPublicKey,
		Username:            username,
		EncryptionPublicKey: encryptionKey,
		Status:              StatusOffline,
		LastSeen:            nowMillis(),
	}
	if err := s.store.UpsertContact(contact); err != nil {
		log.Error(err)
		return
	}
	s.subscribePresence(contact.PublicKey)
	s.events.emit(EventRequestAccepted, contact)
	log.Info(colors.boldCyan+"HAND"+colors.reset, "Contact added after acceptance: "+contact.Username+".")
}

// catchUpHandshake performs the one-shot reads of requests and responses
// addressed to this identity that were published while it was offline.
func (s *Session) catchUpHandshake() {
	identity := s.identity

	pending, err := s.transport.FetchPending(requestTopic(identity.PublicKey))
	if err != nil {
		log.Debug("Request catch-up failed: " + err.Error())
	}
	for _, raw := range pending {
		s.handleContactRequest(raw)
	}

	responses, err := s.transport.FetchPending(responseTopic(identity.PublicKey))
	if err != nil {
		log.Debug("Response catch-up failed: " + err.Error())
	}
	for _, raw := range responses {
		s.handleRequestResponse(raw)
	}
}
