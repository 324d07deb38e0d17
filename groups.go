package sealink

import (
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack"
)

// FanoutResult reports a group send: the canonical local row plus the
// per-member outcome. Individual failures never roll back the others.
type FanoutResult struct {
	Message   *GroupMessage
	Delivered []string
	Failed    map[string]string
}

// CreateGroup allocates a group with the local identity as its sole admin
// member.
func (s *Session) CreateGroup(name string, description string) (*Group, error) {
	identity := s.me()

	group := &Group{
		GroupID:          uuid.NewV4().String(),
		Name:             name,
		Description:      description,
		CreatorPublicKey: identity.PublicKey,
	}
	if err := s.store.SaveGroup(group); err != nil {
		return nil, err
	}
	err := s.store.AddGroupMember(&GroupMember{
		GroupID:   group.GroupID,
		PublicKey: identity.PublicKey,
		Username:  identity.Username,
		Role:      RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	log.Info(colors.boldWhite+"DATA"+colors.reset, "Created group "+name+".")
	return group, nil
}

// AddGroupMember adds an existing contact to a group. Membership is local
// authority: only a local admin may mutate it, and no consensus exists
// between installations.
func (s *Session) AddGroupMember(groupID string, contactPublicKey string) (*GroupMember, error) {
	identity := s.me()

	if err := s.requireAdmin(groupID, identity.PublicKey); err != nil {
		return nil, err
	}
	contact, err := s.store.GetContact(contactPublicKey)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrUnknownContact
	}

	member := &GroupMember{
		GroupID:   groupID,
		PublicKey: contact.PublicKey,
		Username:  contact.Username,
		Role:      RoleMember,
	}
	if err := s.store.AddGroupMember(member); err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveGroupMember stops future fan-out to a member. It does not revoke
// access to ciphertexts already sent; there is no forward secrecy.
func (s *Session) RemoveGroupMember(groupID string, memberPublicKey string) error {
	identity := s.me()

	if err := s.requireAdmin(groupID, identity.PublicKey); err != nil {
		return err
	}
	return s.store.RemoveGroupMember(groupID, memberPublicKey)
}

func (s *Session) requireAdmin(groupID string, publicKey string) error {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return ErrUnknownGroup
	}
	members, err := s.store.GetGroupMembers(groupID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.PublicKey == publicKey {
			if member.Role == RoleAdmin {
				return nil
			}
			return ErrNotGroupAdmin
		}
	}
	return ErrNotGroupMember
}

// SendGroupMessage persists one canonical row, then seals the same
// plaintext independently for every other member with that member's
// pairwise secret. There is no shared group key. The local row is marked
// delivered once at least one member's envelope is confirmed.
func (s *Session) SendGroupMessage(groupID string, text string) (*FanoutResult, error) {
	identity := s.me()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrUnknownGroup
	}
	members, err := s.store.GetGroupMembers(groupID)
	if err != nil {
		return nil, err
	}
	isMember := false
	for _, member := range members {
		if member.PublicKey == identity.PublicKey {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	messageID := uuid.NewV4().String()
	timestamp := nowMillis()
	message := &GroupMessage{
		MessageID:       messageID,
		GroupID:         groupID,
		SenderPublicKey: identity.PublicKey,
		SenderUsername:  identity.Username,
		Content:         text,
		Timestamp:       timestamp,
		Delivered:       false,
	}
	if err := s.store.SaveGroupMessage(message); err != nil {
		return nil, err
	}

	result := &FanoutResult{
		Message:   message,
		Delivered: []string{},
		Failed:    map[string]string{},
	}

	for _, member := range members {
		if member.PublicKey == identity.PublicKey {
			continue
		}
		if err := s.fanOutToMember(group, member.PublicKey, messageID, text, timestamp); err != nil {
			log.Warning("Fan-out to " + member.PublicKey + " failed: " + err.Error())
			result.Failed[member.PublicKey] = err.Error()
			continue
		}
		result.Delivered = append(result.Delivered, member.PublicKey)
	}

	if len(result.Delivered) > 0 {
		if err := s.store.MarkGroupDelivered(messageID, true); err != nil {
			return result, err
		}
		message.Delivered = true
	}

	s.events.emit(EventGroupMessageSent, message)
	log.Info(colors.boldMagenta+"CAST"+colors.reset, "Group message fanned out to "+group.Name+".")
	return result, nil
}

func (s *Session) fanOutToMember(group *Group, memberKey string, messageID string, text string, timestamp int64) error {
	identity := s.me()

	secret, err := s.sharedSecret(memberKey)
	if err != nil {
		return err
	}

	// same plaintext, distinct ciphertext and nonce per recipient
	ciphertext, nonce := encryptContent(text, secret)
	envelope := &Envelope{
		ID:           messageID,
		From:         identity.PublicKey,
		FromUsername: identity.Username,
		To:           memberKey,
		GroupID:      group.GroupID,
		GroupName:    group.Name,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		Timestamp:    timestamp,
		Type:         envelopeTypeGroup,
	}
	if err := signEnvelope(envelope, identity.PrivateKey); err != nil {
		return err
	}

	raw, err := msgpack.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.transport.Publish(directTopic(memberKey, identity.PublicKey), raw)
}
