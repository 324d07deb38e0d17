package sealink

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormStore is the sqlite-backed Store implementation.
type gormStore struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the sqlite database at path and migrates the
// schema.
func OpenStore(path string) (*gormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&EncryptedIdentity{},
		&Contact{},
		&ContactRequest{},
		&Message{},
		&GroupMessage{},
		&Group{},
		&GroupMember{},
	)
	if err != nil {
		return nil, err
	}

	log.Info(colors.boldWhite+"DATA"+colors.reset, "Database ready.")
	return &gormStore{db: db}, nil
}

func (s *gormStore) SaveIdentity(record *EncryptedIdentity) error {
	existing := EncryptedIdentity{}
	err := s.db.Where("public_key = ?", record.PublicKey).First(&existing).Error
	if err == nil {
		record.ID = existing.ID
		return s.db.Save(record).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(record).Error
}

// LoadIdentity returns the single local identity record, or nil when this
// installation has none yet.
func (s *gormStore) LoadIdentity() (*EncryptedIdentity, error) {
	record := EncryptedIdentity{}
	err := s.db.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormStore) UpsertContact(contact *Contact) error {
	existing := Contact{}
	err := s.db.Where("public_key = ?", contact.PublicKey).First(&existing).Error
	if err == nil {
		contact.ID = existing.ID
		return s.db.Save(contact).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(contact).Error
}

func (s *gormStore) GetContact(publicKey string) (*Contact, error) {
	contact := Contact{}
	err := s.db.Where("public_key = ?", publicKey).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *gormStore) GetContacts() ([]Contact, error) {
	contacts := []Contact{}
	err := s.db.Order("username").Find(&contacts).Error
	return contacts, err
}

func (s *gormStore) UpdateContactPresence(publicKey string, status string, lastSeen int64) error {
	return s.db.Model(&Contact{}).
		Where("public_key = ?", publicKey).
		Updates(map[string]interface{}{"status": status, "last_seen": lastSeen}).Error
}

func (s *gormStore) SaveMessage(message *Message) error {
	return s.db.Create(message).Error
}

func (s *gormStore) HasMessage(id string) (bool, error) {
	var count int64
	err := s.db.Model(&Message{}).Where("message_id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *gormStore) MarkDelivered(id string, delivered bool) error {
	return s.db.Model(&Message{}).Where("message_id = ?", id).
		Update("delivered", delivered).Error
}

func (s *gormStore) GetMessages(contactPublicKey string, limit int) ([]Message, error) {
	messages := []Message{}
	query := s.db.Where("contact_public_key = ?", contactPublicKey).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (s *gormStore) SaveGroupMessage(message *GroupMessage) error {
	return s.db.Create(message).Error
}

func (s *gormStore) HasGroupMessage(id string) (bool, error) {
	var count int64
	err := s.db.Model(&GroupMessage{}).Where("message_id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *gormStore) MarkGroupDelivered(id string, delivered bool) error {
	return s.db.Model(&GroupMessage{}).Where("message_id = ?", id).
		Update("delivered", delivered).Error
}

func (s *gormStore) GetGroupMessages(groupID string, limit int) ([]GroupMessage, error) {
	messages := []GroupMessage{}
	query := s.db.Where("group_id = ?", groupID).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (s *gormStore) SaveContactRequest(request *ContactRequest) error {
	existing := ContactRequest{}
	err := s.db.Where("request_id = ?", request.RequestID).First(&existing).Error
	if err == nil {
		// duplicate delivery of the same request id is a no-op
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(request).Error
}

func (s *gormStore) GetContactRequest(id string) (*ContactRequest, error) {
	request := ContactRequest{}
	err := s.db.Where("request_id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (s *gormStore) PendingRequestExists(fromPublicKey string, toPublicKey string) (bool, error) {
	var count int64
	err := s.db.Model(&ContactRequest{}).
		Where("from_public_key = ? AND to_public_key = ? AND status = ?",
			fromPublicKey, toPublicKey, RequestPending).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) UpdateRequestStatus(id string, status string, respondedAt int64) error {
	return s.db.Model(&ContactRequest{}).Where("request_id = ?", id).
		Updates(map[string]interface{}{"status": status, "responded_at": respondedAt}).Error
}

func (s *gormStore) GetContactRequests() ([]ContactRequest, error) {
	requests := []ContactRequest{}
	err := s.db.Order("timestamp desc").Find(&requests).Error
	return requests, err
}

func (s *gormStore) SaveGroup(group *Group) error {
	return s.db.Create(group).Error
}

func (s *gormStore) GetGroup(id string) (*Group, error) {
	group := Group{}
	err := s.db.Where("group_id = ?", id).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *gormStore) GetGroups() ([]Group, error) {
	groups := []Group{}
	err := s.db.Order("name").Find(&groups).Error
	return groups, err
}

func (s *gormStore) AddGroupMember(member *GroupMember) error {
	existing := GroupMember{}
	err := s.db.Where("group_id = ? AND public_key = ?", member.GroupID, member.PublicKey).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(member).Error
}

func (s *gormStore) RemoveGroupMember(groupID string, publicKey string) error {
	return s.db.Where("group_id = ? AND public_key = ?", groupID, publicKey).
		Delete(&GroupMember{}).Error
}

func (s *gormStore) GetGroupMembers(groupID string) ([]GroupMember, error) {
	members := []GroupMember{}
	err := s.db.Where("group_id = ?", groupID).Find(&members).Error
	return members, err
}
