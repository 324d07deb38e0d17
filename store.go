package sealink

// Store is the persistence surface the protocol consumes. Message ids and
// request ids are globally unique; contacts are keyed by signing public key;
// (group, member) pairs are unique.
type Store interface {
	SaveIdentity(record *EncryptedIdentity) error
	LoadIdentity() (*EncryptedIdentity, error)

	UpsertContact(contact *Contact) error
	GetContact(publicKey string) (*Contact, error)
	GetContacts() ([]Contact, error)
	UpdateContactPresence(publicKey string, status string, lastSeen int64) error

	SaveMessage(message *Message) error
	HasMessage(id string) (bool, error)
	MarkDelivered(id string, delivered bool) error
	GetMessages(contactPublicKey string, limit int) ([]Message, error)

	SaveGroupMessage(message *GroupMessage) error
	HasGroupMessage(id string) (bool, error)
	MarkGroupDelivered(id string, delivered bool) error
	GetGroupMessages(groupID string, limit int) ([]GroupMessage, error)

	SaveContactRequest(request *ContactRequest) error
	GetContactRequest(id string) (*ContactRequest, error)
	PendingRequestExists(fromPublicKey string, toPublicKey string) (bool, error)
	UpdateRequestStatus(id string, status string, respondedAt int64) error
	GetContactRequests() ([]ContactRequest, error)

	SaveGroup(group *Group) error
	GetGroup(id string) (*Group, error)
	GetGroups() ([]Group, error)
	AddGroupMember(member *GroupMember) error
	RemoveGroupMember(groupID string, publicKey string) error
	GetGroupMembers(groupID string) ([]GroupMember, error)
}
