package sealink

import (
	"time"

	"gorm.io/gorm"
)

type apiModel struct {
	ID        uint           `gorm:"primarykey" json:"-"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Identity is the unlocked key material for the running session. Private
// keys exist in this form only in memory; at rest they live inside an
// EncryptedIdentity record.
type Identity struct {
	Username             string `json:"username"`
	PublicKey            string `json:"publicKey"`
	PrivateKey           string `json:"-"`
	EncryptionPublicKey  string `json:"encryptionPublicKey"`
	EncryptionPrivateKey string `json:"-"`
	Created              int64  `json:"createdAt"`
}

// EncryptedIdentity is the at-rest form of an identity. The ciphertext holds
// the private keys, sealed with a key derived from the user's password.
type EncryptedIdentity struct {
	apiModel
	Username            string `json:"username"`
	PublicKey           string `json:"publicKey" gorm:"unique"`
	EncryptionPublicKey string `json:"encryptionPublicKey"`
	Ciphertext          string `json:"ciphertext"`
	Nonce               string `json:"nonce"`
	Salt                string `json:"salt"`
	Created             int64  `json:"createdAt"`
}

// Contact is a known remote identity, keyed by its signing public key.
type Contact struct {
	apiModel
	PublicKey           string `json:"publicKey" gorm:"unique"`
	Username            string `json:"username"`
	EncryptionPublicKey string `json:"encryptionPublicKey"`
	Status              string `json:"status"`
	LastSeen            int64  `json:"lastSeen"`
}

// ContactRequest tracks one handshake between two identities. At most one
// pending request may exist per ordered (from, to) pair.
type ContactRequest struct {
	apiModel
	RequestID               string `json:"id" gorm:"unique"`
	FromPublicKey           string `json:"fromPublicKey"`
	FromUsername            string `json:"fromUsername"`
	FromEncryptionPublicKey string `json:"fromEncryptionPublicKey"`
	ToPublicKey             string `json:"toPublicKey"`
	Status                  string `json:"status"`
	Message                 string `json:"message,omitempty"`
	Timestamp               int64  `json:"timestamp"`
	RespondedAt             int64  `json:"respondedAt,omitempty"`
}

// Message is one direct-message row in the local history.
type Message struct {
	apiModel
	MessageID        string `json:"id" gorm:"unique"`
	ContactPublicKey string `json:"contactPublicKey"`
	Direction        string `json:"direction"`
	Content          string `json:"content"`
	Timestamp        int64  `json:"timestamp"`
	Delivered        bool   `json:"delivered"`
	Read             bool   `json:"read"`
	Signature        string `json:"signature"`
}

// GroupMessage is one row in a group's thread.
type GroupMessage struct {
	apiModel
	MessageID       string `json:"id" gorm:"unique"`
	GroupID         string `json:"groupId"`
	SenderPublicKey string `json:"senderPublicKey"`
	SenderUsername  string `json:"senderUsername"`
	Content         string `json:"content"`
	Timestamp       int64  `json:"timestamp"`
	Delivered       bool   `json:"delivered"`
	Signature       string `json:"signature"`
}

// Group is a local-authority chat group. There is no shared group key;
// every group message is sealed pairwise for each member.
type Group struct {
	apiModel
	GroupID          string `json:"id" gorm:"unique"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	CreatorPublicKey string `json:"creatorPublicKey"`
}

// GroupMember is one (group, member) row. The pair is unique.
type GroupMember struct {
	apiModel
	GroupID   string `json:"groupId" gorm:"uniqueIndex:idx_group_member"`
	PublicKey string `json:"publicKey" gorm:"uniqueIndex:idx_group_member"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Envelope is the signed, encrypted wire unit. The signature covers the
// canonical byte form of every other field for the envelope's variant.
type Envelope struct {
	ID           string `json:"id" msgpack:"id"`
	From         string `json:"from" msgpack:"from"`
	FromUsername string `json:"fromUsername,omitempty" msgpack:"fromUsername"`
	To           string `json:"to" msgpack:"to"`
	GroupID      string `json:"groupId,omitempty" msgpack:"groupId"`
	GroupName    string `json:"groupName,omitempty" msgpack:"groupName"`
	Ciphertext   string `json:"ciphertext" msgpack:"ciphertext"`
	Nonce        string `json:"nonce" msgpack:"nonce"`
	Timestamp    int64  `json:"timestamp" msgpack:"timestamp"`
	Type         string `json:"type,omitempty" msgpack:"type"`
	Signature    string `json:"signature" msgpack:"signature"`
}

// Canonical field sets for signing. Field order here is the wire contract:
// signer and verifier must serialize the identical set in the identical
// order or verification fails.
type directCanonical struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
}

type groupCanonical struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	GroupID    string `json:"groupId"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
	Type       string `json:"type"`
}

// Handshake wire forms.
type requestPayload struct {
	ID                      string `msgpack:"id"`
	FromPublicKey           string `msgpack:"fromPublicKey"`
	FromUsername            string `msgpack:"fromUsername"`
	FromEncryptionPublicKey string `msgpack:"fromEncryptionPublicKey"`
	ToPublicKey             string `msgpack:"toPublicKey"`
	Message                 string `msgpack:"message"`
	Timestamp               int64  `msgpack:"timestamp"`
}

type responsePayload struct {
	ID                      string `msgpack:"id"`
	RequestID               string `msgpack:"requestId"`
	FromPublicKey           string `msgpack:"fromPublicKey"`
	FromUsername            string `msgpack:"fromUsername"`
	FromEncryptionPublicKey string `msgpack:"fromEncryptionPublicKey"`
	Status                  string `msgpack:"status"`
	RespondedAt             int64  `msgpack:"respondedAt"`
}

type presencePayload struct {
	PublicKey string `msgpack:"publicKey"`
	Username  string `msgpack:"username"`
	Status    string `msgpack:"status"`
	Timestamp int64  `msgpack:"timestamp"`
	Signature string `msgpack:"signature"`
}

// Relay wire frames.
type frame struct {
	Type string `msgpack:"type"`
}

type challengeFrame struct {
	Type      string `msgpack:"type"`
	Challenge string `msgpack:"challenge"`
}

type authFrame struct {
	Type    string `msgpack:"type"`
	Signed  string `msgpack:"signed"`
	SignKey string `msgpack:"signKey"`
}

type publishFrame struct {
	Type    string `msgpack:"type"`
	ID      string `msgpack:"id"`
	Topic   string `msgpack:"topic"`
	Payload []byte `msgpack:"payload"`
}

type ackFrame struct {
	Type string `msgpack:"type"`
	ID   string `msgpack:"id"`
	Ok   bool   `msgpack:"ok"`
}

type subscribeFrame struct {
	Type  string `msgpack:"type"`
	Topic string `msgpack:"topic"`
}

type pushFrame struct {
	Type    string `msgpack:"type"`
	ID      string `msgpack:"id"`
	Topic   string `msgpack:"topic"`
	Payload []byte `msgpack:"payload"`
}

type fetchFrame struct {
	Type  string `msgpack:"type"`
	ID    string `msgpack:"id"`
	Topic string `msgpack:"topic"`
}

type fetchResultFrame struct {
	Type     string   `msgpack:"type"`
	ID       string   `msgpack:"id"`
	Topic    string   `msgpack:"topic"`
	Payloads [][]byte `msgpack:"payloads"`
}

type infoRes struct {
	PubSignKey string `json:"pubSignKey"`
	Version    string `json:"version"`
}
