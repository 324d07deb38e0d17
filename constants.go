package sealink

import (
	"errors"

	"github.com/op/go-logging"
)

var progName string = "sealink"
var version string = "v0.1.0"
var log *logging.Logger = logging.MustGetLogger(progName)

const (
	saltBytes  = 16
	nonceBytes = 24
	keyBytes   = 32

	// interactive argon2id cost, identical on seal and open
	argonOps     = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
)

// Contact status values.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Contact request states. Accepted and declined are terminal.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

// Message directions.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Group member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const envelopeTypeGroup = "group"

var (
	ErrNotUnlocked         = errors.New("no identity unlocked for this session")
	ErrIdentityExists      = errors.New("an identity already exists on this installation")
	ErrUnknownContact      = errors.New("contact not found")
	ErrAlreadyContact      = errors.New("contact already exists")
	ErrDuplicateRequest    = errors.New("a pending contact request for this recipient already exists")
	ErrRequestNotFound     = errors.New("contact request not found")
	ErrRequestTerminal     = errors.New("contact request has already been responded to")
	ErrNotRequestRecipient = errors.New("contact request is not addressed to this identity")
	ErrUnknownGroup        = errors.New("group not found")
	ErrNotGroupAdmin       = errors.New("only a group admin may change membership")
	ErrNotGroupMember      = errors.New("sender is not a member of this group")
	ErrEmptyMessage        = errors.New("message content is empty")
	ErrUnconfirmed         = errors.New("transport did not confirm the publish")
)
