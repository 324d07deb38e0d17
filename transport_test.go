package sealink

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memHub is an in-process Transport shared by every session in a test.
// It retains everything published so FetchPending works, and dispatches
// live to matching subscribers, the same contract the relay offers.
type memHub struct {
	mu       sync.Mutex
	retained map[string][][]byte
	subs     []memSub
	down     bool
}

type memSub struct {
	pattern string
	handler func(payload []byte)
}

func newMemHub() *memHub {
	return &memHub{retained: map[string][][]byte{}}
}

func (h *memHub) Publish(topic string, payload []byte) error {
	h.mu.Lock()
	if h.down {
		h.mu.Unlock()
		return errors.New("relay unreachable")
	}
	h.retained[topic] = append(h.retained[topic], payload)
	targets := []func(payload []byte){}
	for _, sub := range h.subs {
		if topicMatches(sub.pattern, topic) {
			targets = append(targets, sub.handler)
		}
	}
	h.mu.Unlock()

	// dispatch outside the lock, handlers may subscribe
	for _, handler := range targets {
		handler(payload)
	}
	return nil
}

func (h *memHub) Subscribe(pattern string, handler func(payload []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, memSub{pattern: pattern, handler: handler})
	return nil
}

func (h *memHub) FetchPending(topic string) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	payloads := [][]byte{}
	for retainedTopic, frames := range h.retained {
		if topicMatches(topic, retainedTopic) {
			payloads = append(payloads, frames...)
		}
	}
	return payloads, nil
}

func (h *memHub) Close() error {
	return nil
}

func (h *memHub) setDown(down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = down
}

func newTestSession(t *testing.T, hub *memHub, username string) *Session {
	t.Helper()
	identity, _, err := CreateIdentity(username, "correcthorse1")
	require.NoError(t, err)

	store, err := OpenStore(":memory:")
	require.NoError(t, err)

	session := NewSession(store, hub, 0)
	require.NoError(t, session.Unlock(identity))
	t.Cleanup(session.Logout)
	return session
}

// makeContacts runs the full handshake so both sessions hold each other
// as contacts with usable key material.
func makeContacts(t *testing.T, from *Session, to *Session) {
	t.Helper()
	request, err := from.SendContactRequest(to.identity.PublicKey, "hi")
	require.NoError(t, err)

	_, err = to.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)

	contact, err := from.store.GetContact(to.identity.PublicKey)
	require.NoError(t, err)
	require.NotNil(t, contact)
}

func TestTopicMatching(t *testing.T) {
	require.True(t, topicMatches("dm/alice/bob", "dm/alice/bob"))
	require.False(t, topicMatches("dm/alice/bob", "dm/alice/carol"))
	require.True(t, topicMatches("dm/alice/*", "dm/alice/bob"))
	require.True(t, topicMatches("dm/alice/*", "dm/alice/carol"))
	require.False(t, topicMatches("dm/alice/*", "dm/bob/alice"))
	require.False(t, topicMatches("dm/alice/*", "req/alice"))
}
