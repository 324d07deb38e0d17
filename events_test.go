package sealink

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventQueueDropsOldest(t *testing.T) {
	queue := newEventQueue(4)

	for i := 0; i < 6; i++ {
		queue.emit(strconv.Itoa(i), nil)
	}

	// the two oldest were dropped to make room, never the newest
	got := []string{}
	for i := 0; i < 4; i++ {
		got = append(got, (<-queue.channel()).Type)
	}
	require.Equal(t, []string{"2", "3", "4", "5"}, got)

	select {
	case event := <-queue.channel():
		t.Fatalf("unexpected extra event %s", event.Type)
	default:
	}
}

func TestEventQueueDefaultSize(t *testing.T) {
	queue := newEventQueue(0)
	require.Equal(t, 128, cap(queue.ch))
}

func TestSessionEventBufferConfigured(t *testing.T) {
	hub := newMemHub()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)

	// the configured capacity reaches the queue, not a hardcoded default
	session := NewSession(store, hub, 4)
	require.Equal(t, 4, cap(session.events.ch))

	fallback := NewSession(store, hub, 0)
	require.Equal(t, 128, cap(fallback.events.ch))
}

func drainEvents(s *Session) map[string]int {
	counts := map[string]int{}
	for {
		select {
		case event := <-s.Events():
			counts[event.Type]++
		default:
			return counts
		}
	}
}

func TestSessionEventFlow(t *testing.T) {
	hub := newMemHub()
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	request, err := alice.SendContactRequest(bob.identity.PublicKey, "hi")
	require.NoError(t, err)

	bobEvents := drainEvents(bob)
	require.Equal(t, 1, bobEvents[EventRequestReceived])

	_, err = bob.AcceptContactRequest(request.RequestID)
	require.NoError(t, err)

	aliceEvents := drainEvents(alice)
	require.Equal(t, 1, aliceEvents[EventRequestAccepted])

	_, err = alice.SendMessage(bob.identity.PublicKey, "hello")
	require.NoError(t, err)

	require.Equal(t, 1, drainEvents(alice)[EventMessageSent])
	require.Equal(t, 1, drainEvents(bob)[EventMessageReceived])
}
