package sealink

import "strings"

// Transport is the publish/subscribe substrate the protocol rides on.
// Delivery is at-least-once and unordered; nothing here may be assumed
// reliable. Publish blocks until the substrate confirms the frame or the
// transport's ack timeout elapses; a timeout means unconfirmed, not failed.
// FetchPending is the one-shot catch-up read, distinct from the live
// subscription.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
	FetchPending(topic string) ([][]byte, error)
	Close() error
}

// Topic derivation. Direct-message topics are keyed (recipient, sender) so
// a recipient can subscribe to everything addressed to it with a trailing
// wildcard; requests and responses are keyed by recipient alone.
func directTopic(recipient string, sender string) string {
	return "dm/" + recipient + "/" + sender
}

func directWildcard(recipient string) string {
	return "dm/" + recipient + "/*"
}

func requestTopic(recipient string) string {
	return "req/" + recipient
}

func responseTopic(recipient string) string {
	return "rsp/" + recipient
}

func presenceTopic(identity string) string {
	return "presence/" + identity
}

// topicMatches reports whether a concrete topic is covered by a
// subscription pattern. A pattern ending in "/*" matches any topic with
// that prefix; anything else is an exact match.
func topicMatches(pattern string, topic string) bool {
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	}
	return pattern == topic
}
