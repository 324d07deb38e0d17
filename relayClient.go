package sealink

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack"
)

const defaultAckTimeout = 10 * time.Second

// RelayTransport is the websocket Transport implementation against a
// sealink relay. The relay authenticates the client by challenge: it sends
// a random token, the client returns a detached signature under its
// identity key.
type RelayTransport struct {
	addr       string
	identity   *Identity
	ackTimeout time.Duration

	conn       *websocket.Conn
	writeMu    sync.Mutex
	serverInfo infoRes

	subMu sync.Mutex
	subs  map[string][]func(payload []byte)

	waitMu  sync.Mutex
	acks    map[string]chan ackFrame
	fetches map[string]chan fetchResultFrame

	authed   chan struct{}
	authOnce sync.Once
	closed   bool
}

// DialRelay probes the relay, opens the socket and completes the challenge
// auth before returning. ackTimeout bounds every publish/fetch confirmation
// wait; zero selects the default.
func DialRelay(addr string, identity *Identity, ackTimeout time.Duration) (*RelayTransport, error) {
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	t := &RelayTransport{
		addr:       addr,
		identity:   identity,
		ackTimeout: ackTimeout,
		subs:       map[string][]func([]byte){},
		acks:       map[string]chan ackFrame{},
		fetches:    map[string]chan fetchResultFrame{},
		authed:     make(chan struct{}),
	}

	httpClient := http.Client{
		Timeout: 2 * time.Second,
	}
	infoURL := url.URL{Scheme: "http", Host: addr, Path: "/info"}
	res, err := httpClient.Get(infoURL.String())
	if err != nil {
		return nil, err
	}
	infoBody, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}
	info := infoRes{}
	if err := json.Unmarshal(infoBody, &info); err != nil {
		return nil, err
	}
	t.serverInfo = info

	socketURL := url.URL{Scheme: "ws", Host: addr, Path: "/socket"}
	conn, _, err := websocket.DefaultDialer.Dial(socketURL.String(), nil)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	go t.listen()

	select {
	case <-t.authed:
	case <-time.After(t.ackTimeout):
		conn.Close()
		return nil, errors.New("relay did not authorize in time")
	}

	log.Info(colors.boldGreen+"AUTH"+colors.reset, "Logged in to relay "+addr+".")
	return t, nil
}

func (t *RelayTransport) listen() {
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}

		msg := frame{}
		if err := msgpack.Unmarshal(raw, &msg); err != nil {
			t.fail(err)
			return
		}

		switch msg.Type {
		case "ping":
			t.send(mustMarshal(&frame{Type: "pong"}))
		case "pong":
		case "challenge":
			t.respond(raw)
		case "authorized":
			t.authOnce.Do(func() { close(t.authed) })
		case "push":
			push := pushFrame{}
			if err := msgpack.Unmarshal(raw, &push); err == nil {
				t.dispatch(&push)
			}
		case "ack":
			ack := ackFrame{}
			if err := msgpack.Unmarshal(raw, &ack); err == nil {
				t.routeAck(ack)
			}
		case "fetchresult":
			result := fetchResultFrame{}
			if err := msgpack.Unmarshal(raw, &result); err == nil {
				t.routeFetch(result)
			}
		default:
			log.Warning("unknown relay frame type: " + msg.Type)
		}
	}
}

func (t *RelayTransport) respond(raw []byte) {
	challenge := challengeFrame{}
	if err := msgpack.Unmarshal(raw, &challenge); err != nil {
		t.fail(err)
		return
	}
	signed, err := signDetached([]byte(challenge.Challenge), t.identity.PrivateKey)
	if err != nil {
		t.fail(err)
		return
	}
	t.send(mustMarshal(&authFrame{
		Type:    "response",
		Signed:  signed,
		SignKey: t.identity.PublicKey,
	}))
}

func (t *RelayTransport) dispatch(push *pushFrame) {
	t.subMu.Lock()
	handlers := []func([]byte){}
	for pattern, fns := range t.subs {
		if topicMatches(pattern, push.Topic) {
			handlers = append(handlers, fns...)
		}
	}
	t.subMu.Unlock()

	// handlers run on the read loop: frames from one relay connection are
	// processed one at a time
	for _, handler := range handlers {
		handler(push.Payload)
	}
}

func (t *RelayTransport) routeAck(ack ackFrame) {
	t.waitMu.Lock()
	ch, ok := t.acks[ack.ID]
	t.waitMu.Unlock()
	if ok {
		select {
		case ch <- ack:
		default:
		}
	}
}

func (t *RelayTransport) routeFetch(result fetchResultFrame) {
	t.waitMu.Lock()
	ch, ok := t.fetches[result.ID]
	t.waitMu.Unlock()
	if ok {
		select {
		case ch <- result:
		default:
		}
	}
}

// Publish sends one frame and waits for the relay's confirmation. An
// elapsed timeout means unconfirmed; the caller decides what that implies,
// nothing is retried here.
func (t *RelayTransport) Publish(topic string, payload []byte) error {
	id := uuid.NewV4().String()
	ch := make(chan ackFrame, 1)
	t.waitMu.Lock()
	t.acks[id] = ch
	t.waitMu.Unlock()
	defer func() {
		t.waitMu.Lock()
		delete(t.acks, id)
		t.waitMu.Unlock()
	}()

	err := t.send(mustMarshal(&publishFrame{
		Type:    "publish",
		ID:      id,
		Topic:   topic,
		Payload: payload,
	}))
	if err != nil {
		return err
	}

	select {
	case ack := <-ch:
		if !ack.Ok {
			return errors.New("relay refused the frame")
		}
		return nil
	case <-time.After(t.ackTimeout):
		return ErrUnconfirmed
	}
}

// Subscribe registers a live handler for every frame on topics covered by
// pattern. Handlers for one connection run sequentially.
func (t *RelayTransport) Subscribe(pattern string, handler func(payload []byte)) error {
	t.subMu.Lock()
	t.subs[pattern] = append(t.subs[pattern], handler)
	t.subMu.Unlock()

	return t.send(mustMarshal(&subscribeFrame{Type: "subscribe", Topic: pattern}))
}

// FetchPending performs the one-shot catch-up read of frames the relay
// retained for a topic.
func (t *RelayTransport) FetchPending(topic string) ([][]byte, error) {
	id := uuid.NewV4().String()
	ch := make(chan fetchResultFrame, 1)
	t.waitMu.Lock()
	t.fetches[id] = ch
	t.waitMu.Unlock()
	defer func() {
		t.waitMu.Lock()
		delete(t.fetches, id)
		t.waitMu.Unlock()
	}()

	err := t.send(mustMarshal(&fetchFrame{Type: "fetch", ID: id, Topic: topic}))
	if err != nil {
		return nil, err
	}

	select {
	case result := <-ch:
		return result.Payloads, nil
	case <-time.After(t.ackTimeout):
		return nil, ErrUnconfirmed
	}
}

func (t *RelayTransport) Close() error {
	t.closed = true
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *RelayTransport) send(msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	err := t.conn.WriteMessage(websocket.BinaryMessage, msg)
	if err != nil {
		log.Error(err)
	}
	return err
}

func (t *RelayTransport) fail(err error) {
	if !t.closed {
		log.Warning("Relay connection lost: " + err.Error())
	}
	if t.conn != nil {
		t.conn.Close()
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := msgpack.Marshal(v)
	check(err)
	return b
}
