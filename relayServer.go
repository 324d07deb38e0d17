package sealink

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack"
)

const defaultRetainLimit = 256

// RelayServer is the store-and-forward rendezvous point. It never sees
// plaintext: every payload it handles is an opaque signed envelope sealed
// end to end between identities. Frames are retained per topic, bounded,
// to serve the offline catch-up read.
type RelayServer struct {
	config RelayConfig
	router *mux.Router

	signPub  ed25519.PublicKey
	signPriv ed25519.PrivateKey

	retainMu sync.Mutex
	retained map[string][][]byte

	connMu sync.Mutex
	conns  []*relayConn

	seen lockList
}

// relayConn is one authenticated client socket.
type relayConn struct {
	conn    *websocket.Conn
	host    string
	authed  bool
	alive   bool
	vID     uuid.UUID
	signKey string
	topics  map[string]bool
	topicMu sync.Mutex
	mu      sync.Mutex
}

// NewRelayServer prepares a relay with a fresh ephemeral signing identity.
func NewRelayServer(config RelayConfig) (*RelayServer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if config.RetainLimit <= 0 {
		config.RetainLimit = defaultRetainLimit
	}

	r := &RelayServer{
		config:   config,
		signPub:  pub,
		signPriv: priv,
		retained: map[string][][]byte{},
	}
	r.seen.setMaxLength(4096)
	r.getRouter()
	return r, nil
}

// Run starts the relay. Blocks until the listener fails.
func (r *RelayServer) Run() error {
	log.Info(colors.boldYellow+"HTTP"+colors.reset, "Starting relay on port "+strconv.Itoa(r.config.Port)+".")
	return http.ListenAndServe(":"+strconv.Itoa(r.config.Port),
		handlers.CORS(handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "HEAD", "OPTIONS", "PATCH"}),
			handlers.AllowedOrigins([]string{"*"}))(r.router))
}

func (r *RelayServer) getRouter() {
	r.router = mux.NewRouter()
	r.router.Handle("/", r.HomeHandler()).Methods("GET")
	r.router.Handle("/info", r.InfoHandler()).Methods("GET")
	r.router.Handle("/socket", r.SocketHandler()).Methods("GET")
}

// HomeHandler handles the relay homepage.
func (r *RelayServer) HomeHandler() http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		log.Info(colors.boldYellow+"HTTP"+colors.reset, req.Method, req.URL, GetIP(req))

		res.WriteHeader(http.StatusOK)
		res.Write([]byte("<!DOCTYPE html>"))
		res.Write([]byte("<html>"))
		res.Write([]byte("<style> body { width: 50em; margin: 0 auto; font-family: monospace; } </style>"))
		res.Write([]byte("<body>"))
		res.Write([]byte("<h1>" + progName + " relay</h1>"))
		res.Write([]byte("<p>If you can see this, the relay is running.</p>"))
		res.Write([]byte("<ul>"))
		res.Write([]byte("<li>Version: &nbsp;&nbsp;&nbsp;&nbsp;" + version + "</li>"))
		res.Write([]byte("<li>Hostname: &nbsp;&nbsp;&nbsp;" + req.Host + "</li>"))
		res.Write([]byte("</ul>"))
		res.Write([]byte("</body>"))
		res.Write([]byte("</html>"))
	})
}

// InfoHandler handles the info endpoint.
func (r *RelayServer) InfoHandler() http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		log.Info(colors.boldYellow+"HTTP"+colors.reset, req.Method, req.URL, GetIP(req))

		info := infoRes{
			PubSignKey: toB64(r.signPub),
			Version:    version,
		}
		byteRes, err := json.Marshal(&info)
		if err != nil {
			res.WriteHeader(http.StatusInternalServerError)
			return
		}

		res.Header().Set("Content-Type", "application/json")
		res.WriteHeader(http.StatusOK)
		res.Write(byteRes)
	})
}

// SocketHandler upgrades a client socket and services its frames.
func (r *RelayServer) SocketHandler() http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		log.Info(colors.boldYellow+"HTTP"+colors.reset, req.Method, req.URL, GetIP(req))

		var upgrader = websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
		}
		upgrader.CheckOrigin = func(req *http.Request) bool { return true }

		conn, err := upgrader.Upgrade(res, req, nil)
		if err != nil {
			log.Warning(err)
			return
		}
		conn.SetReadLimit(3000000)

		rc := &relayConn{
			conn:   conn,
			host:   GetIP(req),
			alive:  true,
			authed: false,
			vID:    uuid.NewV4(),
			topics: map[string]bool{},
		}
		r.addConn(rc)

		go rc.authenticate()
		go rc.ping()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				r.removeConn(rc)
				break
			}

			msg := frame{}
			if err := msgpack.Unmarshal(raw, &msg); err != nil {
				conn.Close()
				r.removeConn(rc)
				break
			}

			switch msg.Type {
			case "response":
				r.handleAuth(rc, raw)
			case "ping":
				rc.pong()
			case "pong":
				rc.alive = true
			case "publish":
				if !rc.authed {
					log.Warning("Peer attempted to publish without being authed.")
					break
				}
				r.handlePublish(rc, raw)
			case "subscribe":
				if !rc.authed {
					break
				}
				sub := subscribeFrame{}
				if err := msgpack.Unmarshal(raw, &sub); err == nil && sub.Topic != "" {
					rc.topicMu.Lock()
					rc.topics[sub.Topic] = true
					rc.topicMu.Unlock()
				}
			case "fetch":
				if !rc.authed {
					break
				}
				r.handleFetch(rc, raw)
			default:
				log.Warning("Unsupported frame: ", msg.Type)
			}
		}
	})
}

func (r *RelayServer) handleAuth(rc *relayConn, raw []byte) {
	response := authFrame{}
	if err := msgpack.Unmarshal(raw, &response); err != nil {
		return
	}

	if verifyDetached([]byte(rc.vID.String()), response.Signed, response.SignKey) {
		rc.authed = true
		rc.signKey = response.SignKey
		rc.send(mustMarshal(&frame{Type: "authorized"}))
		log.Info(colors.boldGreen+"AUTH"+colors.reset, "Authorized client "+rc.host+".")
	} else {
		log.Warning("Client " + rc.host + " invalid auth signature.")
		rc.conn.Close()
	}
}

func (r *RelayServer) handlePublish(rc *relayConn, raw []byte) {
	publish := publishFrame{}
	if err := msgpack.Unmarshal(raw, &publish); err != nil {
		return
	}
	if publish.Topic == "" || strings.HasSuffix(publish.Topic, "/*") {
		rc.send(mustMarshal(&ackFrame{Type: "ack", ID: publish.ID, Ok: false}))
		return
	}

	// redelivered frames are acked but not relayed twice
	if !r.seen.contains([]byte(publish.ID)) {
		r.seen.push([]byte(publish.ID))
		r.retain(publish.Topic, publish.Payload)
		r.deliver(publish.Topic, publish.ID, publish.Payload)
		log.Info(colors.boldMagenta+"CAST"+colors.reset, publish.Topic, publish.ID)
	}

	rc.send(mustMarshal(&ackFrame{Type: "ack", ID: publish.ID, Ok: true}))
}

func (r *RelayServer) handleFetch(rc *relayConn, raw []byte) {
	fetch := fetchFrame{}
	if err := msgpack.Unmarshal(raw, &fetch); err != nil {
		return
	}

	r.retainMu.Lock()
	payloads := [][]byte{}
	for topic, frames := range r.retained {
		if topicMatches(fetch.Topic, topic) {
			payloads = append(payloads, frames...)
		}
	}
	r.retainMu.Unlock()

	rc.send(mustMarshal(&fetchResultFrame{
		Type:     "fetchresult",
		ID:       fetch.ID,
		Topic:    fetch.Topic,
		Payloads: payloads,
	}))
}

func (r *RelayServer) retain(topic string, payload []byte) {
	r.retainMu.Lock()
	defer r.retainMu.Unlock()
	frames := append(r.retained[topic], payload)
	if len(frames) > r.config.RetainLimit {
		frames = frames[1:]
	}
	r.retained[topic] = frames
}

func (r *RelayServer) deliver(topic string, id string, payload []byte) {
	r.connMu.Lock()
	targets := []*relayConn{}
	for _, rc := range r.conns {
		if !rc.authed {
			continue
		}
		rc.topicMu.Lock()
		for pattern := range rc.topics {
			if topicMatches(pattern, topic) {
				targets = append(targets, rc)
				break
			}
		}
		rc.topicMu.Unlock()
	}
	r.connMu.Unlock()

	for _, rc := range targets {
		rc.send(mustMarshal(&pushFrame{Type: "push", ID: id, Topic: topic, Payload: payload}))
	}
}

func (r *RelayServer) addConn(rc *relayConn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.conns = append(r.conns, rc)
}

func (r *RelayServer) removeConn(rc *relayConn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	for i, c := range r.conns {
		if c == rc {
			r.conns[i] = r.conns[len(r.conns)-1]
			r.conns[len(r.conns)-1] = nil
			r.conns = r.conns[:len(r.conns)-1]
			break
		}
	}
}

func (rc *relayConn) send(msg []byte) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (rc *relayConn) authenticate() {
	rc.send(mustMarshal(&challengeFrame{Type: "challenge", Challenge: rc.vID.String()}))

	time.Sleep(3 * time.Second)

	if !rc.authed {
		log.Warning("Peer " + rc.host + " did not authorize in time, closing connection.")
		rc.conn.Close()
	}
}

func (rc *relayConn) pong() {
	rc.send(mustMarshal(&frame{Type: "pong"}))
}

func (rc *relayConn) ping() {
	for {
		if !rc.alive {
			rc.conn.Close()
			break
		}

		rc.alive = false
		rc.send(mustMarshal(&frame{Type: "ping"}))
		time.Sleep(30 * time.Second)
	}
}
