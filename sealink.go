package sealink

import (
	"os"
	"path/filepath"
	"time"
)

// Client is the exported surface of the library. A host application
// constructs one, creates or logs into an identity, and then talks to
// the world through the session methods exposed here.
type Client struct {
	config    Config
	store     Store
	transport *RelayTransport
	session   *Session
	api       *APIServer
}

// NewClient prepares a client against the given config. The data
// directory is created if missing and the store is opened immediately;
// no network traffic happens until Login or ServeAPI.
func NewClient(config Config) (*Client, error) {
	LoggerConfig(config.LogLevel)

	config = mergeDefaults(config)
	if err := os.MkdirAll(config.DataDir, 0700); err != nil {
		return nil, err
	}

	store, err := OpenStore(filepath.Join(config.DataDir, progName+".db"))
	if err != nil {
		return nil, err
	}

	client := &Client{config: config, store: store}
	if config.APIPort > 0 {
		client.api = NewAPIServer(client, config.APIPort)
	}

	log.Info("Using data directory " + config.DataDir + ".")
	return client, nil
}

// ServeAPI runs the local HTTP API on the configured port, blocking until
// the listener fails. A zero APIPort disables the API; the call returns
// immediately.
func (c *Client) ServeAPI() error {
	if c.api == nil {
		return nil
	}
	return c.api.Run()
}

func mergeDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.DataDir == "" {
		config.DataDir = defaults.DataDir
	}
	if config.Relay == "" {
		config.Relay = defaults.Relay
	}
	if config.AckTimeoutMS <= 0 {
		config.AckTimeoutMS = defaults.AckTimeoutMS
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}
	return config
}

// CreateIdentity generates a fresh identity sealed under password and
// persists the encrypted record. Fails if an identity already exists in
// this data directory.
func (c *Client) CreateIdentity(username string, password string) (*Identity, error) {
	existing, err := c.store.LoadIdentity()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrIdentityExists
	}

	identity, record, err := CreateIdentity(username, password)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveIdentity(record); err != nil {
		return nil, err
	}

	log.Info("Created identity " + identity.PublicKey + ".")
	identity.destroy()
	return &Identity{
		Username:  identity.Username,
		PublicKey: identity.PublicKey,
	}, nil
}

// Login unseals the stored identity, dials the relay and brings a
// session online. Returns a generic failure for a wrong password, the
// same as for a corrupted record.
func (c *Client) Login(password string) error {
	record, err := c.store.LoadIdentity()
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotUnlocked
	}

	identity := DecryptIdentity(record, password)
	if identity == nil {
		return ErrNotUnlocked
	}

	transport, err := DialRelay(c.config.Relay, identity, time.Duration(c.config.AckTimeoutMS)*time.Millisecond)
	if err != nil {
		identity.destroy()
		return err
	}
	c.transport = transport

	session := NewSession(c.store, transport, c.config.EventBuffer)
	if err := session.Unlock(identity); err != nil {
		transport.Close()
		identity.destroy()
		return err
	}
	c.session = session
	return nil
}

// Logout takes the session offline and drops key material. The client
// can Login again afterwards.
func (c *Client) Logout() {
	if c.session != nil {
		c.session.Logout()
		c.session = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
}

// Session exposes the live session. Panics via the session's own
// precondition if called before Login succeeds.
func (c *Client) Session() *Session {
	if c.session == nil {
		panic(ErrNotUnlocked)
	}
	return c.session
}

// Events is the client's event feed. Valid only after Login.
func (c *Client) Events() <-chan Event {
	return c.Session().Events()
}
