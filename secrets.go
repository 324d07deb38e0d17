package sealink

import "sync"

// secretCache memoizes ECDH outputs per contact for the life of the
// session. Derivation is a pure function of the two keys, so a benign race
// that computes the same secret twice is harmless; the lock only guarantees
// a reader never observes a partially written entry.
type secretCache struct {
	mu      sync.Mutex
	secrets map[string]*[keyBytes]byte
}

func (c *secretCache) get(contactPublicKey string) (*[keyBytes]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	secret, ok := c.secrets[contactPublicKey]
	return secret, ok
}

func (c *secretCache) put(contactPublicKey string, secret *[keyBytes]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.secrets == nil {
		c.secrets = map[string]*[keyBytes]byte{}
	}
	c.secrets[contactPublicKey] = secret
}

// clear wipes every cached secret. Called on logout; nothing here is ever
// persisted.
func (c *secretCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, secret := range c.secrets {
		zeroBytes(secret[:])
		delete(c.secrets, key)
	}
}
