package sealink

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

// canonicalBytes serializes the signed field set for env's variant. Both
// ends must produce the identical bytes for the identical envelope; a field
// set mismatch breaks verification deterministically.
func canonicalBytes(env *Envelope) ([]byte, error) {
	if env.Type == envelopeTypeGroup {
		return json.Marshal(groupCanonical{
			ID:         env.ID,
			From:       env.From,
			To:         env.To,
			GroupID:    env.GroupID,
			Ciphertext: env.Ciphertext,
			Nonce:      env.Nonce,
			Timestamp:  env.Timestamp,
			Type:       env.Type,
		})
	}
	return json.Marshal(directCanonical{
		ID:         env.ID,
		From:       env.From,
		To:         env.To,
		Ciphertext: env.Ciphertext,
		Nonce:      env.Nonce,
		Timestamp:  env.Timestamp,
	})
}

// signEnvelope sets env.Signature to a detached ed25519 signature over the
// canonical bytes.
func signEnvelope(env *Envelope, privateKey string) error {
	canon, err := canonicalBytes(env)
	if err != nil {
		return err
	}
	sig, err := signDetached(canon, privateKey)
	if err != nil {
		return err
	}
	env.Signature = sig
	return nil
}

// verifyEnvelope recomputes the canonical bytes and checks env.Signature
// against the key named in env.From. The envelope is self-certifying.
func verifyEnvelope(env *Envelope) bool {
	canon, err := canonicalBytes(env)
	if err != nil {
		return false
	}
	return verifyDetached(canon, env.Signature, env.From)
}

func signDetached(message []byte, privateKey string) (string, error) {
	raw, err := fromB64(privateKey)
	if err != nil {
		return "", err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return "", errors.New("bad signing key length")
	}
	return toB64(ed25519.Sign(ed25519.PrivateKey(raw), message)), nil
}

func verifyDetached(message []byte, signature string, publicKey string) bool {
	sig, err := fromB64(signature)
	if err != nil {
		return false
	}
	pub, err := fromB64(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// encryptContent seals plaintext under the pairwise shared secret with a
// fresh random 24-byte nonce. Nonce reuse under the same key is a hard
// violation, hence one nonce per call.
func encryptContent(plaintext string, secret *[keyBytes]byte) (string, string) {
	nonce := makeNonce()
	ciphertext := secretbox.Seal(nil, []byte(plaintext), nonce.bytes, secret)
	return toB64(ciphertext), nonce.str
}

// decryptContent opens a sealed message. Failure means the wrong key or a
// tampered ciphertext; the caller drops the envelope.
func decryptContent(ciphertext string, nonce string, secret *[keyBytes]byte) (string, bool) {
	rawCipher, err := fromB64(ciphertext)
	if err != nil {
		return "", false
	}
	rawNonce, err := fromB64(nonce)
	if err != nil || len(rawNonce) != nonceBytes {
		return "", false
	}
	plaintext, ok := secretbox.Open(nil, rawCipher, nonceSliceConvert(rawNonce), secret)
	if !ok {
		return "", false
	}
	return string(plaintext), true
}

// deriveSharedSecret performs x25519 scalar multiplication between our
// encryption private key and their encryption public key. Symmetric:
// derive(a.priv, b.pub) == derive(b.priv, a.pub).
func deriveSharedSecret(myPrivateKey string, theirPublicKey string) (*[keyBytes]byte, error) {
	priv, err := fromB64(myPrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := fromB64(theirPublicKey)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, err
	}
	secret := keySliceConvert(shared)
	zeroBytes(shared)
	zeroBytes(priv)
	return secret, nil
}
