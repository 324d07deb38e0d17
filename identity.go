package sealink

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// privateBlob is the plaintext sealed inside an EncryptedIdentity.
type privateBlob struct {
	PrivateKey           string `json:"privateKey"`
	EncryptionPrivateKey string `json:"encryptionPrivateKey"`
}

// CreateIdentity generates a fresh ed25519 signing keypair, derives the
// x25519 encryption keypair from it and seals the private halves under a
// key derived from password. It returns the live identity for this session
// and the record that is safe to persist.
func CreateIdentity(username string, password string) (*Identity, *EncryptedIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	encPub, encPriv, err := encryptionKeysFromSigning(priv)
	if err != nil {
		return nil, nil, err
	}

	identity := &Identity{
		Username:             username,
		PublicKey:            toB64(pub),
		PrivateKey:           toB64(priv),
		EncryptionPublicKey:  toB64(encPub[:]),
		EncryptionPrivateKey: toB64(encPriv[:]),
		Created:              nowMillis(),
	}
	zeroBytes(encPriv[:])

	record, err := sealIdentity(identity, password)
	if err != nil {
		return nil, nil, err
	}

	log.Info(colors.boldGreen+"CRYP"+colors.reset, "Created identity for "+username+".")
	return identity, record, nil
}

func sealIdentity(identity *Identity, password string) (*EncryptedIdentity, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveStorageKey(password, salt)
	defer zeroBytes(key[:])

	blob, err := json.Marshal(privateBlob{
		PrivateKey:           identity.PrivateKey,
		EncryptionPrivateKey: identity.EncryptionPrivateKey,
	})
	if err != nil {
		return nil, err
	}
	defer zeroBytes(blob)

	nonce := makeNonce()
	ciphertext := secretbox.Seal(nil, blob, nonce.bytes, key)

	return &EncryptedIdentity{
		Username:            identity.Username,
		PublicKey:           identity.PublicKey,
		EncryptionPublicKey: identity.EncryptionPublicKey,
		Ciphertext:          toB64(ciphertext),
		Nonce:               nonce.str,
		Salt:                toB64(salt),
		Created:             identity.Created,
	}, nil
}

// DecryptIdentity re-derives the storage key with the stored salt and opens
// the private key material. Any failure, wrong password included, yields a
// bare nil so the caller cannot distinguish which step failed.
func DecryptIdentity(record *EncryptedIdentity, password string) *Identity {
	salt, err := fromB64(record.Salt)
	if err != nil {
		return nil
	}
	nonce, err := fromB64(record.Nonce)
	if err != nil || len(nonce) != nonceBytes {
		return nil
	}
	ciphertext, err := fromB64(record.Ciphertext)
	if err != nil {
		return nil
	}

	key := deriveStorageKey(password, salt)
	defer zeroBytes(key[:])

	plaintext, ok := secretbox.Open(nil, ciphertext, nonceSliceConvert(nonce), key)
	if !ok {
		return nil
	}
	defer zeroBytes(plaintext)

	blob := privateBlob{}
	if err := json.Unmarshal(plaintext, &blob); err != nil {
		return nil
	}

	return &Identity{
		Username:             record.Username,
		PublicKey:            record.PublicKey,
		PrivateKey:           blob.PrivateKey,
		EncryptionPublicKey:  record.EncryptionPublicKey,
		EncryptionPrivateKey: blob.EncryptionPrivateKey,
		Created:              record.Created,
	}
}

func deriveStorageKey(password string, salt []byte) *[keyBytes]byte {
	raw := argon2.IDKey([]byte(password), salt, argonOps, argonMemory, argonThreads, keyBytes)
	key := keySliceConvert(raw)
	zeroBytes(raw)
	return key
}

// DeriveEncryptionPublicKey maps an ed25519 signing public key to the x25519
// encryption public key of the same identity. Pure and deterministic; used
// to bootstrap a contact from a bare signing key.
func DeriveEncryptionPublicKey(signingPublicKey string) (string, error) {
	raw, err := fromB64(signingPublicKey)
	if err != nil {
		return "", err
	}
	point, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return "", err
	}
	return toB64(point.BytesMontgomery()), nil
}

// encryptionKeysFromSigning derives the x25519 keypair from an ed25519
// private key: the scalar is the clamped first half of SHA-512(seed), the
// public key is the signing point mapped to the birationally equivalent
// Montgomery curve.
func encryptionKeysFromSigning(priv ed25519.PrivateKey) ([keyBytes]byte, [keyBytes]byte, error) {
	var encPub, encPriv [keyBytes]byte

	digest := sha512.Sum512(priv.Seed())
	copy(encPriv[:], digest[:keyBytes])
	encPriv[0] &= 248
	encPriv[31] &= 127
	encPriv[31] |= 64
	zeroBytes(digest[:])

	point, err := new(edwards25519.Point).SetBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return encPub, encPriv, err
	}
	copy(encPub[:], point.BytesMontgomery())

	return encPub, encPriv, nil
}

// destroy drops the private halves. Go strings cannot be wiped in place, so
// this only severs the session's references.
func (i *Identity) destroy() {
	i.PrivateKey = ""
	i.EncryptionPrivateKey = ""
}
