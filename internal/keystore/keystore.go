// Package keystore seals and unseals the server's own DID signing key at
// rest using an operator-supplied passphrase. Adapted from the
// client-side DEK-wrapping primitives the teacher used for its encrypted
// item vault (internal/crypto/clientcrypto), repurposed to protect the
// server's Ed25519 auth key instead of a per-user data-encryption key.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// ErrWrongPassphrase indicates the AEAD open failed — wrong passphrase or
// corrupted keystore file.
var ErrWrongPassphrase = errors.New("keystore: wrong passphrase or corrupted file")

type sealedFile struct {
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// Generate creates a fresh Ed25519 signing key and seals it to path under
// passphrase.
func Generate(path string, passphrase []byte) (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}
	if err := seal(path, passphrase, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// Unseal loads and decrypts the signing key stored at path.
func Unseal(path string, passphrase []byte) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	var sf sealedFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", path, err)
	}
	kek := deriveKEK(passphrase, sf.Salt)
	signKey := deriveSubkey(kek, "feeds-service/auth-signing-key")
	aead, err := chacha20poly1305.NewX(signKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: init aead: %w", err)
	}
	plain, err := aead.Open(nil, sf.Nonce, sf.Cipher, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return ed25519.PrivateKey(plain), nil
}

func seal(path string, passphrase []byte, priv ed25519.PrivateKey) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keystore: salt: %w", err)
	}
	kek := deriveKEK(passphrase, salt)
	signKey := deriveSubkey(kek, "feeds-service/auth-signing-key")
	aead, err := chacha20poly1305.NewX(signKey)
	if err != nil {
		return fmt.Errorf("keystore: init aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("keystore: nonce: %w", err)
	}
	cipher := aead.Seal(nil, nonce, priv, nil)
	sf := sealedFile{Salt: salt, Nonce: nonce, Cipher: cipher}
	raw, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// deriveKEK derives a key-encryption key from the passphrase via Argon2id.
func deriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// deriveSubkey separates a purpose-bound subkey from the KEK via HKDF-SHA256,
// so the same passphrase-derived KEK can seal more than one secret without
// key reuse across purposes.
func deriveSubkey(kek []byte, info string) []byte {
	r := hkdf.New(sha256.New, kek, nil, []byte(info))
	out := make([]byte, chacha20poly1305.KeySize)
	_, _ = r.Read(out)
	return out
}
