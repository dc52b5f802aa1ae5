package securestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/jrsteele09/go-auth-client/credentials"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var _ credentials.BatchStorage = (*Encrypted)(nil)

var (
	ErrEmptyMasterKey = errors.New("securestore: empty master key")
	ErrDecrypt        = errors.New("securestore: value cannot be decrypted")
)

const keyInfo = "go-auth-client credential storage v1"

// Encrypted seals every value with XChaCha20-Poly1305 before it reaches the
// inner storage. The key name is bound as additional data, so ciphertext copied
// from one key to another fails to open.
type Encrypted struct {
	inner credentials.Storage
	aead  cipher.AEAD
}

// NewEncrypted derives a 256-bit key from masterKey with HKDF-SHA256.
func NewEncrypted(inner credentials.Storage, masterKey []byte, salt []byte) (*Encrypted, error) {
	if len(masterKey) == 0 {
		return nil, ErrEmptyMasterKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("securestore: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("securestore: init cipher: %w", err)
	}

	return &Encrypted{inner: inner, aead: aead}, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return e.open(key, sealed)
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	sealed, err := e.seal(key, value)
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, key, sealed)
}

// SetMany is atomic only when the inner storage is a BatchStorage.
func (e *Encrypted) SetMany(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		s, err := e.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = s
	}

	if batch, ok := e.inner.(credentials.BatchStorage); ok {
		return batch.SetMany(ctx, sealed)
	}
	for k, v := range sealed {
		if err := e.inner.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encrypted) Remove(ctx context.Context, key string) error {
	return e.inner.Remove(ctx, key)
}

func (e *Encrypted) seal(key, value string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("securestore: nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (e *Encrypted) open(key, sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < e.aead.NonceSize() {
		return "", fmt.Errorf("%w: %s", ErrDecrypt, key)
	}
	nonce, ciphertext := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecrypt, key)
	}
	return string(plain), nil
}
