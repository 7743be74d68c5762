// Package crypto implements AES-128-CBC decryption with PKCS#7 padding
// (§4.3), the only DRM this engine supports.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/haldenfox/m3u8dl/internal/httpclient"
)

// BadPaddingError means the decrypted stream's PKCS#7 padding is invalid,
// which usually indicates a truncated ciphertext body.
type BadPaddingError struct{}

func (e *BadPaddingError) Error() string { return "decrypt: bad pkcs7 padding" }

// BadKeyLengthError means the fetched key was not exactly 16 bytes.
type BadKeyLengthError struct{ Got int }

func (e *BadKeyLengthError) Error() string {
	return fmt.Sprintf("decrypt: bad key length: got %d, want 16", e.Got)
}

// KeyCache fetches and caches 16-byte AES keys by URI for the lifetime of
// one task. Not shared across tasks (§5 "Key cache: per task, not shared").
type KeyCache struct {
	client *httpclient.Client
	mu     sync.RWMutex
	keys   map[string][]byte
}

// NewKeyCache creates an empty cache bound to client.
func NewKeyCache(client *httpclient.Client) *KeyCache {
	return &KeyCache{client: client, keys: make(map[string][]byte)}
}

// Fetch returns the key for keyURI, fetching and caching it on first use.
func (c *KeyCache) Fetch(ctx context.Context, keyURI string, headers map[string]string) ([]byte, error) {
	c.mu.RLock()
	if k, ok := c.keys[keyURI]; ok {
		c.mu.RUnlock()
		return k, nil
	}
	c.mu.RUnlock()

	b, err := c.client.GetBytes(ctx, keyURI, headers)
	if err != nil {
		return nil, err
	}
	if len(b) != 16 {
		return nil, &BadKeyLengthError{Got: len(b)}
	}

	c.mu.Lock()
	c.keys[keyURI] = b
	c.mu.Unlock()
	return b, nil
}

// Zeroize wipes every cached key. Called on task destruction.
func (c *KeyCache) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uri, k := range c.keys {
		for i := range k {
			k[i] = 0
		}
		delete(c.keys, uri)
	}
}

// Decrypt performs AES-128-CBC decryption followed by PKCS#7 unpadding.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, &BadKeyLengthError{Got: len(key)}
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("decrypt: bad iv length: got %d, want %d", len(iv), aes.BlockSize)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, &BadPaddingError{}
	}
	if len(ciphertext) == 0 {
		return ciphertext, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &BadPaddingError{}
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, &BadPaddingError{}
	}
	for i := 0; i < padLen; i++ {
		if data[len(data)-1-i] != byte(padLen) {
			return nil, &BadPaddingError{}
		}
	}
	return data[:len(data)-padLen], nil
}
