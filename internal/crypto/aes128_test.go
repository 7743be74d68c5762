package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"
)

func encryptFixture(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	pad := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), pad...)
}

func TestDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xAA}, 16)
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext := encryptFixture(t, key, iv, plaintext)

	got, err := Decrypt(ciphertext, key, iv)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptBadKeyLength(t *testing.T) {
	_, err := Decrypt(make([]byte, 32), make([]byte, 8), make([]byte, 16))
	if _, ok := err.(*BadKeyLengthError); !ok {
		t.Fatalf("Decrypt() error = %v, want *BadKeyLengthError", err)
	}
}

func TestDecryptBadPadding(t *testing.T) {
	key := bytes.Repeat([]byte{0xAA}, 16)
	iv := make([]byte, 16)

	// Encrypt a raw 16-byte block whose last byte (255) can never be a
	// valid PKCS#7 pad length for a 16-byte block size. Decrypting it
	// recovers exactly this block (CBC is an exact inverse), so the
	// padding check deterministically fails.
	raw := bytes.Repeat([]byte{0x41}, 15)
	raw = append(raw, 0xFF)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ciphertext := make([]byte, 16)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, raw)

	_, err = Decrypt(ciphertext, key, iv)
	if _, ok := err.(*BadPaddingError); !ok {
		t.Fatalf("Decrypt() error = %v, want *BadPaddingError", err)
	}
}

func TestDecryptNonBlockSizeCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0xAA}, 16)
	iv := make([]byte, 16)

	_, err := Decrypt(make([]byte, 17), key, iv)
	if _, ok := err.(*BadPaddingError); !ok {
		t.Fatalf("Decrypt() error = %v, want *BadPaddingError", err)
	}
}
