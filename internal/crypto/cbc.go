package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	ivRandLen = 8 // hex-encoded into a 16-byte ASCII IV
	hkdfInfo  = "riffid subject cipher"
)

var (
	errCiphertext = errors.New("ciphertext too short or not block aligned")
	errPadding    = errors.New("invalid padding")
)

// DeriveKey returns the AES key for secret: the raw bytes when they form a valid
// AES key length, otherwise a 32-byte HKDF-SHA256 expansion of the secret.
func DeriveKey(secret string) ([]byte, error) {
	raw := []byte(secret)
	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptCBC encrypts plaintext with AES/CBC/PKCS#5 and returns base64(iv || ciphertext).
// The IV is the hex form of 8 random bytes.
func EncryptCBC(key []byte, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	rnd, err := RandBytes(ivRandLen)
	if err != nil {
		return "", err
	}
	iv := []byte(hex.EncodeToString(rnd))

	padded := pkcs5Pad(plaintext, block.BlockSize())
	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(iv):], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptCBC reverses EncryptCBC.
func DecryptCBC(key []byte, encoded string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(raw) < 2*bs || len(raw)%bs != 0 {
		return nil, errCiphertext
	}
	iv, body := raw[:bs], raw[bs:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return pkcs5Unpad(plain, bs)
}

func pkcs5Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
