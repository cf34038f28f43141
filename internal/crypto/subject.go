package crypto

import (
	"fmt"
	"strings"

	"github.com/and161185/riffid/internal/errs"
)

// SubjectPrefix marks an encrypted token subject: "enc." + base64(iv || ciphertext).
const SubjectPrefix = "enc."

// SubjectCipher encrypts compacted usernames into token subjects under the issuer secret.
// It is immutable and safe for concurrent use.
type SubjectCipher struct {
	key []byte
}

// NewSubjectCipher derives the AES key from the issuer secret.
func NewSubjectCipher(issuerSecret string) (*SubjectCipher, error) {
	if issuerSecret == "" {
		return nil, fmt.Errorf("subject cipher: empty issuer secret")
	}
	key, err := DeriveKey(issuerSecret)
	if err != nil {
		return nil, fmt.Errorf("subject cipher: %w", err)
	}
	return &SubjectCipher{key: key}, nil
}

// Encrypt returns "" for empty input, otherwise the prefixed ciphertext.
func (c *SubjectCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	enc, err := EncryptCBC(c.key, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypt subject: %w", err)
	}
	return SubjectPrefix + enc, nil
}

// Decrypt returns "" for empty input. A subject without the prefix is malformed;
// a prefixed subject that does not decrypt under the key is ErrDecryption.
func (c *SubjectCipher) Decrypt(subject string) (string, error) {
	if subject == "" {
		return "", nil
	}
	body, ok := strings.CutPrefix(subject, SubjectPrefix)
	if !ok {
		return "", fmt.Errorf("%w: subject is not encrypted", errs.ErrMalformed)
	}
	plain, err := DecryptCBC(c.key, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	return string(plain), nil
}
