package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowgrid/flowgrid/common/logger"
	"golang.org/x/crypto/scrypt"
)

// Token wire format: Base64( IV[12] || tag[16] || ciphertext ), AES-256-GCM.
const (
	ivSize  = 12
	tagSize = 16
	keySize = 32
)

// Fixed scrypt parameters for passphrase-derived keys
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

var scryptSalt = []byte("flowgrid-credential-salt")

// devPlaceholderKey is only ever used outside production, with a loud warning
const devPlaceholderKey = "flowgrid-dev-only-encryption-key"

var (
	// ErrAuthFailed indicates a GCM tag mismatch: the token was tampered
	// with or encrypted under a different key
	ErrAuthFailed = errors.New("crypto: authentication failed")

	// ErrMalformed indicates a token that is not valid base64 or is too
	// short to contain IV and tag
	ErrMalformed = errors.New("crypto: malformed token")
)

// Service provides authenticated symmetric encryption for credential blobs
type Service struct {
	key []byte
}

// New derives the process-wide encryption key from configuration. A
// 64-hex-character value is used as the raw 32-byte key; anything else
// is treated as a passphrase and run through scrypt. An empty value
// falls back to a constant development key; config validation rejects
// that in production before this point.
func New(encryptionKey string, log *logger.Logger) (*Service, error) {
	if encryptionKey == "" {
		log.Warn("ENCRYPTION_KEY not set, using development placeholder key; credentials are NOT secure")
		encryptionKey = devPlaceholderKey
	}

	key, err := deriveKey(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	return &Service{key: key}, nil
}

func deriveKey(material string) ([]byte, error) {
	if len(material) == keySize*2 {
		if raw, err := hex.DecodeString(material); err == nil {
			return raw, nil
		}
	}
	return scrypt.Key([]byte(material), scryptSalt, scryptN, scryptR, scryptP, keySize)
}

// Encrypt serializes value (strings pass through, everything else
// becomes canonical JSON) and returns an opaque token.
func (s *Service) Encrypt(value any) (string, error) {
	var plaintext []byte
	switch v := value.(type) {
	case string:
		plaintext = []byte(v)
	case []byte:
		plaintext = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("serialize plaintext: %w", err)
		}
		plaintext = encoded
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}

	// Seal appends the tag after the ciphertext; the wire format wants
	// IV || tag || ciphertext, so reorder.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	token := make([]byte, 0, ivSize+tagSize+len(ct))
	token = append(token, iv...)
	token = append(token, tag...)
	token = append(token, ct...)

	return base64.StdEncoding.EncodeToString(token), nil
}

// Decrypt reverses Encrypt. With asJSON true the plaintext is parsed as
// JSON; otherwise the raw string is returned.
func (s *Service) Decrypt(token string, asJSON bool) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if len(raw) < ivSize+tagSize {
		return nil, fmt.Errorf("%w: token too short", ErrMalformed)
	}

	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ct := raw[ivSize+tagSize:]

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	if !asJSON {
		return string(plaintext), nil
	}

	var value any
	if err := json.Unmarshal(plaintext, &value); err != nil {
		// Plaintext was stored as a raw string
		return string(plaintext), nil
	}
	return value, nil
}

// DecryptInto decrypts a token and unmarshals the JSON plaintext into out
func (s *Service) DecryptInto(token string, out any) error {
	raw, err := s.Decrypt(token, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw.(string)), out); err != nil {
		return fmt.Errorf("decode credential blob: %w", err)
	}
	return nil
}

// GenerateToken returns a 32-byte cryptographically random hex string,
// used for OAuth state
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
