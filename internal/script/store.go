package script

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

const pbkdf2Iterations = 100_000

// KDF selects the key derivation function a password-protected script
// is sealed under.
type KDF int

const (
	KDFNone KDF = iota
	KDFPBKDF2
	KDFScrypt
)

// deriveKey expands a password and per-record salt into a 256-bit AES
// key using the requested KDF, or returns masterKey unchanged for
// KDFNone.
func deriveKey(kdf KDF, password string, salt []byte, masterKey []byte) ([]byte, error) {
	switch kdf {
	case KDFNone:
		if len(masterKey) != 32 {
			return nil, fmt.Errorf("script store: master key must be 32 bytes, got %d", len(masterKey))
		}
		return masterKey, nil
	case KDFPBKDF2:
		return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New), nil
	case KDFScrypt:
		return scrypt.Key([]byte(password), salt, 1<<14, 8, 1, 32)
	default:
		return nil, fmt.Errorf("script store: unknown kdf %d", kdf)
	}
}

// Seal validates, checksums, and encrypts source, returning a
// ScriptRecord ready for persistence. Validation failure returns the
// violations joined into a SecurityViolation error; the caller never
// reaches the crypto step for an inadmissible script.
func Seal(name, source string, kdf KDF, password string, masterKey []byte) (*domain.ScriptRecord, error) {
	violations, err := Validate(source)
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "parsing script", err)
	}
	if len(violations) > 0 {
		return nil, errs.New(errs.KindSecurityViolation, violationSummary(violations), nil)
	}

	checksum := sha256.Sum256([]byte(source))

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.New(errs.KindIOFailure, "generating salt", err)
	}
	key, err := deriveKey(kdf, password, salt, masterKey)
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "deriving key", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "initializing cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "initializing GCM", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.New(errs.KindIOFailure, "generating nonce", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(source), nil)
	encoded := encodeSealed(kdf, salt, nonce, ciphertext)

	return &domain.ScriptRecord{
		Name:          name,
		EncryptedCode: encoded,
		Checksum:      checksum,
		Active:        true,
		Version:       1,
	}, nil
}

// Open decrypts a ScriptRecord and verifies its checksum, returning
// IntegrityError on any mismatch.
func Open(rec *domain.ScriptRecord, password string, masterKey []byte) (string, error) {
	kdf, salt, nonce, ciphertext, err := decodeSealed(rec.EncryptedCode)
	if err != nil {
		return "", errs.New(errs.KindIntegrityError, "malformed encrypted record", err)
	}

	key, err := deriveKey(kdf, password, salt, masterKey)
	if err != nil {
		return "", errs.New(errs.KindConfigInvalid, "deriving key", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errs.New(errs.KindIntegrityError, "initializing cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.New(errs.KindIntegrityError, "initializing GCM", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errs.New(errs.KindIntegrityError, "decryption failed", err)
	}

	actual := sha256.Sum256(plaintext)
	if subtle.ConstantTimeCompare(actual[:], rec.Checksum[:]) != 1 {
		return "", errs.New(errs.KindIntegrityError, "checksum mismatch", nil)
	}
	return string(plaintext), nil
}

// encodeSealed lays out kdf(1 byte) || salt(16) || nonce(12) || ciphertext.
func encodeSealed(kdf KDF, salt, nonce, ciphertext []byte) []byte {
	out := make([]byte, 0, 1+len(salt)+len(nonce)+len(ciphertext))
	out = append(out, byte(kdf))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out
}

func decodeSealed(data []byte) (kdf KDF, salt, nonce, ciphertext []byte, err error) {
	const saltLen = 16
	const nonceLen = 12
	if len(data) < 1+saltLen+nonceLen {
		return 0, nil, nil, nil, fmt.Errorf("script store: encrypted record too short")
	}
	kdf = KDF(data[0])
	salt = data[1 : 1+saltLen]
	nonce = data[1+saltLen : 1+saltLen+nonceLen]
	ciphertext = data[1+saltLen+nonceLen:]
	return kdf, salt, nonce, ciphertext, nil
}

func violationSummary(violations []Violation) string {
	msg := "script rejected by static validator:"
	for _, v := range violations {
		msg += " [" + v.String() + "]"
	}
	return msg
}
