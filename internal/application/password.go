package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPasswordHash         = errors.New("invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("incompatible password hash version")
)

// Argon2idParams tunes the cost of account password hashing.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams is used when accounts are registered through the CLI
// or the admin bootstrap.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

const argon2idPrefix = "argon2id"

// CreatePasswordHash returns an encoded hash of the form
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>.
func CreatePasswordHash(password string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return encodedHash{params: params, salt: salt, key: key}.String(), nil
}

// VerifyPassword matches password against an encoded hash. A mismatch yields
// ErrInvalidCredentials.
func VerifyPassword(hashedPassword, password string) error {
	decoded, err := decodeHash(hashedPassword)
	if err != nil {
		return err
	}
	p := decoded.params
	candidate := argon2.IDKey([]byte(password), decoded.salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	if subtle.ConstantTimeCompare(decoded.key, candidate) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

type encodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h encodedHash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix,
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func decodeHash(encoded string) (encodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2idPrefix {
		return encodedHash{}, ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return encodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	if version != argon2.Version {
		return encodedHash{}, ErrIncompatiblePasswordVersion
	}

	var h encodedHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return encodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return encodedHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidPasswordHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return encodedHash{}, fmt.Errorf("%w: key: %v", ErrInvalidPasswordHash, err)
	}
	if len(h.key) == 0 {
		return encodedHash{}, ErrInvalidPasswordHash
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	return h, nil
}
