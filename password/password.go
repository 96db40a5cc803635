// Package password computes and verifies salted password hashes.
//
// Two algorithms are supported. Argon2id (OWASP baseline parameters) is
// the default for all new credentials; its PHC-encoded hash string
// carries its own salt and parameters. PBKDF2-SHA512 is the legacy
// scheme kept only so existing credentials keep verifying; the
// authentication service transparently re-hashes a legacy credential
// under Argon2id after the first successful login.
package password

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/secrets"
)

const (
	argonMemory  uint32 = 19 * 1024 // KiB
	argonTime    uint32 = 2
	argonThreads uint8  = 1
	argonSaltLen        = 16
	argonKeyLen  uint32 = 32

	pbkdf2Iterations = 10000
	pbkdf2SaltLen    = 16
	pbkdf2KeyLen     = 64

	argon2idPrefix = "$argon2id$"
)

// Credential is the output of hashing a password. Salt is set only for
// the legacy algorithm; Argon2id embeds it in Hash.
type Credential struct {
	Hash      string
	Algorithm atrium.PasswordAlgorithm
	Salt      string
}

// Hash derives an Argon2id credential for the given password.
func Hash(password string) (Credential, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("atrium/password: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	return Credential{Hash: encoded, Algorithm: atrium.AlgArgon2id}, nil
}

// HashLegacy derives a PBKDF2-SHA512 credential, returning hash and
// salt as separate hex strings. New callers should use Hash; this
// exists for backward-compatible credential creation.
func HashLegacy(password string) (Credential, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("atrium/password: generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return Credential{
		Hash:      hex.EncodeToString(key),
		Algorithm: atrium.AlgPBKDF2,
		Salt:      hex.EncodeToString(salt),
	}, nil
}

// Verify reports whether password matches the stored hash. When
// algorithm is empty it is auto-detected: Argon2id hashes carry the
// "$argon2id$" prefix, legacy hashes are plain hex and need the
// co-located salt. Malformed or missing inputs verify as false, never
// as an error.
func Verify(password, hash, salt string, algorithm atrium.PasswordAlgorithm) bool {
	if hash == "" {
		return false
	}

	if algorithm == "" {
		if strings.HasPrefix(hash, argon2idPrefix) {
			algorithm = atrium.AlgArgon2id
		} else {
			algorithm = atrium.AlgPBKDF2
		}
	}

	switch algorithm {
	case atrium.AlgArgon2id:
		return verifyArgon2id(password, hash)
	case atrium.AlgPBKDF2:
		return verifyPBKDF2(password, hash, salt)
	default:
		return false
	}
}

// NeedsUpgrade reports whether a credential under the given algorithm
// should be re-hashed with the current default.
func NeedsUpgrade(algorithm atrium.PasswordAlgorithm) bool {
	return algorithm == atrium.AlgPBKDF2
}

func verifyArgon2id(password, encoded string) bool {
	// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return secrets.Equal(string(got), string(want))
}

func verifyPBKDF2(password, hash, salt string) bool {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil || len(saltBytes) == 0 {
		return false
	}

	key := pbkdf2.Key([]byte(password), saltBytes, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return secrets.Equal(hex.EncodeToString(key), hash)
}
