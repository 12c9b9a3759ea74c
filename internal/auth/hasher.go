// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const argon2idPrefix = "$argon2id$"

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. A mismatch is (false, nil);
	// an error means the stored hash itself is unusable.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether hash should be replaced on the next
	// successful login.
	NeedsUpgrade(hash string) bool
}

// Argon2idParams are the cost settings of an argon2id hash. Memory is in KiB.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams is 64 MiB, one pass and four lanes.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Validate rejects settings argon2 cannot run with.
func (p Argon2idParams) Validate() error {
	switch {
	case p.Iterations == 0:
		return oops.With("field", "iterations").Errorf("argon2id iterations must be positive")
	case p.Parallelism == 0:
		return oops.With("field", "parallelism").Errorf("argon2id parallelism must be positive")
	case p.Memory < 8*uint32(p.Parallelism):
		return oops.With("field", "memory").Errorf("argon2id memory must be at least 8 KiB per lane")
	case p.SaltLength < 8:
		return oops.With("field", "salt_length").Errorf("argon2id salt must be at least 8 bytes")
	case p.KeyLength < 16:
		return oops.With("field", "key_length").Errorf("argon2id key must be at least 16 bytes")
	}
	return nil
}

// weakerThan reports whether p costs less than target in any dimension.
func (p Argon2idParams) weakerThan(target Argon2idParams) bool {
	return p.Memory < target.Memory ||
		p.Iterations < target.Iterations ||
		p.Parallelism < target.Parallelism ||
		p.KeyLength < target.KeyLength
}

// Argon2idHasher hashes with argon2id in PHC string form. bcrypt hashes from
// imported accounts still verify, and NeedsUpgrade flags them together with
// argon2id hashes made under cheaper settings.
type Argon2idHasher struct {
	params Argon2idParams
}

// NewArgon2idHasher returns a hasher using DefaultArgon2idParams.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2idParams}
}

// NewArgon2idHasherWithParams returns a hasher using params.
func NewArgon2idHasherWithParams(params Argon2idParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the settings new hashes are made with.
func (h *Argon2idHasher) Params() Argon2idParams {
	return h.params
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return phcHash{params: h.params, salt: salt, key: key}.String(), nil
}

// Verify checks password against an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, hash string) (bool, error) {
	if isBcrypt(hash) {
		return verifyBcrypt(password, hash)
	}
	parsed, err := parsePHC(hash)
	if err != nil {
		return false, err
	}
	p := parsed.params
	key := argon2.IDKey([]byte(password), parsed.salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// NeedsUpgrade is true for bcrypt, for unparseable values and for argon2id
// hashes cheaper than the hasher's own settings.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	parsed, err := parsePHC(hash)
	if err != nil {
		return true
	}
	return parsed.params.weakerThan(h.params)
}

// phcHash is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phcHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phcHash) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version,
		p.params.Memory, p.params.Iterations, p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func parsePHC(encoded string) (phcHash, error) {
	malformed := oops.Code(CodeMalformedHash)

	rest, ok := strings.CutPrefix(encoded, argon2idPrefix)
	if !ok {
		algorithm, _, _ := strings.Cut(strings.TrimPrefix(encoded, "$"), "$")
		return phcHash{}, malformed.With("algorithm", algorithm).Errorf("unsupported hash algorithm")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return phcHash{}, malformed.Errorf("expected 4 fields after the algorithm, got %d", len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return phcHash{}, malformed.Wrapf(err, "version")
	}
	if version != argon2.Version {
		return phcHash{}, malformed.With("version", version).Errorf("unsupported argon2 version")
	}

	// Parallelism is scanned wide so an out-of-range value is reported
	// instead of wrapping.
	var memory, iterations, lanes uint32
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &memory, &iterations, &lanes); err != nil {
		return phcHash{}, malformed.Wrapf(err, "parameters")
	}
	if iterations == 0 {
		return phcHash{}, malformed.Errorf("iterations must be positive")
	}
	if lanes == 0 || lanes > 255 {
		return phcHash{}, malformed.With("parallelism", lanes).Errorf("parallelism out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil {
		return phcHash{}, malformed.Wrapf(err, "salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[3])
	if err != nil {
		return phcHash{}, malformed.Wrapf(err, "key")
	}
	if len(key) == 0 || len(key) > 1024 {
		return phcHash{}, malformed.With("key_length", len(key)).Errorf("key length out of range")
	}

	return phcHash{
		params: Argon2idParams{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: uint8(lanes),
			SaltLength:  uint32(len(salt)),
			KeyLength:   uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

func isBcrypt(hash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			return true
		}
	}
	return false
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code(CodeMalformedHash).With("algorithm", "bcrypt").Wrap(err)
	}
}
