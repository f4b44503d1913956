// Package auth implements Banyan's identity & role store and the Basic-
// token authentication scheme spec.md §6 describes: Authorization header
// carries `Basic base64(token + ':')`.
//
// The Argon2id hashing/verification shape is grounded on the teacher
// pack's cklxx-elephant.ai JWTTokenManager (internal/auth/adapters/
// jwt_tokens.go), adapted from hashing a refresh token to hashing the
// single long-lived request token every Banyan user holds; Banyan has no
// session/refresh-token lifecycle so the JWT issuance half of that file
// becomes the optional dashboard session path (SPEC_FULL.md §2.4) instead.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// GenerateRequestToken returns a fresh random token suitable for a new
// user, base64url-encoded.
func GenerateRequestToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken encodes a plaintext token with Argon2id for at-rest storage.
func HashToken(token string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s", argonTime, argonMemory, argonThreads, b64Salt, b64Hash), nil
}

// VerifyToken reports whether token hashes to encodedHash, in constant time.
func VerifyToken(token, encodedHash string) (bool, error) {
	params, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(token), salt, params.time, params.memory, params.threads, uint32(len(hash)))
	if len(computed) != len(hash) {
		return false, nil
	}
	var diff byte
	for i := range computed {
		diff |= computed[i] ^ hash[i]
	}
	return diff == 0, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argonParams{}, nil, nil, fmt.Errorf("auth: invalid hash format")
	}
	var params argonParams
	var err error
	if params.time, err = parseUint32(parts[1]); err != nil {
		return argonParams{}, nil, nil, err
	}
	if params.memory, err = parseUint32(parts[2]); err != nil {
		return argonParams{}, nil, nil, err
	}
	threads, err := parseUint32(parts[3])
	if err != nil {
		return argonParams{}, nil, nil, err
	}
	if threads == 0 || threads > 255 {
		return argonParams{}, nil, nil, fmt.Errorf("auth: invalid thread count: must be between 1 and 255")
	}
	params.threads = uint8(threads)
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, err
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, err
	}
	return params, salt, hash, nil
}

func parseUint32(value string) (uint32, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// BasicAuthKey formats the base64(token + ':') value spec.md §6 requires
// callers to present in the Authorization header, and the value
// cmd/banyanctl prints back when a token is created.
func BasicAuthKey(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(token + ":"))
}

// ParseBasicAuthHeader extracts the token out of a raw
// "Basic base64(token:)" Authorization header value.
func ParseBasicAuthHeader(header string) (string, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("auth: missing Basic prefix")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", fmt.Errorf("auth: malformed base64 credentials: %w", err)
	}
	token, _, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", fmt.Errorf("auth: credentials missing ':' separator")
	}
	return token, nil
}
