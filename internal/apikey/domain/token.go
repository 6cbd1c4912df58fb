package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const tokenSecretBytes = 32

const tokenDigestLen = 48

// GenerateToken produces a fresh key token: 256 random bits mixed with the
// current nanosecond timestamp, hashed, truncated and prefixed. The token
// carries no embedded metadata; the record does.
func GenerateToken() (string, error) {
	secret := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}

	combined := append(secret, []byte(strconv.FormatInt(time.Now().UnixNano(), 10))...)
	sum := sha256.Sum256(combined)
	digest := hex.EncodeToString(sum[:])

	return KeyPrefix + digest[:tokenDigestLen], nil
}
