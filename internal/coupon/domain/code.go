package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const defaultCodeLength = 12

// GenerateCode produces a random uppercase alphanumeric code of exactly
// length characters. Codes are not unique by construction; the store's
// unique constraint is the arbiter.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = defaultCodeLength
	}

	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(buf)[:length]), nil
}
