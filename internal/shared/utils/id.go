package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"
)

// messageIDChars are the base36 digits used for the random suffix of a chunk
// assembly's messageId.
const messageIDChars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateID generates a random unique ID (32 hex characters).
func GenerateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return generateFallbackID()
	}
	return hex.EncodeToString(b)
}

// GenerateShortID generates a shorter random ID (8 hex characters).
func GenerateShortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return generateFallbackID()[:8]
	}
	return hex.EncodeToString(b)
}

// GenerateMessageID produces a chunk-assembly correlation id of the form
// "{ms-since-epoch}-{9 random base36 chars}", used to tie a run of FrameChunk
// frames back together on the receiving end.
func GenerateMessageID(nowMillis int64) string {
	suffix := make([]byte, 9)
	charsLen := big.NewInt(int64(len(messageIDChars)))

	for i := range suffix {
		num, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			suffix[i] = messageIDChars[i%len(messageIDChars)]
			continue
		}
		suffix[i] = messageIDChars[num.Int64()]
	}

	return strconv.FormatInt(nowMillis, 10) + "-" + string(suffix)
}

func generateFallbackID() string {
	// Simple fallback using timestamp
	return hex.EncodeToString([]byte(time.Now().String()))
}
