package question

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lowercases text, trims it and collapses internal whitespace runs
// to a single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// TextHash returns the hex SHA-256 digest of the normalized text. Two
// questions with the same hash are exact duplicates.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
