// Package id generates compact, URL-safe entity identifiers.
//
// Identifiers are UUIDv4 bytes rendered as unpadded lowercase base32
// (26 characters). The base32 form sorts and copies better than the
// canonical dashed UUID form while keeping the same entropy.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new 26-character lowercase base32 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}
