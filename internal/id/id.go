// Package id generates and checks the prefixed entity identifiers used for
// listings, transactions, chats, messages and notifications.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Entity prefixes.
const (
	Listing      = "lst"
	Transaction  = "txn"
	Chat         = "chat"
	Message      = "msg"
	Notification = "ntf"
)

const nanoLen = 21

// Generate creates a prefixed unique ID, e.g. "lst-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Valid reports whether s looks like an ID produced by Generate(prefix).
func Valid(prefix, s string) bool {
	if !strings.HasPrefix(s, prefix+"-") {
		return false
	}
	body := s[len(prefix)+1:]
	if len(body) != nanoLen {
		return false
	}
	for _, r := range body {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
