package nipc

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randString(n int) string {
	b := make([]byte, n)
	for i := range b {
		// nolint: gosec
		b[i] = letterBytes[rand.Int63()%int64(len(letterBytes))]
	}
	return string(b)
}

// GenerateNodeID returns a process-unique node id of the form "node_1a2b3c4d".
// Used when no explicit id is configured.
func GenerateNodeID() string {
	id := uuid.New()
	return fmt.Sprintf("node_%x", id[:4])
}

var nameRx = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidNodeID reports whether s can be used as a node id or method name:
// one or more alphanumeric, underscore or hyphen characters.
func ValidNodeID(s string) bool {
	return nameRx.MatchString(s)
}

// ValidChannel reports whether s can be used as a broadcast channel name.
// Channels may be hierarchical, with dot separated tokens.
func ValidChannel(s string) bool {
	if s == "" {
		return false
	}
	for _, tok := range strings.Split(s, ".") {
		if !nameRx.MatchString(tok) {
			return false
		}
	}
	return true
}
