// Package id generates identifiers: prefixed NanoIDs for documents and
// sessions, and monotonic ULID stamps for ordering local cache writes.
package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// Document ID prefixes.
const (
	PrefixTool        = "tool"
	PrefixAssociation = "assoc"
	PrefixAccount     = "acct"
	PrefixSession     = "sess"
	PrefixDocument    = "doc"
)

// Generate creates a prefixed NanoID, e.g. "tool-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

var (
	stampMu      sync.Mutex
	stampEntropy = ulid.Monotonic(rand.Reader, 0)
)

// Stamp returns a ULID that sorts after every stamp previously returned by
// this process.
func Stamp() ulid.ULID {
	return StampAt(time.Now())
}

// StampAt returns a monotonic ULID for t.
func StampAt(t time.Time) ulid.ULID {
	stampMu.Lock()
	defer stampMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), stampEntropy)
}
