package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// FormatVersion is incremented when the stored snapshot format changes.
// Entries written with another version are treated as missing.
const FormatVersion = 1

// KeySeparator separates the namespace from the snapshot key.
const KeySeparator = '\x00'

const capabilitiesNamespace = "caps"

// entry is the stored form of a capabilities snapshot.
type entry struct {
	Version  int
	StoredAt time.Time
	Caps     types.Capabilities
}

func (e *entry) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *entry) decode(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(e); err != nil {
		return err
	}
	if e.Version != FormatVersion {
		return fmt.Errorf("%w: format version %d", ErrNotFound, e.Version)
	}
	return nil
}

// MakeKey returns the storage key of a snapshot.
// Format: caps\x00<key>
func MakeKey(key string) []byte {
	return []byte(capabilitiesNamespace + string(KeySeparator) + key)
}

// ParseKey extracts the snapshot key from a storage key.
func ParseKey(raw []byte) (string, bool) {
	ns, key, ok := strings.Cut(string(raw), string(KeySeparator))
	if !ok || ns != capabilitiesNamespace {
		return "", false
	}
	return key, true
}

func keyPrefix() []byte {
	return MakeKey("")
}
