// Package hsm holds the simulator state: the master key and the key directory,
// published together as an immutable snapshot.
package hsm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

var (
	ErrInvalidMasterKey = errors.New("master key must be 16, 32 or 48 hex characters")
	ErrUnknownKey       = errors.New("no such key in directory")
	ErrKeyUsage         = errors.New("key usage not permitted for this field")
	ErrDirectoryEntry   = errors.New("invalid key directory entry")
)

// Snapshot is the immutable state a command runs against.
type Snapshot struct {
	MasterKey []byte
	Keys      map[string]*akb.KeyBlock
}

// KeyInfo describes a directory entry without exposing key material.
type KeyInfo struct {
	Name        string `json:"name"`
	Header      string `json:"header"`
	CheckDigits string `json:"check_digits"`
}

// HSM publishes the current snapshot. Rotation swaps the whole snapshot so
// every command sees one consistent master key and directory.
type HSM struct {
	snap atomic.Pointer[Snapshot]
}

// ParseMasterKey decodes a 16, 32 or 48 hex character master key.
func ParseMasterKey(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || !cryptoutils.ValidKeyLength(len(key)) {
		return nil, ErrInvalidMasterKey
	}

	return key, nil
}

// NewSnapshot verifies every directory entry under mk and returns the snapshot.
// A single bad entry fails the whole load.
func NewSnapshot(mk []byte, keys map[string]*akb.KeyBlock) (*Snapshot, error) {
	if !cryptoutils.ValidKeyLength(len(mk)) {
		return nil, ErrInvalidMasterKey
	}
	dir := make(map[string]*akb.KeyBlock, len(keys))
	for name, kb := range keys {
		if name == "" || strings.ContainsAny(name, ",#") {
			return nil, fmt.Errorf("%w: bad name %q", ErrDirectoryEntry, name)
		}
		if _, err := akb.Decode(kb, mk); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrDirectoryEntry, name, err)
		}
		dir[name] = kb
	}

	return &Snapshot{MasterKey: slices.Clone(mk), Keys: dir}, nil
}

// NewHSM builds an HSM from a hex master key and an optional directory.
func NewHSM(masterKeyHex string, keys map[string]*akb.KeyBlock) (*HSM, error) {
	mk, err := ParseMasterKey(masterKeyHex)
	if err != nil {
		return nil, err
	}
	h := &HSM{}
	if err := h.Rotate(mk, keys); err != nil {
		return nil, err
	}

	return h, nil
}

// Rotate validates the new master key and directory and atomically replaces
// the current snapshot. On error the previous snapshot stays in place.
func (h *HSM) Rotate(mk []byte, keys map[string]*akb.KeyBlock) error {
	snap, err := NewSnapshot(mk, keys)
	if err != nil {
		return err
	}
	h.snap.Store(snap)

	return nil
}

// Snapshot returns the current snapshot. Callers load it once per command.
func (h *HSM) Snapshot() *Snapshot {
	return h.snap.Load()
}

// MasterKeyCheckDigits returns the check digits of the master key.
func (s *Snapshot) MasterKeyCheckDigits() string {
	cd, err := cryptoutils.CheckDigits(s.MasterKey, akb.CheckDigitsLength)
	if err != nil {
		return ""
	}

	return cd
}

// ResolveKey accepts a flattened AKB or a directory name, enforces the key
// usage and returns the clear key together with its block.
func (s *Snapshot) ResolveKey(field string, usage byte) ([]byte, *akb.KeyBlock, error) {
	var kb *akb.KeyBlock
	if strings.Contains(field, ",") {
		parsed, err := akb.Parse(field)
		if err != nil {
			return nil, nil, err
		}
		kb = parsed
	} else {
		found, ok := s.Keys[field]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKey, field)
		}
		kb = found
	}

	if kb.Usage() != usage {
		return nil, nil, fmt.Errorf("%w: want %c, got %c", ErrKeyUsage, usage, kb.Usage())
	}
	key, err := akb.Decode(kb, s.MasterKey)
	if err != nil {
		return nil, nil, err
	}

	return key, kb, nil
}

// Directory lists the directory entries sorted by name.
func (s *Snapshot) Directory() []KeyInfo {
	names := slices.Sorted(maps.Keys(s.Keys))
	out := make([]KeyInfo, 0, len(names))
	for _, name := range names {
		kb := s.Keys[name]
		cd, err := kb.CheckDigits(s.MasterKey)
		if err != nil {
			cd = ""
		}
		out = append(out, KeyInfo{Name: name, Header: kb.Header, CheckDigits: cd})
	}

	return out
}
