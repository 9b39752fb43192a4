package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the on-disk layout of drop state. Increment it
// whenever stored keys or encodings change incompatibly.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records version in state.
func (m *Manager) SetStateVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and whether it was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion verifies the stored schema version matches StateVersion.
// A missing version is treated as a mismatch since genesis always writes it.
func EnsureStateVersion(m *Manager) error {
	version, ok, err := m.StateVersion()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no version recorded, binary expects %d", ErrStateVersionMismatch, StateVersion)
	}
	if version != StateVersion {
		return fmt.Errorf("%w: stored %d, binary expects %d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}
