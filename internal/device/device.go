// Package device manages the identity of this WallCue device.
// Every device has a persistent ULID generated on first start and stored in
// the data directory. Peer reconciliation attributes every envelope to the
// device that produced it, so the identity must survive restarts — two
// devices fighting over the same queue with swapping identities would make
// the staggered snapshot exchange meaningless.
package device

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const idFile = "device_id"

// ID is a ULID string that uniquely identifies a WallCue device.
// It is stable across restarts within the same data directory.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool { return id == "" }

// Device holds the persistent identity of this instance.
type Device struct {
	id      ID
	dataDir string
}

// New returns a Device whose ID is loaded from dataDir/device_id.
// If the file does not exist a new ULID is generated and written.
// If idOverride is "auto" or empty the file-based ID is used.
func New(dataDir string, idOverride string) (*Device, error) {
	if dataDir == "" {
		return nil, errors.New("device: dataDir must not be empty")
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("device: create data dir: %w", err)
	}

	// Explicit override takes precedence (useful in tests / container envs).
	if idOverride != "" && idOverride != "auto" {
		if err := validateULID(idOverride); err != nil {
			return nil, fmt.Errorf("device: invalid id override %q: %w", idOverride, err)
		}
		return &Device{id: ID(idOverride), dataDir: dataDir}, nil
	}

	id, err := loadOrGenerate(dataDir)
	if err != nil {
		return nil, err
	}
	return &Device{id: id, dataDir: dataDir}, nil
}

// ID returns the device's stable ULID string.
func (d *Device) ID() ID { return d.id }

// DataDir returns the root data directory for this device.
func (d *Device) DataDir() string { return d.dataDir }

// loadOrGenerate reads the device ID from disk, creating a new one if absent.
func loadOrGenerate(dataDir string) (ID, error) {
	path := filepath.Join(dataDir, idFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if err := validateULID(id); err != nil {
			return "", fmt.Errorf("device: persisted id %q is invalid: %w", id, err)
		}
		return ID(id), nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("device: read id file: %w", err)
	}

	id, err := generateULID()
	if err != nil {
		return "", fmt.Errorf("device: generate id: %w", err)
	}

	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o640); err != nil {
		return "", fmt.Errorf("device: persist id: %w", err)
	}

	return id, nil
}

// monoEntropy is a package-level monotone entropy source shared across all
// generateULID calls. A single shared source keeps ULIDs lexicographically
// ordered even when generated within the same millisecond, which in turn
// keeps the message queue's creation order stable across a restart.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// generateULID creates a new time-ordered ULID using the shared monotone
// entropy source. The mutex ensures monotonicity across concurrent calls.
func generateULID() (ID, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, monoEntropy)
	if err != nil {
		return "", err
	}
	return ID(id.String()), nil
}

// validateULID returns an error if s is not a well-formed ULID string.
func validateULID(s string) error {
	_, err := ulid.ParseStrict(s)
	return err
}

// NewID generates a fresh ULID. Used for message IDs — the ID is assigned
// once by the device that creates the message and is identical on every peer
// afterwards.
func NewID() (string, error) {
	id, err := generateULID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewID is like NewID but panics on error. Use only in tests or init code.
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(fmt.Sprintf("device.MustNewID: %v", err))
	}
	return id
}
