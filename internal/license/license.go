// Package license implements the device-bound activation gate.
//
// Each installation owns a random machine id stored in license.toml under the
// state directory. A key is "<machine-id>.<hex hmac-sha256(secret, machine-id)>"
// and only unlocks the machine it was issued for.
package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"vmanga/internal/fileutil"
)

var (
	// ErrInvalidKey marks a malformed key or a bad signature.
	ErrInvalidKey = errors.New("invalid license key")
	// ErrMachineMismatch marks a key issued for another machine.
	ErrMachineMismatch = errors.New("license key belongs to another machine")
	// ErrNotActivated is returned by gated operations on an unlicensed machine.
	ErrNotActivated = errors.New("vmanga is not activated on this machine")
)

type state struct {
	MachineID   string    `toml:"machine_id"`
	Key         string    `toml:"key,omitempty"`
	ActivatedAt time.Time `toml:"activated_at"`
}

// Status summarises the activation state for display.
type Status struct {
	MachineID   string    `json:"machine_id"`
	Activated   bool      `json:"activated"`
	Required    bool      `json:"required"`
	ActivatedAt time.Time `json:"activated_at,omitzero"`
}

// Manager reads and writes the license file.
type Manager struct {
	path     string
	secret   []byte
	required bool

	mu    sync.Mutex
	state state
}

// Open loads the license file at path, creating it with a fresh machine id
// when absent.
func Open(path, secret string, required bool) (*Manager, error) {
	m := &Manager{path: path, secret: []byte(secret), required: required}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &m.state); err != nil {
			return nil, fmt.Errorf("parse license file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read license file: %w", err)
	}
	if strings.TrimSpace(m.state.MachineID) == "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create license directory: %w", err)
		}
		m.state = state{MachineID: uuid.NewString()}
		if err := m.save(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MachineID returns this installation's id.
func (m *Manager) MachineID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MachineID
}

// Required reports whether gated operations need an activation.
func (m *Manager) Required() bool { return m.required }

// Activate verifies key against this machine and stores it.
func (m *Manager) Activate(key string) error {
	key = strings.TrimSpace(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := verify(m.secret, m.state.MachineID, key); err != nil {
		return err
	}
	m.state.Key = key
	m.state.ActivatedAt = time.Now().UTC()
	return m.save()
}

// IsActivated re-verifies the stored key.
func (m *Manager) IsActivated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Key != "" && verify(m.secret, m.state.MachineID, m.state.Key) == nil
}

// Check returns ErrNotActivated when activation is required and missing.
func (m *Manager) Check() error {
	if m == nil || !m.required || m.IsActivated() {
		return nil
	}
	return ErrNotActivated
}

// Status reports the activation state.
func (m *Manager) Status() Status {
	activated := m.IsActivated()
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{MachineID: m.state.MachineID, Activated: activated, Required: m.required}
	if activated {
		st.ActivatedAt = m.state.ActivatedAt
	}
	return st
}

func (m *Manager) save() error {
	data, err := toml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("encode license file: %w", err)
	}
	if err := fileutil.WriteFileAtomic(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write license file: %w", err)
	}
	return nil
}

// Issue builds the key for machineID. It is used by the key generator and
// tests.
func Issue(secret, machineID string) string {
	return machineID + "." + sign([]byte(secret), machineID)
}

func verify(secret []byte, machineID, key string) error {
	id, sig, ok := strings.Cut(key, ".")
	if !ok || id == "" || sig == "" {
		return ErrInvalidKey
	}
	if !strings.EqualFold(id, machineID) {
		return ErrMachineMismatch
	}
	want := sign(secret, machineID)
	got := strings.ToLower(sig)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrInvalidKey
	}
	return nil
}

func sign(secret []byte, machineID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(machineID))
	return hex.EncodeToString(mac.Sum(nil))
}
