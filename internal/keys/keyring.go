package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"gopkg.in/yaml.v3"
)

// Keyring is the key material of one member and one calendar.
type Keyring struct {
	AddressKeys  []AddressKey
	CalendarKeys []CalendarKey
}

type keyringFile struct {
	AddressKeys  []keyEntry `yaml:"address_keys"`
	CalendarKeys []keyEntry `yaml:"calendar_keys"`
}

type keyEntry struct {
	ID      string `yaml:"id"`
	Primary bool   `yaml:"primary,omitempty"`
	// Key is standard base64.
	Key string `yaml:"key"`
}

// LoadKeyring reads a YAML keyring with base64 encoded keys.
func LoadKeyring(path string) (*Keyring, error) {
	if path == "" {
		return nil, errors.New("keyring path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f keyringFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keyring %s: %w", path, err)
	}

	kr := &Keyring{}
	for _, e := range f.AddressKeys {
		b, err := base64.StdEncoding.DecodeString(e.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: address key %q: %v", ErrInvalidKey, e.ID, err)
		}
		kr.AddressKeys = append(kr.AddressKeys, AddressKey{ID: e.ID, Primary: e.Primary, PrivateKey: b})
	}
	for _, e := range f.CalendarKeys {
		b, err := base64.StdEncoding.DecodeString(e.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: calendar key %q: %v", ErrInvalidKey, e.ID, err)
		}
		kr.CalendarKeys = append(kr.CalendarKeys, CalendarKey{ID: e.ID, Primary: e.Primary, Key: b})
	}
	return kr, nil
}

// Save writes the keyring with 0600 permissions.
func (kr *Keyring) Save(path string) error {
	var f keyringFile
	for _, k := range kr.AddressKeys {
		f.AddressKeys = append(f.AddressKeys, keyEntry{ID: k.ID, Primary: k.Primary, Key: base64.StdEncoding.EncodeToString(k.PrivateKey)})
	}
	for _, k := range kr.CalendarKeys {
		f.CalendarKeys = append(f.CalendarKeys, keyEntry{ID: k.ID, Primary: k.Primary, Key: base64.StdEncoding.EncodeToString(k.Key)})
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// GenerateKeyring creates a keyring with one primary address key and one
// primary calendar key. r defaults to crypto/rand.
func GenerateKeyring(r io.Reader) (*Keyring, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	calKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, calKey); err != nil {
		return nil, err
	}
	return &Keyring{
		AddressKeys:  []AddressKey{{ID: uuid.NewString(), Primary: true, PrivateKey: seed}},
		CalendarKeys: []CalendarKey{{ID: uuid.NewString(), Primary: true, Key: calKey}},
	}, nil
}
