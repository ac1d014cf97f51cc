package keys

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrNoPrimaryAddressKey  = errors.New("keys: no primary address key")
	ErrNoPrimaryCalendarKey = errors.New("keys: no primary calendar key")
	ErrInvalidKey           = errors.New("keys: invalid key material")
)

// AddressKey is the signing key of the member's address. PrivateKey holds
// an ed25519 seed.
type AddressKey struct {
	ID         string
	Primary    bool
	PrivateKey []byte
}

// CalendarKey is a symmetric key of the destination calendar.
type CalendarKey struct {
	ID      string
	Primary bool
	Key     []byte
}

// CreationKeys are the resolved keys used to create events.
type CreationKeys struct {
	AddressKeyID  string
	SigningKey    ed25519.PrivateKey
	CalendarKeyID string
	CalendarKey   []byte
}

// VerifyKey returns the public half of the signing key.
func (k *CreationKeys) VerifyKey() ed25519.PublicKey {
	return k.SigningKey.Public().(ed25519.PublicKey)
}

// KeyProvider resolves raw address and calendar keys into creation keys.
type KeyProvider interface {
	CreationKeys(addressKeys []AddressKey, calendarKeys []CalendarKey) (*CreationKeys, error)
}

// PrimaryKeyProvider signs with the primary address key and encrypts to the
// primary calendar key.
type PrimaryKeyProvider struct{}

func (PrimaryKeyProvider) CreationKeys(addressKeys []AddressKey, calendarKeys []CalendarKey) (*CreationKeys, error) {
	addr, ok := primaryAddressKey(addressKeys)
	if !ok {
		return nil, ErrNoPrimaryAddressKey
	}
	if len(addr.PrivateKey) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: address key %q has %d bytes", ErrInvalidKey, addr.ID, len(addr.PrivateKey))
	}

	cal, ok := primaryCalendarKey(calendarKeys)
	if !ok {
		return nil, ErrNoPrimaryCalendarKey
	}
	if len(cal.Key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: calendar key %q has %d bytes", ErrInvalidKey, cal.ID, len(cal.Key))
	}

	return &CreationKeys{
		AddressKeyID:  addr.ID,
		SigningKey:    ed25519.NewKeyFromSeed(addr.PrivateKey),
		CalendarKeyID: cal.ID,
		CalendarKey:   append([]byte(nil), cal.Key...),
	}, nil
}

func primaryAddressKey(keys []AddressKey) (AddressKey, bool) {
	for _, k := range keys {
		if k.Primary {
			return k, true
		}
	}
	return AddressKey{}, false
}

func primaryCalendarKey(keys []CalendarKey) (CalendarKey, bool) {
	for _, k := range keys {
		if k.Primary {
			return k, true
		}
	}
	return CalendarKey{}, false
}
