package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"calimport/internal/ics"
	"calimport/internal/model"
)

// PartType tells the server how an event part is protected.
type PartType int

const (
	// PartSigned is cleartext with a detached signature.
	PartSigned PartType = 2
	// PartEncryptedAndSigned is sealed under the session key and signed.
	PartEncryptedAndSigned PartType = 3
)

var (
	ErrMissingKeys  = errors.New("keys: creation keys are nil")
	ErrBadSignature = errors.New("keys: signature verification failed")
	ErrPartNotFound = errors.New("keys: payload has no part of that type")
)

// EventPart is one protected serialization of an event. Data and Signature
// are base64.
type EventPart struct {
	Type      PartType `json:"Type"`
	Data      string   `json:"Data"`
	Signature string   `json:"Signature,omitempty"`
}

// EventPayload is the encrypted form of an event as the sync route expects
// it.
type EventPayload struct {
	AddressKeyID       string      `json:"AddressKeyID"`
	CalendarKeyID      string      `json:"CalendarKeyID"`
	SharedKeyPacket    string      `json:"SharedKeyPacket"`
	SharedEventContent []EventPart `json:"SharedEventContent"`
}

// Encrypter turns an event component into an encrypted payload.
type Encrypter interface {
	Encrypt(ctx context.Context, c model.EventComponent, keys *CreationKeys) (EventPayload, error)
}

// SealingEncrypter protects events with XChaCha20-Poly1305 and ed25519.
//
// Each event gets a fresh session key. The timing properties go out signed
// in cleartext so the server can index the event; the full event is sealed
// under the session key, and the session key is sealed under the calendar
// key.
type SealingEncrypter struct {
	// Rand is the entropy source, crypto/rand when nil.
	Rand io.Reader
}

func NewSealingEncrypter() *SealingEncrypter {
	return &SealingEncrypter{Rand: rand.Reader}
}

func (e *SealingEncrypter) Encrypt(ctx context.Context, c model.EventComponent, keys *CreationKeys) (EventPayload, error) {
	if err := ctx.Err(); err != nil {
		return EventPayload{}, err
	}
	if keys == nil {
		return EventPayload{}, ErrMissingKeys
	}

	full, err := ics.Serialize(c)
	if err != nil {
		return EventPayload{}, err
	}
	timing := c
	timing.Summary, timing.Description, timing.Location = "", "", ""
	signedOnly, err := ics.Serialize(timing)
	if err != nil {
		return EventPayload{}, err
	}

	sessionKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(e.entropy(), sessionKey); err != nil {
		return EventPayload{}, fmt.Errorf("keys: session key: %w", err)
	}
	keyPacket, err := e.seal(keys.CalendarKey, sessionKey, []byte(keys.CalendarKeyID))
	if err != nil {
		return EventPayload{}, err
	}
	sealed, err := e.seal(sessionKey, []byte(full), []byte(c.UID))
	if err != nil {
		return EventPayload{}, err
	}

	return EventPayload{
		AddressKeyID:    keys.AddressKeyID,
		CalendarKeyID:   keys.CalendarKeyID,
		SharedKeyPacket: b64(keyPacket),
		SharedEventContent: []EventPart{
			{
				Type:      PartSigned,
				Data:      b64([]byte(signedOnly)),
				Signature: b64(ed25519.Sign(keys.SigningKey, []byte(signedOnly))),
			},
			{
				Type:      PartEncryptedAndSigned,
				Data:      b64(sealed),
				Signature: b64(ed25519.Sign(keys.SigningKey, []byte(full))),
			},
		},
	}, nil
}

// Open recovers the full event serialization from a payload sealed for uid
// and checks its signature.
func Open(p EventPayload, uid string, keys *CreationKeys) (string, error) {
	if keys == nil {
		return "", ErrMissingKeys
	}
	part, ok := findPart(p.SharedEventContent, PartEncryptedAndSigned)
	if !ok {
		return "", ErrPartNotFound
	}

	keyPacket, err := unb64(p.SharedKeyPacket)
	if err != nil {
		return "", err
	}
	sessionKey, err := open(keys.CalendarKey, keyPacket, []byte(p.CalendarKeyID))
	if err != nil {
		return "", fmt.Errorf("keys: session key: %w", err)
	}
	sealed, err := unb64(part.Data)
	if err != nil {
		return "", err
	}
	plain, err := open(sessionKey, sealed, []byte(uid))
	if err != nil {
		return "", fmt.Errorf("keys: event content: %w", err)
	}
	sig, err := unb64(part.Signature)
	if err != nil {
		return "", err
	}
	if !ed25519.Verify(keys.VerifyKey(), plain, sig) {
		return "", ErrBadSignature
	}
	return string(plain), nil
}

func findPart(parts []EventPart, t PartType) (EventPart, bool) {
	for _, p := range parts {
		if p.Type == t {
			return p, true
		}
	}
	return EventPart{}, false
}

func (e *SealingEncrypter) entropy() io.Reader {
	if e.Rand == nil {
		return rand.Reader
	}
	return e.Rand
}

// seal returns nonce || ciphertext.
func (e *SealingEncrypter) seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(e.entropy(), nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

func open(key, box, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(box) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := box[:aead.NonceSize()], box[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, ad)
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
