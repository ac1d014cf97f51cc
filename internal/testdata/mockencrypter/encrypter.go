package mockencrypter

import (
	"context"

	"calimport/internal/keys"
	"calimport/internal/model"

	"github.com/stretchr/testify/mock"
)

type Encrypter struct {
	mock.Mock
}

// Encrypt returns the configured payload. A func(model.EventComponent)
// keys.EventPayload return value is called with the component.
func (m *Encrypter) Encrypt(ctx context.Context, c model.EventComponent, k *keys.CreationKeys) (keys.EventPayload, error) {
	args := m.Called(ctx, c, k)
	if fn, ok := args.Get(0).(func(model.EventComponent) keys.EventPayload); ok {
		return fn(c), args.Error(1)
	}
	p, _ := args.Get(0).(keys.EventPayload)
	return p, args.Error(1)
}
