package mockkeys

import (
	"calimport/internal/keys"

	"github.com/stretchr/testify/mock"
)

type KeyProvider struct {
	mock.Mock
}

func (m *KeyProvider) CreationKeys(addressKeys []keys.AddressKey, calendarKeys []keys.CalendarKey) (*keys.CreationKeys, error) {
	args := m.Called(addressKeys, calendarKeys)
	k, _ := args.Get(0).(*keys.CreationKeys)
	return k, args.Error(1)
}
