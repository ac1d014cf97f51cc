package mockcache

import (
	"calimport/internal/api"

	"github.com/stretchr/testify/mock"
)

type EventCache struct {
	mock.Mock
}

func (m *EventCache) Upsert(ev api.Event) {
	m.Called(ev)
}
