package mocktransport

import (
	"context"

	"calimport/internal/api"

	"github.com/stretchr/testify/mock"
)

type Transport struct {
	mock.Mock
}

// SyncMultipleEvents returns the configured responses. A
// func([]api.SyncEvent) []api.SyncResponse return value is called with the
// submitted events.
func (m *Transport) SyncMultipleEvents(ctx context.Context, calendarID, memberID string, events []api.SyncEvent) ([]api.SyncResponse, error) {
	args := m.Called(ctx, calendarID, memberID, events)
	if fn, ok := args.Get(0).(func([]api.SyncEvent) []api.SyncResponse); ok {
		return fn(events), args.Error(1)
	}
	resps, _ := args.Get(0).([]api.SyncResponse)
	return resps, args.Error(1)
}
