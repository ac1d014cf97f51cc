package api

import "calimport/internal/keys"

const (
	// CodeSingleSuccess marks one accepted event in a sync response.
	CodeSingleSuccess = 1000
	// CodeMultiSuccess is the envelope code of a processed sync batch. It
	// does not mean every event in the batch was accepted.
	CodeMultiSuccess = 1001

	// PermissionsFull is the permission mask sent for imported events.
	PermissionsFull = 3
)

// SyncEvent is one entry of a sync request.
type SyncEvent struct {
	Overwrite int           `json:"Overwrite"`
	Event     SyncEventData `json:"Event"`
}

// SyncEventData is the encrypted event plus import flags.
type SyncEventData struct {
	Permissions int `json:"Permissions"`
	keys.EventPayload
}

// NewImportEvent wraps an encrypted payload the way imports send it.
func NewImportEvent(p keys.EventPayload) SyncEvent {
	return SyncEvent{
		Overwrite: 1,
		Event:     SyncEventData{Permissions: PermissionsFull, EventPayload: p},
	}
}

type syncRequest struct {
	MemberID string      `json:"MemberID"`
	IsImport int         `json:"IsImport"`
	Events   []SyncEvent `json:"Events"`
}

// Event is an event as stored by the server.
type Event struct {
	ID            string `json:"ID"`
	CalendarID    string `json:"CalendarID"`
	UID           string `json:"UID"`
	SharedEventID string `json:"SharedEventID,omitempty"`
	StartTime     int64  `json:"StartTime"`
	EndTime       int64  `json:"EndTime"`
	FullDay       int    `json:"FullDay"`
	RRule         string `json:"RRule,omitempty"`
	ModifyTime    int64  `json:"ModifyTime"`

	SharedKeyPacket    string           `json:"SharedKeyPacket,omitempty"`
	SharedEventContent []keys.EventPart `json:"SharedEventContent,omitempty"`
}

// EventResponse is the outcome of a single synced event.
type EventResponse struct {
	Code  int    `json:"Code"`
	Error string `json:"Error,omitempty"`
	Event *Event `json:"Event,omitempty"`
}

// SyncResponse ties an outcome to the request entry at Index.
type SyncResponse struct {
	Index    int           `json:"Index"`
	Response EventResponse `json:"Response"`
}

type syncEnvelope struct {
	Code      int            `json:"Code"`
	Error     string         `json:"Error,omitempty"`
	Responses []SyncResponse `json:"Responses"`
}
