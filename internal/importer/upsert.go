package importer

import "calimport/internal/api"

// EventCache is the local store of events the server accepted.
type EventCache interface {
	Upsert(ev api.Event)
}

// UpsertImportedEvents writes every stored event that came back with a
// success code and a full event into c. Other entries are skipped. It
// returns the number of upserted events.
func UpsertImportedEvents(events []StoredEvent, c EventCache) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, e := range events {
		resp := e.Response.Response
		if resp.Event == nil || resp.Code != api.CodeSingleSuccess {
			continue
		}
		c.Upsert(*resp.Event)
		n++
	}
	return n
}
