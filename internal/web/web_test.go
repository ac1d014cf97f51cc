package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calimport/internal/api"
	"calimport/internal/cache"
	"calimport/internal/config"
	"calimport/internal/importer"
	"calimport/internal/recurrence"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *importer.Board, *cache.EventCache) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Import.CalendarID = "cal-1"
	if mutate != nil {
		mutate(cfg)
	}
	board := importer.NewBoard()
	events := cache.NewEventCache(0)
	srv := httptest.NewServer(NewServer(cfg, board, events).Handler())
	t.Cleanup(srv.Close)
	return srv, board, events
}

func get(t *testing.T, rawURL string, auth ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestBasicAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	})

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/health").StatusCode)

	resp := get(t, srv.URL+"/api/import")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/api/import", "admin", "wrong").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/import", "admin", "s3cret").StatusCode)
}

func TestImportStatus(t *testing.T) {
	srv, board, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/import").StatusCode)

	tr := board.Start("work", 2)
	tr.OnProgress(make([]importer.EncryptedEvent, 2), make([]importer.StoredEvent, 1), []*importer.ImportEventError{
		{Type: importer.ExternalError, UID: "b", Component: "vevent"},
	})
	tr.Finish(false)

	resp := get(t, srv.URL+"/api/import")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[importer.Snapshot](t, resp)
	assert.Equal(t, "work", snap.Source)
	assert.Equal(t, importer.StateDone, snap.State)
	assert.Equal(t, importer.Totals{TotalToImport: 2, TotalToProcess: 4, TotalImported: 1, TotalProcessed: 4}, snap.Totals)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "b", snap.Errors[0].UID)

	board.Start("home", 0)
	runs := decode[[]importer.Snapshot](t, get(t, srv.URL+"/api/import?all=1"))
	require.Len(t, runs, 2)
	assert.Equal(t, "home", runs[0].Source)
}

func TestEvents(t *testing.T) {
	srv, _, events := newTestServer(t, nil)

	events.Upsert(api.Event{ID: "e2", CalendarID: "cal-1", UID: "b", StartTime: 200, EndTime: 300})
	events.Upsert(api.Event{ID: "e1", CalendarID: "cal-1", UID: "a", StartTime: 100, EndTime: 200, FullDay: 1, RRule: "FREQ=DAILY"})
	events.Upsert(api.Event{ID: "e3", CalendarID: "cal-2", UID: "c", StartTime: 50})

	got := decode[[]eventDTO](t, get(t, srv.URL+"/api/events"))
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.True(t, got[0].AllDay)
	assert.Equal(t, "FREQ=DAILY", got[0].RRule)
	assert.Equal(t, time.Unix(200, 0).UTC(), got[1].Start)
}

func TestRecurrencePreview(t *testing.T) {
	srv, _, _ := newTestServer(t, func(c *config.Config) {
		c.Recurrence.DefaultFrequency = "MONTHLY"
	})

	q := url.Values{
		"rrule": {"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=5"},
		"start": {"2024-06-03T09:00:00"},
		"tz":    {"America/New_York"},
	}
	resp := get(t, srv.URL+"/api/recurrence?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[recurrenceResponse](t, resp)
	assert.Equal(t, recurrence.Custom, got.Model.Type)
	assert.Equal(t, recurrence.Weekly, got.Model.Frequency)
	assert.Equal(t, 2, got.Model.Interval)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, got.Model.Weekly.Days)
	assert.Equal(t, recurrence.EndAfterNTimes, got.Model.Ends.Type)
	assert.Equal(t, 5, got.Model.Ends.Count)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=5;BYDAY=MO,WE", got.RoundTrip)

	// No rule: the configured base frequency backs the editor.
	got = decode[recurrenceResponse](t, get(t, srv.URL+"/api/recurrence?start=2024-06-03"))
	assert.Equal(t, recurrence.Once, got.Model.Type)
	assert.Equal(t, recurrence.Monthly, got.Model.Frequency)
	assert.Empty(t, got.RoundTrip)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/recurrence").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/recurrence?start=soon").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/recurrence?start=2024-06-03&rrule=INTERVAL%3D2").StatusCode)
}

func TestTruncatePreview(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	truncate := func(rrule, start, from string) *http.Response {
		q := url.Values{"rrule": {rrule}, "start": {start}, "from": {from}}
		return get(t, srv.URL+"/api/recurrence/truncate?"+q.Encode())
	}

	resp := truncate("FREQ=DAILY;UNTIL=20240630", "2024-06-01", "2024-06-15")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[truncateResponse](t, resp)
	assert.Equal(t, 15, got.Occurrence)
	require.NotNil(t, got.RRule)
	assert.Equal(t, "FREQ=DAILY;UNTIL=20240614", *got.RRule)

	got = decode[truncateResponse](t, truncate("FREQ=DAILY;COUNT=5", "2024-06-01", "2024-06-01"))
	assert.Equal(t, 1, got.Occurrence)
	assert.Nil(t, got.RRule)

	got = decode[truncateResponse](t, truncate("FREQ=DAILY;COUNT=5", "2024-06-01", "2024-06-05"))
	require.NotNil(t, got.RRule)
	assert.Equal(t, "FREQ=DAILY;COUNT=4", *got.RRule)

	assert.Equal(t, http.StatusUnprocessableEntity, truncate("FREQ=DAILY;COUNT=5", "2024-06-01", "2024-06-10").StatusCode)
	assert.Equal(t, http.StatusBadRequest, truncate("FREQ=DAILY", "2024-06-01", "").StatusCode)
}

func TestParseStart(t *testing.T) {
	dt, err := parseStart("2024-06-03", "America/New_York")
	require.NoError(t, err)
	assert.True(t, dt.AllDay)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), dt.Time)

	dt, err = parseStart("2024-06-03T09:00:00", "Asia/Tokyo")
	require.NoError(t, err)
	assert.False(t, dt.AllDay)
	assert.Equal(t, "Asia/Tokyo", dt.TZID())
	assert.Equal(t, 9, dt.Time.Hour())

	dt, err = parseStart("2024-06-03T09:00:00Z", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 18, dt.Time.Hour())

	_, err = parseStart("", "")
	assert.ErrorIs(t, err, errMissingStart)
	_, err = parseStart("2024-06-03T09:00:00", "Mars/Olympus")
	assert.Error(t, err)
}
