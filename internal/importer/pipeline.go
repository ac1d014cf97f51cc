package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"calimport/internal/api"
	"calimport/internal/keys"
	appLog "calimport/internal/log"
	"calimport/internal/model"
)

const (
	// DefaultBatchSize keeps concurrent submissions well under the API limit
	// of 100 calls per 10 seconds.
	DefaultBatchSize = 10
	// DefaultMinBatchSpacing is the minimum time between the starts of two
	// encryption phases.
	DefaultMinBatchSpacing = 100 * time.Millisecond
)

var (
	// ErrRejected is wrapped by errors for events the server answered with
	// a non-success code.
	ErrRejected = errors.New("event rejected")
	// ErrMissingResponse is reported for a submitted event the server did
	// not answer.
	ErrMissingResponse = errors.New("no response for event")
)

// Encrypter turns an event into the payload sent to the server.
type Encrypter interface {
	Encrypt(ctx context.Context, c model.EventComponent, k *keys.CreationKeys) (keys.EventPayload, error)
}

// KeyProvider resolves the destination keys.
type KeyProvider interface {
	CreationKeys(addressKeys []keys.AddressKey, calendarKeys []keys.CalendarKey) (*keys.CreationKeys, error)
}

// Transport submits a batch of encrypted events.
type Transport interface {
	SyncMultipleEvents(ctx context.Context, calendarID, memberID string, events []api.SyncEvent) ([]api.SyncResponse, error)
}

// EncryptedEvent is an event together with its encrypted payload.
type EncryptedEvent struct {
	Component model.EventComponent
	Data      keys.EventPayload
}

// StoredEvent is an event the server accepted.
type StoredEvent struct {
	EncryptedEvent
	Response api.SyncResponse
}

// ProgressFunc receives what changed since the previous call. Calls are
// serialized.
type ProgressFunc func(encrypted []EncryptedEvent, imported []StoredEvent, errs []*ImportEventError)

// Request describes one import run.
type Request struct {
	Events       []model.EventComponent
	CalendarID   string
	MemberID     string
	AddressKeys  []keys.AddressKey
	CalendarKeys []keys.CalendarKey
}

// Processor encrypts and submits events in batches.
type Processor struct {
	encrypter Encrypter
	keys      KeyProvider
	transport Transport
	batchSize int
	spacing   time.Duration
	logger    *slog.Logger
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithBatchSize sets the number of events per batch.
func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMinBatchSpacing sets the minimum time between batch starts. Zero
// disables the throttle.
func WithMinBatchSpacing(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.spacing = d
		}
	}
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProcessor(enc Encrypter, kp KeyProvider, tr Transport, opts ...ProcessorOption) *Processor {
	p := &Processor{
		encrypter: enc,
		keys:      kp,
		transport: tr,
		batchSize: DefaultBatchSize,
		spacing:   DefaultMinBatchSpacing,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = appLog.Logger()
	}
	return p
}

// Run imports req.Events and returns the events the server stored.
//
// Batches are encrypted one after another; each batch's submission runs in
// the background while later batches are encrypted, and Run waits for all
// of them before returning. Per-event failures are reported through
// onProgress and never stop the run.
//
// Cancellation of ctx is checked before each batch is encrypted and again
// before it is submitted. Once seen, Run returns an empty slice at once and
// onProgress is not called again. Submissions already dispatched are not
// cancelled; they finish in the background and their results are dropped.
func (p *Processor) Run(ctx context.Context, req Request, onProgress ProgressFunc) []StoredEvent {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "calendar_id", req.CalendarID)

	var (
		progressMu sync.Mutex
		abandoned  bool

		resultsMu sync.Mutex
		stored    []StoredEvent

		submissions sync.WaitGroup
	)

	report := func(encrypted []EncryptedEvent, imported []StoredEvent, errs []*ImportEventError) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if abandoned || onProgress == nil {
			return
		}
		onProgress(encrypted, imported, errs)
	}
	abandon := func(batch int) []StoredEvent {
		progressMu.Lock()
		abandoned = true
		progressMu.Unlock()
		logger.Warn("import cancelled", "batch", batch)
		return []StoredEvent{}
	}

	batches := chunk(req.Events, p.batchSize)
	logger.Info("import started", "events", len(req.Events), "batches", len(batches))
	start := time.Now()

	// Submissions outlive a cancelled run.
	submitCtx := context.WithoutCancel(ctx)

	for i, batch := range batches {
		if ctx.Err() != nil {
			return abandon(i)
		}

		encrypted, errs := p.encryptBatch(ctx, req, batch)

		if ctx.Err() != nil {
			return abandon(i)
		}
		report(encrypted, nil, errs)
		logger.Debug("batch encrypted", "batch", i, "encrypted", len(encrypted), "failed", len(errs))

		if len(encrypted) == 0 {
			continue
		}

		submissions.Add(1)
		go func(i int, encrypted []EncryptedEvent) {
			defer submissions.Done()

			imported, failed := p.submit(submitCtx, req, encrypted)
			logger.Debug("batch submitted", "batch", i, "imported", len(imported), "failed", len(failed))

			resultsMu.Lock()
			stored = append(stored, imported...)
			resultsMu.Unlock()

			report(nil, imported, failed)
		}(i, encrypted)
	}

	submissions.Wait()

	resultsMu.Lock()
	defer resultsMu.Unlock()
	logger.Info("import finished", "imported", len(stored), "elapsed", time.Since(start))
	if stored == nil {
		return []StoredEvent{}
	}
	return stored
}

// encryptBatch encrypts every event of batch concurrently. The spacing
// timer runs alongside, so the batch takes at least p.spacing.
func (p *Processor) encryptBatch(ctx context.Context, req Request, batch []model.EventComponent) ([]EncryptedEvent, []*ImportEventError) {
	var timer *time.Timer
	if p.spacing > 0 {
		timer = time.NewTimer(p.spacing)
		defer timer.Stop()
	}

	results := make([]EncryptedEvent, len(batch))
	failures := make([]*ImportEventError, len(batch))

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := p.encryptOne(ctx, req, batch[i])
			if err != nil {
				failures[i] = newImportEventError(EncryptionError, batch[i].UID, err)
				return
			}
			results[i] = EncryptedEvent{Component: batch[i], Data: data}
		}(i)
	}
	wg.Wait()

	if timer != nil {
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	var encrypted []EncryptedEvent
	var errs []*ImportEventError
	for i := range batch {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		encrypted = append(encrypted, results[i])
	}
	return encrypted, errs
}

func (p *Processor) encryptOne(ctx context.Context, req Request, c model.EventComponent) (keys.EventPayload, error) {
	k, err := p.keys.CreationKeys(req.AddressKeys, req.CalendarKeys)
	if err != nil {
		return keys.EventPayload{}, fmt.Errorf("resolve keys: %w", err)
	}
	data, err := p.encrypter.Encrypt(ctx, c, k)
	if err != nil {
		return keys.EventPayload{}, err
	}
	return data, nil
}

// submit sends one batch. A failed call fails every event in it; otherwise
// each event is judged by its own response code.
func (p *Processor) submit(ctx context.Context, req Request, encrypted []EncryptedEvent) ([]StoredEvent, []*ImportEventError) {
	events := make([]api.SyncEvent, len(encrypted))
	for i, e := range encrypted {
		events[i] = api.NewImportEvent(e.Data)
	}

	resps, err := p.transport.SyncMultipleEvents(ctx, req.CalendarID, req.MemberID, events)
	if err != nil {
		p.logger.Error("submit batch failed", "err", err, "calendar_id", req.CalendarID, "events", len(events))
		errs := make([]*ImportEventError, len(encrypted))
		for i, e := range encrypted {
			errs[i] = newImportEventError(ExternalError, e.Component.UID, err)
		}
		return nil, errs
	}

	byIndex := make(map[int]api.SyncResponse, len(resps))
	for _, r := range resps {
		byIndex[r.Index] = r
	}

	var imported []StoredEvent
	var errs []*ImportEventError
	for i, e := range encrypted {
		r, ok := byIndex[i]
		switch {
		case !ok:
			errs = append(errs, newImportEventError(ExternalError, e.Component.UID, ErrMissingResponse))
		case r.Response.Code != api.CodeSingleSuccess:
			errs = append(errs, newImportEventError(ExternalError, e.Component.UID, rejection(r.Response)))
		default:
			imported = append(imported, StoredEvent{EncryptedEvent: e, Response: r})
		}
	}
	return imported, errs
}

func rejection(r api.EventResponse) error {
	if r.Error == "" {
		return fmt.Errorf("%w: code %d", ErrRejected, r.Code)
	}
	return fmt.Errorf("%w: code %d: %s", ErrRejected, r.Code, r.Error)
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
