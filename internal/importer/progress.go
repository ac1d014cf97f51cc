package importer

import (
	"sync"
	"time"
)

// Totals summarizes how far an import got. Encryption and submission
// weigh the same, so TotalToProcess is twice the number of events.
type Totals struct {
	TotalToImport  int `json:"totalToImport"`
	TotalToProcess int `json:"totalToProcess"`
	TotalImported  int `json:"totalImported"`
	TotalProcessed int `json:"totalProcessed"`
}

// ComputeProgress aggregates the counts of a run.
func ComputeProgress(parsed, encrypted, imported, errs int) Totals {
	return Totals{
		TotalToImport:  parsed,
		TotalToProcess: 2 * parsed,
		TotalImported:  imported,
		TotalProcessed: encrypted + imported + errs,
	}
}

// State is the lifecycle of a tracked run.
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// ErrorSummary is the JSON form of an ImportEventError.
type ErrorSummary struct {
	Type    ErrorType `json:"type"`
	UID     string    `json:"uid"`
	Message string    `json:"message"`
}

// Snapshot is a consistent view of a run.
type Snapshot struct {
	Source     string         `json:"source,omitempty"`
	State      State          `json:"state"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Encrypted  int            `json:"encrypted"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped,omitempty"`
	Totals     Totals         `json:"totals"`
	Errors     []ErrorSummary `json:"errors,omitempty"`
}

// Tracker accumulates progress reports of one run. Its OnProgress method is
// a ProgressFunc.
type Tracker struct {
	mu        sync.Mutex
	source    string
	parsed    int
	encrypted int
	imported  int
	skipped   int
	errs      []*ImportEventError
	state     State
	started   time.Time
	finished  time.Time
}

// NewTracker starts tracking a run of parsed events from source.
func NewTracker(source string, parsed int) *Tracker {
	return &Tracker{source: source, parsed: parsed, state: StateRunning, started: time.Now()}
}

func (t *Tracker) OnProgress(encrypted []EncryptedEvent, imported []StoredEvent, errs []*ImportEventError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.encrypted += len(encrypted)
	t.imported += len(imported)
	t.errs = append(t.errs, errs...)
}

// SetSkipped records events dropped before the pipeline, such as VEVENTs
// that could not be parsed. They are not part of the totals.
func (t *Tracker) SetSkipped(n int) {
	t.mu.Lock()
	t.skipped = n
	t.mu.Unlock()
}

// Finish marks the run as over.
func (t *Tracker) Finish(cancelled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return
	}
	t.state = StateDone
	if cancelled {
		t.state = StateCancelled
	}
	t.finished = time.Now()
}

// Totals returns the progress so far.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ComputeProgress(t.parsed, t.encrypted, t.imported, len(t.errs))
}

// Errors returns the failures recorded so far.
func (t *Tracker) Errors() []*ImportEventError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*ImportEventError(nil), t.errs...)
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Source:    t.source,
		State:     t.state,
		StartedAt: t.started,
		Encrypted: t.encrypted,
		Failed:    len(t.errs),
		Skipped:   t.skipped,
		Totals:    ComputeProgress(t.parsed, t.encrypted, t.imported, len(t.errs)),
	}
	if !t.finished.IsZero() {
		f := t.finished
		s.FinishedAt = &f
	}
	for _, e := range t.errs {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		s.Errors = append(s.Errors, ErrorSummary{Type: e.Type, UID: e.UID, Message: msg})
	}
	return s
}

// Board remembers the most recent run of each source.
type Board struct {
	mu     sync.RWMutex
	latest *Tracker
	runs   map[string]*Tracker
}

func NewBoard() *Board {
	return &Board{runs: make(map[string]*Tracker)}
}

// Start registers a new run and returns its tracker.
func (b *Board) Start(source string, parsed int) *Tracker {
	t := NewTracker(source, parsed)
	b.mu.Lock()
	b.latest = t
	b.runs[source] = t
	b.mu.Unlock()
	return t
}

// Latest returns the snapshot of the most recently started run.
func (b *Board) Latest() (Snapshot, bool) {
	b.mu.RLock()
	t := b.latest
	b.mu.RUnlock()
	if t == nil {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// All returns the latest snapshot of every source.
func (b *Board) All() []Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Snapshot, 0, len(b.runs))
	for _, t := range b.runs {
		out = append(out, t.Snapshot())
	}
	return out
}
