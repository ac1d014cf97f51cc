package main

import (
	"context"
	"errors"

	"calimport/internal/cache"
	"calimport/internal/config"
	"calimport/internal/ics"
	"calimport/internal/importer"
	"calimport/internal/keys"
	appLog "calimport/internal/log"
)

// runner wires fetching, parsing and the import pipeline together.
type runner struct {
	conf      *config.Config
	keyring   *keys.Keyring
	fetcher   *ics.Fetcher
	processor *importer.Processor
	board     *importer.Board
	events    *cache.EventCache
}

// importAll imports every source one after another and returns the number
// of stored events, or -1 if nothing could be imported at all.
func (r *runner) importAll(ctx context.Context, sources []ics.Source) int {
	if len(sources) == 0 {
		appLog.Warn("no ICS sources configured")
		return 0
	}

	results, fetchErrs := r.fetcher.FetchAll(ctx, sources)
	if len(fetchErrs) > 0 {
		appLog.Error("one or more ICS fetches failed", errors.Join(fetchErrs...), "error_count", len(fetchErrs))
	}
	if len(results) == 0 {
		return -1
	}

	total := 0
	for _, res := range results {
		if ctx.Err() != nil {
			break
		}
		total += r.importSource(ctx, res)
	}
	return total
}

func (r *runner) importSource(ctx context.Context, res ics.FetchResult) int {
	parsed, err := ics.ParseICS(res.Source, res.Body)
	if err != nil {
		appLog.Error("parse failed for source", err, "id", res.Source.ID)
		return 0
	}

	tracker := r.board.Start(res.Source.ID, len(parsed.Events))
	tracker.SetSkipped(len(parsed.Errors))

	stored := r.processor.Run(ctx, importer.Request{
		Events:       parsed.Events,
		CalendarID:   r.conf.Import.CalendarID,
		MemberID:     r.conf.Import.MemberID,
		AddressKeys:  r.keyring.AddressKeys,
		CalendarKeys: r.keyring.CalendarKeys,
	}, tracker.OnProgress)
	tracker.Finish(ctx.Err() != nil)

	cached := importer.UpsertImportedEvents(stored, r.events)

	for _, e := range tracker.Errors() {
		appLog.Warn("event not imported", "id", res.Source.ID, "type", e.Type, "uid", e.UID, "err", e.Err)
	}
	totals := tracker.Totals()
	appLog.Info("import completed",
		"id", res.Source.ID,
		"from_cache", res.FromCache,
		"to_import", totals.TotalToImport,
		"imported", totals.TotalImported,
		"processed", totals.TotalProcessed,
		"to_process", totals.TotalToProcess,
		"skipped", len(parsed.Errors),
		"cached", cached,
		"cancelled", ctx.Err() != nil,
	)
	return len(stored)
}
