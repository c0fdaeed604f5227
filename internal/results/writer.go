// Package results applies one fetch's outcome to durable state.
package results

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/metrics"
	"github.com/JakeFAU/reader-engine/internal/reader"
)

// Outcome carries everything the writer needs about one completed fetch.
type Outcome struct {
	Feed      reader.Feed
	FetchedAt time.Time
	Duration  time.Duration
	// Status is the HTTP status observed, or 0 for transport failures.
	Status int
	// Err is non-nil for error outcomes (network, HTTP >= 400, malformed).
	Err     error
	ErrKind reader.ErrorKind
	// Parsed is non-nil only for content outcomes.
	Parsed *reader.ParsedFeed
	// ETag / LastModified are the validators captured from the response.
	ETag         string
	LastModified string
	// Body is the raw response body, archived when parsing failed.
	Body  []byte
	Bytes int
}

// Config controls writer behavior.
type Config struct {
	DefaultInterval time.Duration
	BackoffMax      time.Duration
	EventChannel    string
	EnrichTimeout   time.Duration
	ArchivePrefix   string
}

// Writer persists fetch outcomes, computes the authoritative next run time,
// and notifies the event publisher.
type Writer struct {
	store     reader.FeedStore
	publisher reader.Publisher
	enricher  reader.Enricher
	archive   reader.BlobStore
	idGen     reader.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Writer. publisher, enricher, and archive may be nil.
func New(
	store reader.FeedStore,
	publisher reader.Publisher,
	enricher reader.Enricher,
	archive reader.BlobStore,
	idGen reader.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Writer {
	if cfg.EventChannel == "" {
		cfg.EventChannel = "rss:events"
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 10 * time.Second
	}
	return &Writer{
		store:     store,
		publisher: publisher,
		enricher:  enricher,
		archive:   archive,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// Apply persists one outcome. The store applies the feed update, item
// inserts, and log append as a single unit; a store failure here is
// surfaced to the caller after logging, never silently dropped.
func (w *Writer) Apply(ctx context.Context, oc Outcome) error {
	switch {
	case oc.Err != nil:
		return w.applyError(ctx, oc)
	case oc.Status == 304:
		return w.applyNotModified(ctx, oc)
	default:
		return w.applyContent(ctx, oc)
	}
}

func (w *Writer) applyContent(ctx context.Context, oc Outcome) error {
	feed := oc.Feed
	interval := feed.Interval(w.cfg.DefaultInterval)

	newItems, err := w.newCandidates(ctx, feed, oc.Parsed.Items)
	if err != nil {
		return err
	}
	w.enrich(ctx, newItems)

	update := reader.FeedUpdate{
		FeedID:              feed.ID,
		FetchedAt:           oc.FetchedAt,
		Status:              oc.Status,
		ETag:                oc.ETag,
		LastModified:        oc.LastModified,
		NextRunAt:           oc.FetchedAt.Add(interval),
		ConsecutiveFailures: 0,
		Items:               newItems,
		Log: w.logEntry(feed.ID, oc, reader.OutcomeSuccess, len(newItems), ""),
	}
	// Auto-populate the title from feed metadata until the user sets one.
	if feed.Title == "" && oc.Parsed.Title != "" {
		update.Title = oc.Parsed.Title
	}

	inserted, err := w.store.ApplyFetchResult(ctx, update)
	if err != nil {
		w.logger.Error("apply fetch result failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return fmt.Errorf("apply content result: %w", err)
	}

	metrics.ObserveFetch(string(reader.OutcomeSuccess), oc.Duration)
	metrics.AddItemsIngested(inserted)

	if inserted > 0 {
		w.publish(ctx, "new_items", oc.FetchedAt, map[string]any{
			"feed_id": feed.ID,
			"count":   inserted,
		})
	}
	w.publish(ctx, "fetch_status", oc.FetchedAt, map[string]any{
		"feed_id": feed.ID,
		"status":  "ok",
	})
	return nil
}

func (w *Writer) applyNotModified(ctx context.Context, oc Outcome) error {
	feed := oc.Feed
	interval := feed.Interval(w.cfg.DefaultInterval)

	update := reader.FeedUpdate{
		FeedID:              feed.ID,
		FetchedAt:           oc.FetchedAt,
		Status:              oc.Status,
		NextRunAt:           oc.FetchedAt.Add(interval),
		ConsecutiveFailures: 0,
		Log:                 w.logEntry(feed.ID, oc, reader.OutcomeNotModified, 0, ""),
	}
	if _, err := w.store.ApplyFetchResult(ctx, update); err != nil {
		w.logger.Error("apply not-modified result failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return fmt.Errorf("apply not-modified result: %w", err)
	}

	metrics.ObserveFetch(string(reader.OutcomeNotModified), oc.Duration)
	w.publish(ctx, "fetch_status", oc.FetchedAt, map[string]any{
		"feed_id": feed.ID,
		"status":  "ok",
	})
	return nil
}

func (w *Writer) applyError(ctx context.Context, oc Outcome) error {
	feed := oc.Feed
	interval := feed.Interval(w.cfg.DefaultInterval)
	failures := feed.ConsecutiveFailures + 1
	delay := backoffDelay(interval, failures, w.cfg.BackoffMax)
	errText := oc.Err.Error()

	if oc.ErrKind == reader.ErrorKindMalformed {
		w.archiveSnapshot(ctx, feed, oc)
	}

	update := reader.FeedUpdate{
		FeedID:              feed.ID,
		FetchedAt:           oc.FetchedAt,
		Status:              oc.Status,
		ErrorText:           errText,
		NextRunAt:           oc.FetchedAt.Add(delay),
		ConsecutiveFailures: failures,
		Log:                 w.logEntry(feed.ID, oc, reader.OutcomeError, 0, errText),
	}
	if _, err := w.store.ApplyFetchResult(ctx, update); err != nil {
		w.logger.Error("apply error result failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return fmt.Errorf("apply error result: %w", err)
	}

	metrics.ObserveFetch(string(reader.OutcomeError), oc.Duration)
	w.publish(ctx, "fetch_status", oc.FetchedAt, map[string]any{
		"feed_id": feed.ID,
		"status":  "error",
		"message": errText,
	})
	return nil
}

// newCandidates filters parsed entries down to GUIDs not yet stored for
// this feed. The insert itself still runs with conflict suppression, so a
// concurrent duplicate fetch cannot create duplicate rows.
func (w *Writer) newCandidates(ctx context.Context, feed reader.Feed, items []reader.ItemCandidate) ([]reader.ItemCandidate, error) {
	if len(items) == 0 {
		return nil, nil
	}
	guids := make([]string, 0, len(items))
	for _, item := range items {
		guids = append(guids, item.GUID)
	}
	newGUIDs, err := w.store.FilterNewGUIDs(ctx, feed.ID, guids)
	if err != nil {
		w.logger.Error("filter new guids failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return nil, fmt.Errorf("filter new guids: %w", err)
	}
	newSet := make(map[string]struct{}, len(newGUIDs))
	for _, guid := range newGUIDs {
		newSet[guid] = struct{}{}
	}
	out := make([]reader.ItemCandidate, 0, len(newGUIDs))
	for _, item := range items {
		if _, ok := newSet[item.GUID]; ok {
			out = append(out, item)
			delete(newSet, item.GUID)
		}
	}
	return out, nil
}

// enrich replaces entry-embedded content with extracted article content
// for items about to be persisted. Enrichment happens once, before first
// insert; failures leave the candidate unchanged.
func (w *Writer) enrich(ctx context.Context, items []reader.ItemCandidate) {
	if w.enricher == nil {
		return
	}
	for i := range items {
		if items[i].URL == "" {
			continue
		}
		extractCtx, cancel := context.WithTimeout(ctx, w.cfg.EnrichTimeout)
		enrichment, err := w.enricher.Extract(extractCtx, items[i].URL)
		cancel()
		if err != nil {
			w.logger.Debug("enrichment skipped",
				zap.String("url", items[i].URL), zap.Error(err))
			continue
		}
		if enrichment.HTML != "" {
			items[i].ContentHTML = enrichment.HTML
		}
		if enrichment.Text != "" {
			items[i].ContentText = enrichment.Text
		}
	}
}

// archiveSnapshot stores the raw body of an unparseable response so the
// failure can be reproduced offline.
func (w *Writer) archiveSnapshot(ctx context.Context, feed reader.Feed, oc Outcome) {
	if w.archive == nil || len(oc.Body) == 0 {
		return
	}
	prefix := w.cfg.ArchivePrefix
	if prefix == "" {
		prefix = "snapshots"
	}
	path := fmt.Sprintf("%s/%s/%d.xml", prefix, feed.ID, oc.FetchedAt.Unix())
	uri, err := w.archive.PutObject(ctx, path, "application/xml", oc.Body)
	if err != nil {
		w.logger.Warn("archive snapshot failed",
			zap.String("feed_id", feed.ID), zap.Error(err))
		return
	}
	w.logger.Info("archived unparseable feed body",
		zap.String("feed_id", feed.ID), zap.String("uri", uri))
}

func (w *Writer) logEntry(feedID string, oc Outcome, outcome reader.FetchOutcome, itemCount int, errText string) reader.FetchLogEntry {
	id, err := w.idGen.NewID()
	if err != nil {
		w.logger.Warn("generate log id failed", zap.Error(err))
	}
	return reader.FetchLogEntry{
		ID:         id,
		FeedID:     feedID,
		FetchedAt:  oc.FetchedAt,
		Outcome:    outcome,
		StatusCode: oc.Status,
		DurationMs: oc.Duration.Milliseconds(),
		Bytes:      oc.Bytes,
		ItemCount:  itemCount,
		Error:      errText,
	}
}

// publish is fire-and-forget: a dropped notification degrades live UI
// updates but never corrupts state.
func (w *Writer) publish(ctx context.Context, eventType string, at time.Time, data map[string]any) {
	if w.publisher == nil {
		return
	}
	payload := map[string]any{
		"type":      eventType,
		"timestamp": at.Format(time.RFC3339),
		"data":      data,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.EventChannel, payload); err != nil {
		w.logger.Warn("publish event failed",
			zap.String("type", eventType), zap.Error(err))
	}
}
