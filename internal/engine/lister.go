package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

// listPage fetches one listing page, retrying transient failures. Every
// failed attempt counts as a listing error.
func (m *Mirror) listPage(ctx context.Context, s store.Store, pass event.Pass, prefix, token string) (store.Page, error) {
	maxTries := m.opts.maxRetries()
	var err error
	for try := 1; try <= maxTries; try++ {
		var page store.Page
		page, err = s.List(ctx, prefix, token)
		if err == nil {
			m.stats.Inc(stats.Listings)
			m.emit(event.Event{Type: event.ListingPage, Pass: pass, Key: prefix, Size: int64(len(page.Summaries))})
			return page, nil
		}
		m.stats.Inc(stats.ListingErrors)
		slog.Warn("listing failed", "pass", pass, "store", s.Bucket(), "prefix", prefix, "try", try, "error", err)
		if !retryable(err) || try == maxTries {
			break
		}
		select {
		case <-ctx.Done():
			return store.Page{}, ctx.Err()
		case <-time.After(m.opts.retryDelay()):
		}
	}
	m.emit(event.Event{Type: event.ListingFailed, Pass: pass, Key: prefix, Error: err})
	return store.Page{}, fmt.Errorf("list %s/%s: %w", s.Bucket(), prefix, err)
}

// copyPass streams the source listing and submits a CopyJob per key that
// passes the filter.
func (m *Mirror) copyPass(ctx context.Context, d *Dispatcher) error {
	m.emit(event.Event{Type: event.PassStarted, Pass: event.PassCopy})
	defer m.emit(event.Event{Type: event.PassComplete, Pass: event.PassCopy})

	token := ""
	for {
		page, err := m.listPage(ctx, m.src, event.PassCopy, m.opts.SourcePrefix, token)
		if err != nil {
			return err
		}
		for _, summary := range page.Summaries {
			m.stats.Inc(stats.ObjectsRead)
			rel := strings.TrimPrefix(summary.Key, m.opts.SourcePrefix)
			if rel == "" || strings.HasSuffix(summary.Key, "/") {
				continue // the prefix itself, or a directory marker
			}
			if !m.opts.matches(rel, summary) {
				continue
			}
			if err := d.Submit(ctx, m.NewCopyJob(summary)); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// deletePass streams the destination listing and submits a DeleteJob per
// key. Keys excluded by the filter are never deleted.
func (m *Mirror) deletePass(ctx context.Context, d *Dispatcher) error {
	m.emit(event.Event{Type: event.PassStarted, Pass: event.PassDelete})
	defer m.emit(event.Event{Type: event.PassComplete, Pass: event.PassDelete})

	token := ""
	for {
		page, err := m.listPage(ctx, m.dst, event.PassDelete, m.opts.DestPrefix, token)
		if err != nil {
			return err
		}
		for _, summary := range page.Summaries {
			rel := strings.TrimPrefix(summary.Key, m.opts.DestPrefix)
			if rel == "" || strings.HasSuffix(summary.Key, "/") {
				continue
			}
			if !m.opts.matchesKey(rel) {
				continue
			}
			if err := d.Submit(ctx, m.NewDeleteJob(summary)); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}
