// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package poller runs the incremental ingestion loop for one mailbox:
// discover candidate messages over an overlap-widened time window, then
// fetch, normalize, classify, and persist each one. Failures are contained
// per message so one bad message never stalls the mailbox.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quotesnap/ingestion/internal/convert"
	"github.com/quotesnap/ingestion/internal/models"
	"github.com/quotesnap/ingestion/internal/normalize"
)

// MailClient discovers and fetches messages for a single mailbox.
// Implemented by gmail.Client.
type MailClient interface {
	ListCandidates(ctx context.Context, since time.Time) ([]string, error)
	Fetch(ctx context.Context, messageID string) (*models.RawMessage, error)
	FetchAttachment(ctx context.Context, h models.AttachmentHandle) ([]byte, error)
}

// Extractor classifies one canonical document.
type Extractor interface {
	Extract(ctx context.Context, doc string) (models.ExtractionResult, error)
}

// RecordStore persists extraction outcomes.
type RecordStore interface {
	Upsert(ctx context.Context, mailbox string, msg *models.RawMessage, result models.ExtractionResult) (int64, error)
}

// SeenFilter skips messages that were already fully processed.
type SeenFilter interface {
	Seen(ctx context.Context, mailbox, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, mailbox, messageID string) error
}

// ErrMessageGone marks a candidate that was deleted between discovery and
// fetch. The poll loop skips these; manual reprocessing surfaces them.
var ErrMessageGone = errors.New("message no longer exists")

// Summary counts the outcomes of one poll cycle.
type Summary struct {
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Poller ingests one mailbox on a fixed interval.
//
// It tracks an in-memory watermark: the start time of the last completed
// cycle. Each window reaches back to watermark minus the overlap margin, so
// consecutive windows always intersect and a message landing near a boundary
// is discovered by at least one cycle. Repeat discoveries are absorbed by the
// seen filter and, ultimately, the store's upsert.
type Poller struct {
	mailbox    string
	client     MailClient
	extractor  Extractor
	store      RecordStore
	filter     SeenFilter
	converters *convert.Registry

	interval time.Duration
	overlap  time.Duration
	lookback time.Duration

	// watermark is nil until the first successful cycle; the first window
	// reaches back by lookback instead.
	watermark *time.Time

	now func() time.Time
}

// New creates a poller for one mailbox. overlap should be at least one full
// interval so consecutive windows intersect; lookback bounds the first window
// after a cold start.
func New(mailbox string, client MailClient, extractor Extractor, store RecordStore, filter SeenFilter, converters *convert.Registry, interval, overlap, lookback time.Duration) *Poller {
	if converters == nil {
		converters = convert.NewRegistry()
	}
	return &Poller{
		mailbox:    mailbox,
		client:     client,
		extractor:  extractor,
		store:      store,
		filter:     filter,
		converters: converters,
		interval:   interval,
		overlap:    overlap,
		lookback:   lookback,
		now:        time.Now,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("mailbox poller starting",
		"mailbox", p.mailbox,
		"interval", p.interval,
		"overlap", p.overlap,
	)

	// Do an initial poll immediately
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mailbox poller stopping", "mailbox", p.mailbox)
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// windowStart computes where the current discovery window begins.
func (p *Poller) windowStart() time.Time {
	if p.watermark == nil {
		return p.now().Add(-p.lookback)
	}
	return p.watermark.Add(-p.overlap)
}

// poll runs one discovery cycle. The watermark only advances after every
// discovered message has been attempted; a discovery failure leaves it
// untouched so the next tick retries the same window.
func (p *Poller) poll(ctx context.Context) {
	cycleStart := p.now().UTC()
	since := p.windowStart()

	summary, err := p.RunOnce(ctx, since)
	if err != nil {
		slog.Error("poll cycle failed",
			"mailbox", p.mailbox,
			"since", since.Format(time.RFC3339),
			"error", err,
		)
		return
	}

	p.watermark = &cycleStart

	if summary.Discovered > 0 {
		slog.Info("poll cycle complete",
			"mailbox", p.mailbox,
			"discovered", summary.Discovered,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		)
	}
}

// RunOnce processes every candidate message received at or after since. It
// returns an error only when discovery itself fails; per-message failures are
// logged, counted, and skipped.
func (p *Poller) RunOnce(ctx context.Context, since time.Time) (Summary, error) {
	ids, err := p.client.ListCandidates(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("list candidates: %w", err)
	}

	summary := Summary{Discovered: len(ids)}
	for _, id := range ids {
		seen, err := p.filter.Seen(ctx, p.mailbox, id)
		if err != nil {
			// Treat a filter outage as unseen: a redundant extraction is
			// cheaper than a missed message, and the upsert stays idempotent.
			slog.Warn("seen check failed", "mailbox", p.mailbox, "message_id", id, "error", err)
		}
		if seen {
			summary.Skipped++
			continue
		}

		if err := p.processOne(ctx, id); err != nil {
			if errors.Is(err, ErrMessageGone) {
				summary.Skipped++
				continue
			}
			slog.Error("message processing failed",
				"mailbox", p.mailbox,
				"message_id", id,
				"error", err,
			)
			summary.Failed++
			continue
		}
		summary.Processed++
	}

	return summary, nil
}

// ProcessMessage ingests a single message unconditionally, bypassing the seen
// filter. Used for manual reprocessing; the upsert updates any existing
// record in place.
func (p *Poller) ProcessMessage(ctx context.Context, messageID string) error {
	return p.processOne(ctx, messageID)
}

// processOne runs the fetch → normalize → extract → persist pipeline for one
// message. The seen filter is updated last: if the upsert fails, the message
// stays unmarked and a later overlapping window retries it.
func (p *Poller) processOne(ctx context.Context, messageID string) error {
	msg, err := p.client.Fetch(ctx, messageID)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message %s: %w", messageID, ErrMessageGone)
	}

	doc := normalize.Document(ctx, msg, p.client, p.converters)

	result, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		// Model unreachable. No record is written; the unmarked message is
		// retried by a later window.
		return fmt.Errorf("extract: %w", err)
	}

	id, err := p.store.Upsert(ctx, p.mailbox, msg, result)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	if err := p.filter.MarkProcessed(ctx, p.mailbox, messageID); err != nil {
		// The record is already safe; worst case the message is re-extracted
		// once by the next overlapping window.
		slog.Warn("mark processed failed", "mailbox", p.mailbox, "message_id", messageID, "error", err)
	}

	slog.Debug("message processed",
		"mailbox", p.mailbox,
		"message_id", messageID,
		"record_id", id,
		"status", result.Status,
	)
	return nil
}
