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

// QuoteSnap — Historical Backfill Command
//
// Standalone CLI tool that ingests historical emails from configured Gmail
// mailboxes within a configurable lookback window. Intended for seeding data
// on new deployments; the seen filter and the store's upsert make it safe to
// re-run over a window the live poller already covered.
//
// Usage:
//
//	go run ./cmd/backfill/ [--mailbox <alias>] [--since 168h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/quotesnap/ingestion/internal/config"
	"github.com/quotesnap/ingestion/internal/convert"
	"github.com/quotesnap/ingestion/internal/dedup"
	"github.com/quotesnap/ingestion/internal/extract"
	"github.com/quotesnap/ingestion/internal/gmail"
	"github.com/quotesnap/ingestion/internal/poller"
	"github.com/quotesnap/ingestion/internal/store"
)

// googleEndpoint is the OAuth2 endpoint for Google accounts.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const gmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	mailboxFlag := flag.String("mailbox", "", "Mailbox alias to backfill (optional; empty = all configured mailboxes)")
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	slog.Info("starting historical backfill",
		"mailbox", *mailboxFlag,
		"since", sinceDuration,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Resolve mailboxes to backfill
	mailboxes := cfg.Mailboxes
	if *mailboxFlag != "" {
		mailboxes = nil
		for _, m := range cfg.Mailboxes {
			if m.Alias == *mailboxFlag {
				mailboxes = append(mailboxes, m)
				break
			}
		}
		if len(mailboxes) == 0 {
			slog.Error("mailbox not found in configuration", "alias", *mailboxFlag)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	filter := dedup.NewFilter(rdb)
	if err := filter.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Extraction Store ---
	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise extraction store", "error", err)
		os.Exit(1)
	}

	// --- Extraction Adapter ---
	adapter := extract.NewAdapter(nil, "", cfg.OpenAIAPIKey, cfg.OpenAIModel)

	converters := convert.NewRegistry()

	// --- Run Backfill ---
	since := time.Now().UTC().Add(-sinceDuration)
	start := time.Now()
	failedMailboxes := 0

	for _, m := range mailboxes {
		oc := &oauth2.Config{
			ClientID:     m.ClientID,
			ClientSecret: m.ClientSecret,
			Endpoint:     googleEndpoint,
			Scopes:       []string{gmailReadonlyScope},
		}
		ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: m.RefreshToken})
		httpClient := oauth2.NewClient(ctx, ts)

		client := gmail.NewClient(httpClient, "", m.Alias)
		p := poller.New(m.Alias, client, adapter, st, filter, converters,
			cfg.PollInterval, cfg.OverlapMargin, cfg.DefaultLookback)

		summary, err := p.RunOnce(ctx, since)
		if err != nil {
			slog.Error("mailbox backfill failed", "mailbox", m.Alias, "error", err)
			failedMailboxes++
			continue
		}

		slog.Info("mailbox backfill complete",
			"mailbox", m.Alias,
			"discovered", summary.Discovered,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		)
	}

	slog.Info("backfill complete",
		"mailboxes", len(mailboxes),
		"failed_mailboxes", failedMailboxes,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if failedMailboxes > 0 {
		os.Exit(1)
	}
}
