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

// QuoteSnap — Ingestion Service
//
// Entry point for the quotation-request ingestion service. It:
//  1. Loads mailbox configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds an OAuth'd Gmail client per configured mailbox
//  4. Starts one poller worker per mailbox under the session registry
//  5. Serves the extraction API and health endpoint
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/quotesnap/ingestion/internal/api"
	"github.com/quotesnap/ingestion/internal/config"
	"github.com/quotesnap/ingestion/internal/convert"
	"github.com/quotesnap/ingestion/internal/dedup"
	"github.com/quotesnap/ingestion/internal/extract"
	"github.com/quotesnap/ingestion/internal/gmail"
	"github.com/quotesnap/ingestion/internal/poller"
	"github.com/quotesnap/ingestion/internal/registry"
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

	slog.Info("starting QuoteSnap ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mailboxes", len(cfg.Mailboxes),
		"poll_interval", cfg.PollInterval,
		"overlap_margin", cfg.OverlapMargin,
	)

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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	filter := dedup.NewFilter(rdb)
	if err := filter.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Extraction Store (Postgres) ---
	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise extraction store", "error", err)
		os.Exit(1)
	}

	// --- Extraction Adapter (OpenAI) ---
	adapter := extract.NewAdapter(nil, "", cfg.OpenAIAPIKey, cfg.OpenAIModel)

	// Attachment converters are deployment-specific; without any registered,
	// attachments are annotated as unextracted and bodies still classify.
	converters := convert.NewRegistry()

	// --- Start one poller worker per mailbox ---
	reg := registry.New()
	reprocessors := make(map[string]api.Reprocessor)

	for _, m := range cfg.Mailboxes {
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

		sessionID, err := reg.Add(ctx, m.Alias, p)
		if err != nil {
			slog.Error("failed to start mailbox worker", "mailbox", m.Alias, "error", err)
			os.Exit(1)
		}
		reprocessors[m.Alias] = p

		slog.Info("mailbox worker registered",
			"mailbox", m.Alias,
			"address", m.Address,
			"session_id", sessionID,
		)
	}

	// --- API Server ---
	handler := api.NewHandler(st, filter, reg, reprocessors)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		reg.StopAll(15 * time.Second)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("ingestion service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion service stopped")
}
