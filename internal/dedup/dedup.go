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

// Package dedup provides message deduplication using Redis keys with TTL.
// Poll windows deliberately overlap, so the same message id is discovered by
// more than one cycle; the filter skips the repeat sightings cheaply. The
// store's upsert remains the correctness backstop: losing a Redis key only
// costs one redundant extraction, never a duplicate record.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a processed message id. It only
	// needs to outlive the widest realistic overlap window.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "quotesnap:seen:"
)

// Filter tracks which (mailbox, message id) pairs have already been processed.
//
// Seen and MarkProcessed are deliberately separate calls: a message is marked
// only after its record is safely upserted, so a store failure leaves the
// message eligible for the next overlapping window.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

func key(mailbox, messageID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, mailbox, messageID)
}

// Seen reports whether the message has already been fully processed.
func (f *Filter) Seen(ctx context.Context, mailbox, messageID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, key(mailbox, messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the message as fully processed.
func (f *Filter) MarkProcessed(ctx context.Context, mailbox, messageID string) error {
	if err := f.rdb.Set(ctx, key(mailbox, messageID), 1, f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (f *Filter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return f.rdb.Ping(ctx).Err()
}
