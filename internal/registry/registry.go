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

// Package registry tracks running mailbox worker sessions. Each worker gets
// its own session id, child context, and goroutine; removal cancels the
// context and joins the goroutine with a bounded wait, so a wedged worker
// can never hang shutdown indefinitely.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Worker is a long-running task that exits when its context is cancelled.
// Implemented by poller.Poller.
type Worker interface {
	Run(ctx context.Context)
}

// SessionInfo describes one running worker session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Mailbox   string    `json:"mailbox"`
	StartedAt time.Time `json:"started_at"`
}

type session struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the lifecycle of mailbox worker sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Add starts the worker in its own goroutine under a child of parent and
// returns the new session id. One mailbox may have at most one session;
// adding a second is rejected.
func (r *Registry) Add(parent context.Context, mailbox string, w Worker) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.info.Mailbox == mailbox {
			return "", fmt.Errorf("mailbox %s already has session %s", mailbox, s.info.ID)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	s := &session{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Mailbox:   mailbox,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.sessions[s.info.ID] = s

	go func() {
		defer close(s.done)
		w.Run(ctx)
	}()

	slog.Info("worker session started", "session_id", s.info.ID, "mailbox", mailbox)
	return s.info.ID, nil
}

// Lookup returns the session for a mailbox, if one is running.
func (r *Registry) Lookup(mailbox string) (SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.info.Mailbox == mailbox {
			return s.info, true
		}
	}
	return SessionInfo{}, false
}

// Sessions lists all running sessions.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.info)
	}
	return infos
}

// Remove cancels a session and waits up to timeout for its worker to exit.
// The session is dropped from the registry either way; a worker that misses
// the deadline is reported but not waited on further.
func (r *Registry) Remove(sessionID string, timeout time.Duration) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	s.cancel()
	select {
	case <-s.done:
		slog.Info("worker session stopped", "session_id", sessionID, "mailbox", s.info.Mailbox)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("session %s did not stop within %s", sessionID, timeout)
	}
}

// StopAll cancels every session and waits up to timeout for all workers to
// exit. The timeout is shared, not per session.
func (r *Registry) StopAll(timeout time.Duration) {
	r.mu.Lock()
	stopping := make([]*session, 0, len(r.sessions))
	for id, s := range r.sessions {
		delete(r.sessions, id)
		stopping = append(stopping, s)
	}
	r.mu.Unlock()

	for _, s := range stopping {
		s.cancel()
	}

	deadline := time.After(timeout)
	for _, s := range stopping {
		select {
		case <-s.done:
		case <-deadline:
			slog.Warn("worker session did not stop in time",
				"session_id", s.info.ID,
				"mailbox", s.info.Mailbox,
			)
			return
		}
	}
	slog.Info("all worker sessions stopped", "count", len(stopping))
}
