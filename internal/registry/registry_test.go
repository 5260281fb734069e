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

package registry

import (
	"context"
	"testing"
	"time"
)

// blockingWorker runs until cancelled, recording that it ran.
type blockingWorker struct {
	started chan struct{}
	stopped chan struct{}
}

func newBlockingWorker() *blockingWorker {
	return &blockingWorker{
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (w *blockingWorker) Run(ctx context.Context) {
	close(w.started)
	<-ctx.Done()
	close(w.stopped)
}

// stubbornWorker ignores cancellation entirely.
type stubbornWorker struct{}

func (stubbornWorker) Run(_ context.Context) {
	select {}
}

// TestAdd_StartsWorker verifies Add launches the worker and records the
// session.
func TestAdd_StartsWorker(t *testing.T) {
	r := New()
	w := newBlockingWorker()

	id, err := r.Add(context.Background(), "sales", w)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started")
	}

	info, ok := r.Lookup("sales")
	if !ok {
		t.Fatal("Lookup failed for running session")
	}
	if info.ID != id || info.Mailbox != "sales" {
		t.Errorf("info = %+v", info)
	}
	if len(r.Sessions()) != 1 {
		t.Errorf("sessions = %d, want 1", len(r.Sessions()))
	}

	r.StopAll(time.Second)
}

// TestAdd_RejectsDuplicateMailbox verifies one session per mailbox.
func TestAdd_RejectsDuplicateMailbox(t *testing.T) {
	r := New()
	defer r.StopAll(time.Second)

	if _, err := r.Add(context.Background(), "sales", newBlockingWorker()); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if _, err := r.Add(context.Background(), "sales", newBlockingWorker()); err == nil {
		t.Fatal("second Add for same mailbox should fail")
	}
}

// TestRemove_CancelsAndJoins verifies Remove cancels the worker's context and
// waits for it to exit.
func TestRemove_CancelsAndJoins(t *testing.T) {
	r := New()
	w := newBlockingWorker()

	id, err := r.Add(context.Background(), "sales", w)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	<-w.started

	if err := r.Remove(id, 2*time.Second); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	select {
	case <-w.stopped:
	case <-time.After(time.Second):
		t.Fatal("worker still running after Remove returned")
	}

	if _, ok := r.Lookup("sales"); ok {
		t.Error("session still visible after Remove")
	}
	if err := r.Remove(id, time.Second); err == nil {
		t.Error("removing a removed session should fail")
	}
}

// TestRemove_BoundedWait verifies a worker that ignores cancellation cannot
// hang Remove past its timeout.
func TestRemove_BoundedWait(t *testing.T) {
	r := New()

	id, err := r.Add(context.Background(), "sales", stubbornWorker{})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	start := time.Now()
	if err := r.Remove(id, 100*time.Millisecond); err == nil {
		t.Fatal("expected timeout error for stubborn worker")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Remove took %v, want bounded wait", elapsed)
	}

	// The session is dropped regardless.
	if len(r.Sessions()) != 0 {
		t.Error("stubborn session still registered")
	}
}

// TestStopAll verifies every session is cancelled and joined.
func TestStopAll(t *testing.T) {
	r := New()
	workers := []*blockingWorker{newBlockingWorker(), newBlockingWorker(), newBlockingWorker()}
	for i, w := range workers {
		if _, err := r.Add(context.Background(), string(rune('a'+i)), w); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		<-w.started
	}

	r.StopAll(2 * time.Second)

	for i, w := range workers {
		select {
		case <-w.stopped:
		case <-time.After(time.Second):
			t.Fatalf("worker %d still running after StopAll", i)
		}
	}
	if len(r.Sessions()) != 0 {
		t.Errorf("sessions = %d, want 0", len(r.Sessions()))
	}
}
