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

package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quotesnap/ingestion/internal/models"
)

// TestListCandidates_Pagination verifies the client follows page tokens and
// collects ids across pages.
func TestListCandidates_Pagination(t *testing.T) {
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("q"); got != fmt.Sprintf("after:%d", since.Unix()) {
			t.Errorf("q = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"messages":      []map[string]string{{"id": "msg-1"}, {"id": "msg-2"}},
				"nextPageToken": "page-2",
			})
		case "page-2":
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "msg-3"}},
			})
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "sales")

	ids, err := c.ListCandidates(context.Background(), since)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d ids, want 3", len(ids))
	}
	for i, want := range []string{"msg-1", "msg-2", "msg-3"} {
		if ids[i] != want {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want)
		}
	}
}

// TestListCandidates_EmptyWindow verifies a window with no messages returns
// no ids and no error.
func TestListCandidates_EmptyWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "sales")
	ids, err := c.ListCandidates(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("got %d ids, want 0", len(ids))
	}
}

// TestFetch_DeletedMessage verifies a 404 is reported as message-gone, not as
// an error.
func TestFetch_DeletedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "sales")
	msg, err := c.Fetch(context.Background(), "gone-1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if msg != nil {
		t.Errorf("msg = %+v, want nil", msg)
	}
}

// TestFetch_ServerError verifies non-404 failures surface as errors.
func TestFetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "sales")
	if _, err := c.Fetch(context.Background(), "msg-1"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// TestFetchAttachment_Decode verifies attachment data is fetched via the
// handle and base64url-decoded, with and without padding.
func TestFetchAttachment_Decode(t *testing.T) {
	payload := []byte("PDF content here")

	for name, encoded := range map[string]string{
		"unpadded": base64.RawURLEncoding.EncodeToString(payload),
		"padded":   base64.URLEncoding.EncodeToString(payload),
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				want := "/users/me/messages/msg-1/attachments/att-9"
				if r.URL.Path != want {
					t.Errorf("path = %s, want %s", r.URL.Path, want)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"size": len(payload),
					"data": encoded,
				})
			}))
			defer server.Close()

			c := NewClient(server.Client(), server.URL, "sales")
			data, err := c.FetchAttachment(context.Background(), models.AttachmentHandle{
				MessageID:    "msg-1",
				AttachmentID: "att-9",
			})
			if err != nil {
				t.Fatalf("FetchAttachment failed: %v", err)
			}
			if string(data) != string(payload) {
				t.Errorf("data = %q, want %q", data, payload)
			}
		})
	}
}
