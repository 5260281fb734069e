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

package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quotesnap/ingestion/internal/convert"
	"github.com/quotesnap/ingestion/internal/models"
)

// fakeFetcher serves attachment bytes from a map; missing handles fail.
type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) FetchAttachment(_ context.Context, h models.AttachmentHandle) ([]byte, error) {
	if b, ok := f.data[h.AttachmentID]; ok {
		return b, nil
	}
	return nil, errors.New("attachment not found")
}

func testMessage() *models.RawMessage {
	return &models.RawMessage{
		ID:         "msg-1",
		Subject:    "Quotation for bolts",
		Sender:     "buyer@example.com",
		Recipient:  "sales@quotesnap.example",
		ReceivedAt: time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
		BodyText:   "Please quote 500 M8 bolts.",
	}
}

// TestDocument_MetadataAndBody verifies the header block and body section
// come out in order.
func TestDocument_MetadataAndBody(t *testing.T) {
	doc := Document(context.Background(), testMessage(), &fakeFetcher{}, convert.NewRegistry())

	wantOrder := []string{
		"Subject: Quotation for bolts",
		"From: buyer@example.com",
		"To: sales@quotesnap.example",
		"Received: 2026-08-01T10:30:00Z",
		"Email Body:",
		"Please quote 500 M8 bolts.",
	}
	pos := -1
	for _, want := range wantOrder {
		idx := strings.Index(doc, want)
		if idx < 0 {
			t.Fatalf("document missing %q:\n%s", want, doc)
		}
		if idx < pos {
			t.Errorf("%q out of order", want)
		}
		pos = idx
	}
}

// TestDocument_HTMLFallback verifies the HTML body is stripped to text when
// no plain-text body exists.
func TestDocument_HTMLFallback(t *testing.T) {
	msg := testMessage()
	msg.BodyText = ""
	msg.BodyHTML = `<html><head><style>p { color: red }</style></head>` +
		`<body><p>Need a quote for 3 &times; angle grinders &amp; discs.</p>` +
		`<script>track()</script></body></html>`

	doc := Document(context.Background(), msg, &fakeFetcher{}, convert.NewRegistry())

	if !strings.Contains(doc, "Need a quote for 3 × angle grinders & discs.") {
		t.Errorf("stripped body wrong:\n%s", doc)
	}
	if strings.Contains(doc, "track()") || strings.Contains(doc, "color: red") {
		t.Errorf("script/style content leaked:\n%s", doc)
	}
	if strings.Contains(doc, "<p>") {
		t.Errorf("tags leaked:\n%s", doc)
	}
}

// TestDocument_NoContentMarker verifies a bodyless message gets an explicit
// marker instead of an empty section.
func TestDocument_NoContentMarker(t *testing.T) {
	msg := testMessage()
	msg.BodyText = ""
	msg.BodyHTML = ""

	doc := Document(context.Background(), msg, &fakeFetcher{}, convert.NewRegistry())
	if !strings.Contains(doc, "[no text content]") {
		t.Errorf("missing no-content marker:\n%s", doc)
	}
}

// TestDocument_AttachmentsInOrder verifies one block per attachment, in
// reported order, with converter output inline.
func TestDocument_AttachmentsInOrder(t *testing.T) {
	msg := testMessage()
	msg.Attachments = []models.AttachmentRef{
		{Filename: "rfq.pdf", Handle: models.AttachmentHandle{MessageID: "msg-1", AttachmentID: "att-1"}},
		{Filename: "quantities.xlsx", Handle: models.AttachmentHandle{MessageID: "msg-1", AttachmentID: "att-2"}},
	}

	fetcher := &fakeFetcher{data: map[string][]byte{
		"att-1": []byte("pdf-bytes"),
		"att-2": []byte("xlsx-bytes"),
	}}

	converters := convert.NewRegistry()
	converters.Register(".pdf", func(data []byte, filename string) (string, error) {
		return "RFQ text from " + filename, nil
	})
	converters.Register(".xlsx", func(data []byte, filename string) (string, error) {
		return "Sheet text from " + filename, nil
	})

	doc := Document(context.Background(), msg, fetcher, converters)

	first := strings.Index(doc, "Attachment: rfq.pdf")
	second := strings.Index(doc, "Attachment: quantities.xlsx")
	if first < 0 || second < 0 || second < first {
		t.Fatalf("attachment blocks missing or out of order:\n%s", doc)
	}
	if !strings.Contains(doc, "RFQ text from rfq.pdf") {
		t.Errorf("pdf converter output missing:\n%s", doc)
	}
	if !strings.Contains(doc, "Sheet text from quantities.xlsx") {
		t.Errorf("xlsx converter output missing:\n%s", doc)
	}
}

// TestDocument_AttachmentMarkers verifies unsupported types, missing
// converters, fetch failures, and converter failures each yield their marker
// and never abort the document.
func TestDocument_AttachmentMarkers(t *testing.T) {
	msg := testMessage()
	msg.Attachments = []models.AttachmentRef{
		{Filename: "photo.png", Handle: models.AttachmentHandle{AttachmentID: "att-png"}},
		{Filename: "list.xlsx", Handle: models.AttachmentHandle{AttachmentID: "att-xlsx"}},
		{Filename: "specs.pdf", Handle: models.AttachmentHandle{AttachmentID: "att-missing"}},
		{Filename: "broken.doc", Handle: models.AttachmentHandle{AttachmentID: "att-doc"}},
	}

	fetcher := &fakeFetcher{data: map[string][]byte{
		"att-doc": []byte("doc-bytes"),
	}}

	converters := convert.NewRegistry()
	converters.Register(".pdf", func(data []byte, filename string) (string, error) {
		return "never reached", nil
	})
	converters.Register(".doc", func(data []byte, filename string) (string, error) {
		return "", errors.New("corrupt file")
	})

	doc := Document(context.Background(), msg, fetcher, converters)

	for _, want := range []string{
		"[not extracted: unsupported file type]",
		"[not extracted: no converter available]",
		"[not extracted: attachment could not be fetched]",
		"[not extracted: conversion failed]",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing marker %q:\n%s", want, doc)
		}
	}
	// The body is still present despite every attachment failing.
	if !strings.Contains(doc, "Please quote 500 M8 bolts.") {
		t.Errorf("body lost:\n%s", doc)
	}
}

// TestStripHTML_Breaks verifies block-level closers become line breaks.
func TestStripHTML_Breaks(t *testing.T) {
	got := StripHTML("<div>line one</div><div>line two</div><p>para</p>")
	if !strings.Contains(got, "line one\nline two") {
		t.Errorf("StripHTML = %q", got)
	}
}
