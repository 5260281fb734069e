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

// Package normalize combines a message's body and convertible attachments
// into one canonical text document for the extraction model.
package normalize

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/quotesnap/ingestion/internal/convert"
	"github.com/quotesnap/ingestion/internal/models"
)

// AttachmentFetcher fetches attachment bytes on demand.
// Implemented by gmail.Client.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, h models.AttachmentHandle) ([]byte, error)
}

const noContentMarker = "[no text content]"

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)\b.*?</(script|style)>`)
	breakRe  = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li)[^>]*>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// Document builds the canonical document for one message: a metadata header,
// an "Email Body" section, then one block per attachment in the order the
// mail client reported them. The result is deterministic for a given message
// and converter set.
func Document(ctx context.Context, msg *models.RawMessage, fetcher AttachmentFetcher, converters *convert.Registry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "To: %s\n", msg.Recipient)
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", msg.ReceivedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\nEmail Body:\n")
	b.WriteString(bodyText(msg))
	b.WriteString("\n")

	for _, att := range msg.Attachments {
		fmt.Fprintf(&b, "\nAttachment: %s\n", att.Filename)
		b.WriteString(attachmentText(ctx, msg.ID, att, fetcher, converters))
		b.WriteString("\n")
	}

	return b.String()
}

// bodyText prefers the plain-text body, falls back to stripped HTML, and
// emits an explicit marker when the message has neither.
func bodyText(msg *models.RawMessage) string {
	if strings.TrimSpace(msg.BodyText) != "" {
		return strings.TrimSpace(msg.BodyText)
	}
	if strings.TrimSpace(msg.BodyHTML) != "" {
		if text := StripHTML(msg.BodyHTML); text != "" {
			return text
		}
	}
	return noContentMarker
}

// StripHTML removes markup from an HTML body: script/style subtrees dropped,
// block-level closers turned into newlines, remaining tags removed, common
// entities decoded, blank runs collapsed.
func StripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// attachmentText resolves one attachment block. Unsupported extensions,
// missing converters, fetch failures, and converter errors all yield a
// marker instead of an error: the attachment is annotated and excluded, and
// the body may still classify on its own.
func attachmentText(ctx context.Context, messageID string, att models.AttachmentRef, fetcher AttachmentFetcher, converters *convert.Registry) string {
	if !convert.Supported(att.Filename) {
		return "[not extracted: unsupported file type]"
	}

	fn, ok := converters.Lookup(att.Filename)
	if !ok {
		return "[not extracted: no converter available]"
	}

	data, err := fetcher.FetchAttachment(ctx, att.Handle)
	if err != nil {
		slog.Warn("attachment fetch failed",
			"message_id", messageID,
			"filename", att.Filename,
			"error", err,
		)
		return "[not extracted: attachment could not be fetched]"
	}

	text, err := fn(data, att.Filename)
	if err != nil {
		slog.Warn("attachment conversion failed",
			"message_id", messageID,
			"filename", att.Filename,
			"error", err,
		)
		return "[not extracted: conversion failed]"
	}

	return strings.TrimSpace(text)
}
