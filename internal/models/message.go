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

// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// AttachmentHandle is an opaque reference used to fetch attachment bytes on
// demand. Gmail addresses attachment content by message id + attachment id.
type AttachmentHandle struct {
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
}

// AttachmentRef describes a file attached to a message. The content itself is
// not held here; it is fetched through the handle only when the attachment is
// actually needed for extraction.
type AttachmentRef struct {
	Filename  string           `json:"filename"`
	MimeType  string           `json:"mime_type"`
	SizeBytes int64            `json:"size_bytes"`
	Handle    AttachmentHandle `json:"handle"`
}

// RawMessage is a fully fetched mailbox message. Created transiently per poll
// cycle and never persisted as-is.
type RawMessage struct {
	// ID is the mail provider's message id, immutable and unique within a
	// mailbox.
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	ReceivedAt  time.Time       `json:"received_at"`
	BodyText    string          `json:"body_text"`
	BodyHTML    string          `json:"body_html"`
	Attachments []AttachmentRef `json:"attachments"`
}
