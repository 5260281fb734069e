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
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/quotesnap/ingestion/internal/models"
)

// gmailMessage represents the relevant fields from a messages.get response.
type gmailMessage struct {
	ID           string       `json:"id"`
	InternalDate string       `json:"internalDate"` // epoch millis as string
	Payload      gmailPayload `json:"payload"`
}

// gmailPayload is one node of the MIME part tree.
type gmailPayload struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Size         int64  `json:"size"`
		Data         string `json:"data"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Parts []gmailPayload `json:"parts"`
}

// parseMessage converts a messages.get response into a RawMessage: headers
// into metadata, the MIME tree into body text/HTML and attachment references.
func parseMessage(body io.Reader) (*models.RawMessage, error) {
	var msg gmailMessage
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode gmail message: %w", err)
	}

	raw := &models.RawMessage{
		ID:        msg.ID,
		Subject:   headerValue(msg.Payload, "Subject"),
		Sender:    headerValue(msg.Payload, "From"),
		Recipient: headerValue(msg.Payload, "To"),
	}

	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		raw.ReceivedAt = time.UnixMilli(ms).UTC()
	}

	walkParts(msg.ID, msg.Payload, raw)

	return raw, nil
}

// headerValue finds a header by name, case-insensitively.
func headerValue(p gmailPayload, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// walkParts traverses the MIME part tree depth-first, collecting the first
// text/plain and text/html bodies and a reference for every named attachment.
// Attachment order follows the order Gmail reports.
func walkParts(messageID string, p gmailPayload, raw *models.RawMessage) {
	if p.Filename != "" && p.Body.AttachmentID != "" {
		raw.Attachments = append(raw.Attachments, models.AttachmentRef{
			Filename:  p.Filename,
			MimeType:  p.MimeType,
			SizeBytes: p.Body.Size,
			Handle: models.AttachmentHandle{
				MessageID:    messageID,
				AttachmentID: p.Body.AttachmentID,
			},
		})
		return
	}

	if p.Body.Data != "" {
		switch {
		case strings.HasPrefix(p.MimeType, "text/plain") && raw.BodyText == "":
			if data, err := decodeBase64URL(p.Body.Data); err == nil {
				raw.BodyText = string(data)
			}
		case strings.HasPrefix(p.MimeType, "text/html") && raw.BodyHTML == "":
			if data, err := decodeBase64URL(p.Body.Data); err == nil {
				raw.BodyHTML = string(data)
			}
		}
	}

	for _, part := range p.Parts {
		walkParts(messageID, part, raw)
	}
}
