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

// Package gmail provides a mail client for the Gmail REST API: windowed
// candidate discovery, full message fetch, and on-demand attachment fetch.
// The http.Client must already handle authentication (oauth2 token source).
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/quotesnap/ingestion/internal/models"
)

// DefaultBaseURL is the root of the Gmail REST API.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client talks to the Gmail API for a single mailbox.
type Client struct {
	httpClient *http.Client
	baseURL    string
	mailbox    string // alias, used for logging only
}

// NewClient creates a Gmail client. The httpClient must carry the mailbox's
// OAuth token (e.g. via oauth2.NewClient).
func NewClient(httpClient *http.Client, baseURL, mailbox string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		mailbox:    mailbox,
	}
}

// listResponse represents a page of the messages.list response.
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// ListCandidates returns ids of messages received at or after the given time.
// Gmail's "after:" operator has one-second granularity, which is why callers
// widen the window with an overlap margin rather than trusting exact bounds.
func (c *Client) ListCandidates(ctx context.Context, since time.Time) ([]string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("after:%d", since.Unix()))
	params.Set("maxResults", "100")

	var ids []string
	for {
		u := fmt.Sprintf("%s/users/me/messages?%s", c.baseURL, params.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("build list request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("messages list returned HTTP %d: %s", resp.StatusCode, string(body))
		}

		var page listResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode list response: %w", err)
		}
		resp.Body.Close()

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}

		if page.NextPageToken == "" {
			break
		}
		params.Set("pageToken", page.NextPageToken)
	}

	return ids, nil
}

// Fetch retrieves the full message content for a given message id.
// Returns nil (no error) if the message has been deleted since discovery.
func (c *Client) Fetch(ctx context.Context, messageID string) (*models.RawMessage, error) {
	u := fmt.Sprintf("%s/users/me/messages/%s?format=full", c.baseURL, messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)",
			"mailbox", c.mailbox,
			"message_id", messageID,
		)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("message fetch returned HTTP %d for message %s", resp.StatusCode, messageID)
	}

	msg, err := parseMessage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	return msg, nil
}

// attachmentResponse is the messages.attachments.get body.
type attachmentResponse struct {
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// FetchAttachment downloads and decodes attachment bytes via the opaque
// handle collected during message parsing.
func (c *Client) FetchAttachment(ctx context.Context, h models.AttachmentHandle) ([]byte, error) {
	u := fmt.Sprintf("%s/users/me/messages/%s/attachments/%s", c.baseURL, h.MessageID, h.AttachmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("attachment fetch returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var att attachmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return nil, fmt.Errorf("decode attachment response: %w", err)
	}

	data, err := decodeBase64URL(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}

	return data, nil
}

// decodeBase64URL decodes Gmail's web-safe base64, which appears both with
// and without padding.
func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
