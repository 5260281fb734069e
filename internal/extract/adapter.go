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

// Package extract sends canonical documents to an OpenAI chat model and turns
// the response into a typed extraction result. All fragility of the model's
// output is isolated here: a transport failure is an error, but any response
// text, however malformed, classifies to exactly one of VALID, IRRELEVANT,
// or ERROR.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/quotesnap/ingestion/internal/models"
)

// DefaultBaseURL is the root of the OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Adapter invokes the chat completion API for document classification.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewAdapter creates an extraction adapter.
func NewAdapter(httpClient *http.Client, baseURL, apiKey, model string) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// chatResponse carries the fields we read from the completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const promptTemplate = `You are an email processor that handles quotation requests for hardware products, tools, and industrial equipment.

TASK: Analyze the email below and return exactly one JSON object, nothing else.

An email is IRRELEVANT when it is NOT a quotation request:
- Personal messages or casual conversations
- Marketing/promotional emails
- System notifications (security alerts, etc.)
- Social media notifications
- Order confirmations or shipping updates
- Support tickets or customer service
- Spam, newsletters, or unrelated content

An email is VALID when it IS a quotation request:
- Asks for pricing, quotation, or quote
- Mentions specific hardware products, tools, or equipment
- Includes quantities, specifications, or requirements
- Product inquiry with intent to purchase

If IRRELEVANT, return: {"status": "IRRELEVANT"}

If VALID, return this exact JSON structure:
{
  "status": "VALID",
  "to": "Name of person or company requesting quotation (empty string if not found)",
  "email": "Email address of requester (empty string if not found)",
  "mobile": "Phone number of requester (empty string if not found)",
  "Requirements": [
    {
      "Description": "Product description and specifications",
      "Quantity": "Quantity if available, otherwise empty string",
      "Unit": "Unit for quantity (pcs/Kg/Litre/etc) if available, otherwise empty string",
      "Unit price": "Unit price if available, otherwise empty string"
    }
  ]
}

EMAIL CONTENT:
"""%s"""

RESPONSE (one JSON object only):`

// Extract classifies one canonical document. A non-nil error means the model
// could not be invoked (the caller skips the message and writes no record);
// a nil error always carries a definitive ExtractionResult, including the
// ERROR classification for responses that cannot be interpreted.
func (a *Adapter) Extract(ctx context.Context, doc string) (models.ExtractionResult, error) {
	// Temperature pinned to zero and JSON mode requested; the parse chain
	// still assumes neither is honoured.
	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(promptTemplate, doc)},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	u := a.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("invoke model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.ExtractionResult{}, fmt.Errorf("model returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return models.ExtractionResult{}, fmt.Errorf("decode chat response: %w", err)
	}

	if len(chat.Choices) == 0 {
		return models.ExtractionResult{}, fmt.Errorf("model returned no choices")
	}

	return Classify(chat.Choices[0].Message.Content), nil
}
