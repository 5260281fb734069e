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

package models

import "time"

// Status classifies the outcome of extracting one message.
type Status string

const (
	// StatusValid means the message is a quotation request and structured
	// data was extracted.
	StatusValid Status = "VALID"
	// StatusIrrelevant means the message is not a quotation request.
	StatusIrrelevant Status = "IRRELEVANT"
	// StatusError means the model response could not be interpreted; the raw
	// response is retained for manual review.
	StatusError Status = "ERROR"
)

// Requester identifies who asked for the quotation.
type Requester struct {
	Name  string `json:"to"`
	Email string `json:"email"`
	Phone string `json:"mobile"`
}

// RequirementLine is one requested item. All fields are strings, including
// numeric-looking ones, to tolerate free-form model output; absent fields
// default to the empty string.
type RequirementLine struct {
	Description string `json:"Description"`
	Quantity    string `json:"Quantity"`
	Unit        string `json:"Unit"`
	UnitPrice   string `json:"Unit price"`
}

// ExtractionResult is the typed verdict for one message. Exactly one of the
// three statuses is set; Requester/Requirements are meaningful only for
// StatusValid, RawResponse only for StatusError.
type ExtractionResult struct {
	Status       Status            `json:"status"`
	Requester    Requester         `json:"requester,omitzero"`
	Requirements []RequirementLine `json:"Requirements,omitempty"`
	RawResponse  string            `json:"raw_response,omitempty"`
}

// Irrelevant returns the verdict for a message that is not a quotation request.
func Irrelevant() ExtractionResult {
	return ExtractionResult{Status: StatusIrrelevant}
}

// ExtractionError returns the verdict for an uninterpretable model response,
// keeping the original text for diagnosis.
func ExtractionError(raw string) ExtractionResult {
	return ExtractionResult{Status: StatusError, RawResponse: raw}
}

// ExtractionRecord is the persisted, deduplicated outcome of classifying one
// mailbox message. At most one record exists per (mailbox, message id).
type ExtractionRecord struct {
	ID          int64            `json:"id"`
	Mailbox     string           `json:"mailbox"`
	MessageID   string           `json:"message_id"`
	Subject     string           `json:"subject"`
	Sender      string           `json:"sender"`
	ReceivedAt  time.Time        `json:"received_at"`
	Status      Status           `json:"status"`
	Result      ExtractionResult `json:"result"`
	ProcessedAt time.Time        `json:"processed_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
