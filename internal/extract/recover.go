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

package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/quotesnap/ingestion/internal/models"
)

// fencedRe matches a fenced code block, with or without a language tag.
var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Classify turns a raw model response into an extraction result. It is total:
// every input maps to exactly one of VALID, IRRELEVANT, or ERROR, and it
// never panics. Responses that parse but lack a recognizable status field are
// ERROR with the raw text retained, never silently coerced to VALID.
func Classify(raw string) models.ExtractionResult {
	v, ok := recoverJSON(raw)
	if !ok {
		return models.ExtractionError(raw)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		// Arrays and scalars are valid JSON but carry no verdict.
		return models.ExtractionError(raw)
	}

	status, ok := lookupString(obj, "status")
	if !ok || status == "" {
		return models.ExtractionError(raw)
	}

	if strings.EqualFold(status, "IRRELEVANT") || strings.EqualFold(status, "NOT_VALID") {
		return models.Irrelevant()
	}

	return valid(obj)
}

// valid maps a parsed object into the VALID result, defaulting absent fields
// to empty strings.
func valid(obj map[string]any) models.ExtractionResult {
	res := models.ExtractionResult{
		Status: models.StatusValid,
		Requester: models.Requester{
			Name:  stringField(obj, "to"),
			Email: stringField(obj, "email"),
			Phone: stringField(obj, "mobile"),
		},
	}

	items, _ := lookupKey(obj, "requirements")
	list, _ := items.([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		res.Requirements = append(res.Requirements, models.RequirementLine{
			Description: stringField(m, "description"),
			Quantity:    stringField(m, "quantity"),
			Unit:        stringField(m, "unit"),
			UnitPrice:   stringField(m, "unit price"),
		})
	}

	return res
}

// recoverJSON runs the ordered fallback chain and returns the first payload
// that parses:
//  1. the whole response as JSON
//  2. the contents of a fenced code block
//  3. the first balanced {...} or [...] substring anywhere in the text
func recoverJSON(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}

	if m := fencedRe.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &v); err == nil {
			return v, true
		}
	}

	if candidate, ok := balancedPayload(trimmed); ok {
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, true
		}
	}

	return nil, false
}

// balancedPayload scans for the first '{' or '[' and returns the substring up
// to its matching close bracket, honouring strings and escapes. A truncated
// payload never balances and is reported as not found.
func balancedPayload(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// lookupKey finds a key case-insensitively, tolerating the model's habit of
// varying capitalisation ("Requirements" vs "requirements").
func lookupKey(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func lookupString(obj map[string]any, key string) (string, bool) {
	v, ok := lookupKey(obj, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// stringField returns the value under key as a string, stringifying numbers
// and booleans and defaulting everything else to "".
func stringField(obj map[string]any, key string) string {
	v, ok := lookupKey(obj, key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
