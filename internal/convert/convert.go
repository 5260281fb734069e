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

// Package convert dispatches attachment bytes to format-specific text
// converters by filename extension. The converters themselves are external
// collaborators registered at startup; this package only owns the fixed
// supported-extension set and the dispatch.
package convert

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Converter turns attachment bytes into extractable text.
type Converter func(data []byte, filename string) (string, error)

// supportedExtensions is the fixed set of attachment formats eligible for
// text extraction. Anything else is reported as unsupported and excluded
// from extraction input.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".xlsx": true,
	".xls":  true,
	".docx": true,
	".doc":  true,
}

// Supported reports whether the filename's extension is in the supported set.
func Supported(filename string) bool {
	return supportedExtensions[ext(filename)]
}

func ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Registry maps filename extensions to converters.
type Registry struct {
	byExt map[string]Converter
}

// NewRegistry creates an empty converter registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Converter)}
}

// Register installs a converter for an extension (with or without leading
// dot). Registering an unsupported extension is rejected so the supported
// set stays the single source of truth.
func (r *Registry) Register(extension string, fn Converter) error {
	e := strings.ToLower(extension)
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	if !supportedExtensions[e] {
		return fmt.Errorf("extension %s is not in the supported set", e)
	}
	r.byExt[e] = fn
	return nil
}

// Lookup returns the converter for the file, if one is registered.
func (r *Registry) Lookup(filename string) (Converter, bool) {
	fn, ok := r.byExt[ext(filename)]
	return fn, ok
}
