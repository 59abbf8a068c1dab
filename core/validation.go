// Copyright 2026 Poiesic Systems
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


package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Department must not be empty
//   - Visibility must be a known value
//   - ContentHash must be a 64-hex digest
//
// NOT validated (populated by the pipeline):
//   - Status (set as the document moves through ingestion)
//   - ID (0 is valid from database sequences)
//   - RawText (empty text is legal and yields zero chunks)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Department == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDepartment)
	}

	if err := ValidateVisibility(doc.Visibility); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !IsContentHash(doc.ContentHash) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidContentHash)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Index must not be negative
//   - DocumentId must be set
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidChunkIndex)
	}

	if chunk.DocumentId == 0 {
		return fmt.Errorf("%w: document id required", ErrInvalidChunk)
	}

	return nil
}

// ValidateVisibility validates that a Visibility has a known value.
func ValidateVisibility(v Visibility) error {
	if v != VisibilityRestricted && v != VisibilityAll {
		return fmt.Errorf("%w: value %d", ErrInvalidVisibility, v)
	}
	return nil
}

// IsContentHash reports whether s is a lowercase 64-hex digest.
func IsContentHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
