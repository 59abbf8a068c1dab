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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("invalid visibility")

	// ErrEmptyDepartment indicates the owning department is missing.
	ErrEmptyDepartment = errors.New("department cannot be empty")

	// ErrInvalidContentHash indicates the content hash is not a 64-hex SHA-256 digest.
	ErrInvalidContentHash = errors.New("content hash must be a 64-hex digest")

	// ErrEmptyChunkText indicates the chunk Text field is empty.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")

	// ErrInvalidChunkIndex indicates a negative chunk index.
	ErrInvalidChunkIndex = errors.New("chunk index cannot be negative")
)
