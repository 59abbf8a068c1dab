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


// Package chunker splits normalized document text into overlapping
// fixed-size word windows.
//
// Chunking is pure and deterministic: the same text and parameters always
// produce byte-identical chunk boundaries. This property is load-bearing for
// idempotent re-ingestion and for reprocessing after an embedding-model
// change, where regenerated chunks must line up with the original ones.
package chunker
