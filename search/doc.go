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


// Package search provides access-filtered hybrid retrieval over chunks.
//
// The Retriever type implements a multi-stage retrieval algorithm that combines:
//   - Semantic search using vector embeddings
//   - Lexical search using query term coverage
//   - Rank fusion (RRF by default, weighted blend on request)
//
// Access control is enforced inside the candidate scans, so result lists are
// never under-filled by documents the requester cannot read. When the
// embedding service is unavailable, hybrid requests degrade to the lexical
// path instead of failing.
package search
