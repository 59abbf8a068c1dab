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


// Package ai defines the embedding service boundary.
//
// The embedding model is an opaque, possibly slow remote dependency: text in,
// fixed-dimension vector out. This package provides the Embedder interface,
// provider lifecycle management, configuration, and the FallbackEmbedder
// wrapper that bounds every call with a timeout and pads per-item failures
// with zero vectors so batch results keep positional correspondence with
// their inputs.
//
// Subpackages provide implementations: openai for OpenAI-compatible APIs
// (including Ollama and other local servers), mock for deterministic test
// doubles.
package ai
