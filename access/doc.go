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


// Package access implements the need-to-know visibility policy for
// retrieval.
//
// Access facts are derived per request from the requester's department and
// the document's owning department, visibility and allowed-department set.
// They are never stored. The same predicate is applied on both the vector
// and the lexical search path so that rank fusion cannot surface content one
// path would have hidden. Denials are silent: inaccessible chunks are
// excluded from results rather than reported, avoiding existence leaks.
package access
