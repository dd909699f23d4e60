// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*Package interval loads named genomic intervals from BED files and indexes
  them for point queries.

  Unlike an interval union, overlapping intervals are kept separate: a
  position may fall inside several intervals at once, and each of them is
  reported by Index.Query. Coordinates are 1-based and closed once loaded.
*/
package interval
