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
package askat

import "strings"

// Prefixes of the analysis script's output lines that are kept.
const (
	ResultPrefix  = "ASKAT_RESULTS:"
	WarningPrefix = "WARNING:"
)

// LineClass is the classification of one line of analysis output.
type LineClass int

const (
	// LineDiscard is any line that is neither a result nor a warning.
	LineDiscard LineClass = iota
	LineResult
	LineWarning
)

// ClassifyLine classifies one line of analysis output by its prefix.
func ClassifyLine(line string) LineClass {
	switch {
	case strings.HasPrefix(line, ResultPrefix):
		return LineResult
	case strings.HasPrefix(line, WarningPrefix):
		return LineWarning
	}
	return LineDiscard
}
