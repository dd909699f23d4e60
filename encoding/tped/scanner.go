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
package tped

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	gerrors "github.com/grailbio/base/errors"
)

// maxLineSize bounds a single TPED line. Lines grow with the number of
// samples (four bytes per sample), so the bufio default is far too small.
const maxLineSize = 256 << 20

var errEOF = errors.New("eof")

// Scanner reads TPED records from a stream, one line at a time. Blank lines
// are skipped. Scanners are not threadsafe.
type Scanner struct {
	b       *bufio.Scanner
	rec     *Record
	lineNum int
	err     error
}

// NewScanner constructs a Scanner reading TPED text from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Scanner{b: b}
}

// Scan parses the next record. It returns false at the end of the stream or
// on the first error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for {
		if !s.b.Scan() {
			if s.err = s.b.Err(); s.err == nil {
				s.err = errEOF
			}
			return false
		}
		s.lineNum++
		line := s.b.Text()
		if len(line) == 0 {
			continue
		}
		rec, err := Parse(line)
		if err != nil {
			s.err = gerrors.E(err, fmt.Sprintf("line %d", s.lineNum))
			return false
		}
		s.rec = rec
		return true
	}
}

// Record returns the record parsed by the last successful Scan.
func (s *Scanner) Record() *Record { return s.rec }

// LineNum returns the 1-based number of the last line read.
func (s *Scanner) LineNum() int { return s.lineNum }

// Err returns the error that stopped scanning, or nil if the stream ended
// normally.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
