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
package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// Interval is a named genomic region with 1-based, closed coordinates.
type Interval struct {
	Chrom string
	Start int
	End   int
	// Name is the BED name column, or Chrom:Start-End when absent.
	Name string
	// Ordinal is the 0-based position of the interval in its source file.
	Ordinal int
}

// Region returns the interval as "chrom:start-end".
func (iv *Interval) Region() string {
	return fmt.Sprintf("%s:%d-%d", iv.Chrom, iv.Start, iv.End)
}

// Contains reports whether pos (1-based) on chrom falls inside iv.
func (iv *Interval) Contains(chrom string, pos int) bool {
	return iv.Chrom == chrom && iv.Start <= pos && pos <= iv.End
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

func isBEDHeader(line []byte) bool {
	for _, prefix := range []string{"#", "track", "browser"} {
		if len(line) >= len(prefix) && string(line[:len(prefix)]) == prefix {
			return true
		}
	}
	return false
}

// ReadBED parses BED text. Only the first four columns are used. BED
// coordinates are 0-based half-open; the returned intervals are 1-based
// closed. Empty intervals are skipped.
func ReadBED(reader io.Reader) ([]*Interval, error) {
	var (
		scanner   = bufio.NewScanner(reader)
		tokens    [4][]byte
		intervals []*Interval
		lineIdx   = 0
		nEmpty    = 0
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isBEDHeader(curLine) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if nToken < 3 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval.ReadBED: line %d has fewer tokens than expected", lineIdx))
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("interval.ReadBED: line %d", lineIdx))
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("interval.ReadBED: line %d", lineIdx))
		}
		if start < 0 || end < start {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval.ReadBED: invalid coordinate pair on line %d", lineIdx))
		}
		if end == start {
			nEmpty++
			continue
		}
		iv := &Interval{
			Chrom:   string(tokens[0]),
			Start:   start + 1,
			End:     end,
			Ordinal: len(intervals),
		}
		if nToken == 4 {
			iv.Name = string(tokens[3])
		} else {
			iv.Name = iv.Region()
		}
		intervals = append(intervals, iv)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "interval.ReadBED")
	}
	if nEmpty > 0 {
		log.Printf("BED: skipped %d empty interval(s)", nEmpty)
	}
	return intervals, nil
}

// LoadBED reads the BED file at path, which may be gzip-compressed. It fails
// if the file holds no interval.
func LoadBED(ctx context.Context, path string) (intervals []*Interval, err error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open BED", path)
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return nil, errors.E(errors.Invalid, err, path)
		}
	}
	if intervals, err = ReadBED(reader); err != nil {
		return nil, errors.E(err, path)
	}
	if len(intervals) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("no intervals found in BED file %s", path))
	}
	log.Printf("BED %s: loaded %d interval(s)", path, len(intervals))
	return intervals, nil
}
